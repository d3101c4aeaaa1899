package export

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"incidentdesk/core/store"

	"github.com/go-pdf/fpdf"
)

const pdfLine = 6.0

type pdfDoc struct {
	*fpdf.Fpdf
	tr func(string) string
}

func newPDF(title string, generated time.Time) *pdfDoc {
	f := fpdf.New("P", "mm", "A4", "")
	f.SetTitle(title, true)
	f.SetAutoPageBreak(true, 15)
	f.AddPage()
	d := &pdfDoc{Fpdf: f, tr: f.UnicodeTranslatorFromDescriptor("")}
	d.SetFont("Helvetica", "B", 18)
	d.CellFormat(0, 10, d.tr(title), "", 1, "C", false, 0, "")
	d.SetFont("Helvetica", "", 9)
	d.CellFormat(0, pdfLine, "Generated: "+generated.UTC().Format(time.RFC1123), "", 1, "C", false, 0, "")
	d.Ln(4)
	return d
}

func (d *pdfDoc) heading(text string) {
	d.SetFont("Helvetica", "B", 12)
	d.CellFormat(0, 8, d.tr(text), "", 1, "L", false, 0, "")
	d.SetFont("Helvetica", "", 10)
}

func (d *pdfDoc) field(label, value string) {
	if value == "" {
		return
	}
	d.SetFont("Helvetica", "B", 10)
	d.CellFormat(40, pdfLine, d.tr(label+":"), "", 0, "L", false, 0, "")
	d.SetFont("Helvetica", "", 10)
	d.MultiCell(0, pdfLine, d.tr(value), "", "L", false)
}

func (d *pdfDoc) separator() {
	d.Ln(2)
	x, y := d.GetXY()
	w, _ := d.GetPageSize()
	left, _, right, _ := d.GetMargins()
	d.Line(left, y, w-right, y)
	d.SetXY(x, y+3)
}

func WriteIncidentsPDF(w io.Writer, items []store.Incident, generated time.Time) error {
	d := newPDF("Security Incidents Report", generated)
	open, resolved := 0, 0
	for _, inc := range items {
		switch inc.Status {
		case store.StatusOpen:
			open++
		case store.StatusResolved:
			resolved++
		}
	}
	d.heading("Summary")
	d.field("Total incidents", strconv.Itoa(len(items)))
	d.field("Open", strconv.Itoa(open))
	d.field("Resolved", strconv.Itoa(resolved))
	d.separator()
	d.heading("Incident details")
	for i, inc := range items {
		d.SetFont("Helvetica", "B", 11)
		d.MultiCell(0, 7, d.tr(fmt.Sprintf("%d. %s", i+1, inc.Title)), "", "L", false)
		d.field("ID", inc.ID)
		d.field("Category", inc.Category)
		d.field("Status", inc.Status)
		d.field("Priority", inc.Priority)
		d.field("Severity", strconv.Itoa(inc.Severity))
		d.field("Reported by", reporterName(inc))
		d.field("Assigned to", assigneeName(inc))
		d.field("Created", inc.CreatedAt.UTC().Format(time.RFC3339))
		d.field("Resolved", formatTime(inc.ResolvedAt))
		if inc.ResolutionTime != nil {
			d.field("Resolution time", strconv.Itoa(*inc.ResolutionTime)+" min")
		}
		d.field("Description", inc.Description)
		d.separator()
	}
	return d.Output(w)
}

func WriteAuditPDF(w io.Writer, logs []store.AuditLog, generated time.Time) error {
	d := newPDF("Audit Log Report", generated)
	d.heading("Summary")
	d.field("Total records", strconv.Itoa(len(logs)))
	d.separator()
	for _, l := range logs {
		d.SetFont("Helvetica", "B", 10)
		d.MultiCell(0, pdfLine, d.tr(l.Timestamp.UTC().Format(time.RFC3339)+"  "+l.Action), "", "L", false)
		d.field("Performed by", performerName(l))
		d.field("Target", l.TargetType+" "+deref(l.TargetID))
		d.field("Status", l.Status)
		d.field("IP", l.IPAddress)
		d.field("Description", l.Description)
		d.separator()
	}
	return d.Output(w)
}
