package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"incidentdesk/core/audit"
	"incidentdesk/core/auth"
	"incidentdesk/core/store"
	"incidentdesk/core/utils"
	"incidentdesk/core/validation"
)

var (
	ErrTooLarge    = errors.New("file too large")
	ErrInvalidName = errors.New("invalid filename")
	ErrNoFiles     = errors.New("no files uploaded")
)

const URLPrefix = "/uploads/evidence/"

var (
	namePattern = regexp.MustCompile(`^[0-9]{13}-[0-9a-f]{32}(\.[a-z0-9]{1,10})?$`)
	extPattern  = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)
)

// ValidName reports whether name has the generated upload form.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

type Limits struct {
	MaxFiles     int
	MaxFileBytes int64
	AllowedTypes []string
}

type Service struct {
	storage Storage
	limits  Limits
	allowed map[string]bool
	audit   *audit.Recorder
	logger  *utils.Logger
	now     func() time.Time
}

func NewService(storage Storage, limits Limits, recorder *audit.Recorder, logger *utils.Logger) *Service {
	allowed := make(map[string]bool, len(limits.AllowedTypes))
	for _, t := range limits.AllowedTypes {
		allowed[strings.ToLower(strings.TrimSpace(t))] = true
	}
	return &Service{storage: storage, limits: limits, allowed: allowed, audit: recorder, logger: logger, now: utils.NowUTC}
}

func (s *Service) Limits() Limits { return s.limits }

// Save validates every file before storing any of them.
func (s *Service) Save(ctx context.Context, actor *auth.Principal, files []*multipart.FileHeader) ([]store.EvidenceFile, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	var v validation.Collector
	if len(files) > s.limits.MaxFiles {
		v.Add("at most %d files may be uploaded at once", s.limits.MaxFiles)
	}
	types := make([]string, len(files))
	for i, fh := range files {
		if fh.Size > s.limits.MaxFileBytes {
			return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, fh.Filename, s.limits.MaxFileBytes)
		}
		types[i] = mediaType(fh.Header.Get("Content-Type"))
		if !s.allowed[types[i]] {
			v.Add("file type %s is not allowed for %q", types[i], fh.Filename)
		}
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	out := make([]store.EvidenceFile, 0, len(files))
	for i, fh := range files {
		ef, err := s.store(ctx, fh, types[i])
		if err != nil {
			s.rollback(ctx, out)
			return nil, err
		}
		out = append(out, ef)
	}
	names := make([]string, len(out))
	for i, f := range out {
		names[i] = f.Filename
	}
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionFileUploaded, PerformedBy: actor.UserID, UserRole: actor.Role,
		TargetType: audit.TargetFile, Metadata: map[string]any{"files": names},
		Description: fmt.Sprintf("%d evidence files uploaded", len(out)),
	})
	return out, nil
}

func (s *Service) store(ctx context.Context, fh *multipart.FileHeader, contentType string) (store.EvidenceFile, error) {
	name, err := s.generateName(fh.Filename)
	if err != nil {
		return store.EvidenceFile{}, err
	}
	f, err := fh.Open()
	if err != nil {
		return store.EvidenceFile{}, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	if err := s.storage.Put(ctx, name, io.LimitReader(f, s.limits.MaxFileBytes+1), fh.Size, contentType); err != nil {
		return store.EvidenceFile{}, err
	}
	return store.EvidenceFile{
		Filename:     name,
		OriginalName: filepath.Base(fh.Filename),
		MimeType:     contentType,
		Size:         fh.Size,
		URL:          URLPrefix + name,
		UploadedAt:   s.now(),
	}, nil
}

func (s *Service) rollback(ctx context.Context, saved []store.EvidenceFile) {
	for _, f := range saved {
		if err := s.storage.Delete(ctx, f.Filename); err != nil {
			s.logger.Warnf("upload rollback %s: %v", f.Filename, err)
		}
	}
}

func (s *Service) generateName(original string) (string, error) {
	suffix, err := utils.RandString(16)
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(original))
	if !extPattern.MatchString(ext) {
		ext = ""
	}
	return strconv.FormatInt(s.now().UnixMilli(), 10) + "-" + suffix + ext, nil
}

func (s *Service) Open(ctx context.Context, name string) (io.ReadCloser, string, error) {
	if !ValidName(name) {
		return nil, "", ErrInvalidName
	}
	rc, err := s.storage.Open(ctx, name)
	if err != nil {
		return nil, "", err
	}
	ct := mime.TypeByExtension(filepath.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return rc, ct, nil
}

func (s *Service) Delete(ctx context.Context, actor *auth.Principal, name string) error {
	if !ValidName(name) {
		return ErrInvalidName
	}
	if err := s.storage.Delete(ctx, name); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionFileDeleted, PerformedBy: actor.UserID, UserRole: actor.Role,
		TargetType: audit.TargetFile, TargetID: name, Description: "evidence file deleted",
	})
	return nil
}

func mediaType(header string) string {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(header))
	}
	return mt
}
