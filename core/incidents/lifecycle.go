package incidents

import (
	"time"

	"incidentdesk/core/store"
	"incidentdesk/core/utils"
)

var (
	Categories = []string{"phishing", "malware", "ransomware", "unauthorized_access", "data_breach", "ddos", "social_engineering", "insider_threat", "other"}
	Priorities = []string{"low", "medium", "high", "critical"}
	Statuses   = []string{store.StatusOpen, store.StatusInProgress, store.StatusResolved, store.StatusClosed, store.StatusRejected}
)

var forwardOrder = map[string]int{
	store.StatusOpen:       0,
	store.StatusInProgress: 1,
	store.StatusResolved:   2,
	store.StatusClosed:     3,
}

// CanTransition reports whether from -> to is allowed. Moves go forward along
// open, in_progress, resolved, closed (skipping is fine). Any state other than
// rejected may be rejected, and rejected is final.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	if from == store.StatusRejected {
		return false
	}
	if to == store.StatusRejected {
		return true
	}
	f, okFrom := forwardOrder[from]
	t, okTo := forwardOrder[to]
	return okFrom && okTo && t > f
}

// applyStatus moves inc to status and stamps resolution fields the first time
// the incident enters resolved. It reports whether anything changed.
func applyStatus(inc *store.Incident, status, actorID string, now time.Time) (bool, error) {
	if !contains(Statuses, status) {
		return false, statusError(status)
	}
	if !CanTransition(inc.Status, status) {
		return false, ErrInvalidTransition
	}
	if inc.Status == status {
		return false, nil
	}
	inc.Status = status
	if status == store.StatusResolved && inc.ResolvedAt == nil {
		at := now
		by := actorID
		minutes := int(utils.MinutesBetween(inc.CreatedAt, at))
		inc.ResolvedAt = &at
		inc.ResolvedBy = &by
		inc.ResolutionTime = &minutes
	}
	return true, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
