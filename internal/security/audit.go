package security

import (
	"sync"
	"time"
)

// EventKind names the kinds of security events the gate records.
type EventKind string

const (
	EventPathAllowed      EventKind = "path_allowed"
	EventPathRejected     EventKind = "path_rejected"
	EventContentSanitized EventKind = "content_sanitized"
)

// Severity grades a security event for audit filtering.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is one entry in the security audit record.
type Event struct {
	Time      time.Time `json:"time"`
	Kind      EventKind `json:"kind"`
	Severity  Severity  `json:"severity"`
	Operation string    `json:"operation,omitempty"`
	Path      string    `json:"path,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// AuditLog is an append-only, bounded record of security events.
// When the bound is reached the oldest events are dropped; recording an
// event never blocks or fails the operation that produced it.
type AuditLog struct {
	mu     sync.Mutex
	events []Event
	max    int
}

// NewAuditLog creates an AuditLog retaining at most max events.
// A non-positive max falls back to 1000.
func NewAuditLog(max int) *AuditLog {
	if max <= 0 {
		max = 1000
	}
	return &AuditLog{max: max}
}

// Record appends an event, evicting the oldest entries beyond the bound.
func (a *AuditLog) Record(ev Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.events = append(a.events, ev)
	if len(a.events) > a.max {
		a.events = a.events[len(a.events)-a.max:]
	}
}

// Events returns a snapshot of the recorded events, oldest first.
func (a *AuditLog) Events() []Event {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Event, len(a.events))
	copy(out, a.events)
	return out
}

// Len returns the number of retained events.
func (a *AuditLog) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}
