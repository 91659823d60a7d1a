// ABOUTME: Ticket types, status lifecycle rules, and the Store interface
// ABOUTME: Statuses move monotonically open -> in_progress -> resolved/closed and are never deleted

package ticket

import (
	"context"
	"errors"
	"time"
)

// Store errors.
var (
	// ErrNotFound is returned when a requested ticket does not exist.
	ErrNotFound = errors.New("ticket not found")

	// ErrInvalidTransition is returned for backward, skipping, or
	// out-of-terminal status transitions. The ticket is left unchanged.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Ticket statuses, in lifecycle order.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusClosed     = "closed"
)

// Ticket categories.
const (
	CategoryBug      = "bug"
	CategoryFeature  = "feature"
	CategoryQuestion = "question"
)

// Ticket severities, highest first.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Ticket is a tracked issue or task spawned during request coordination.
// Tickets are never deleted; terminal statuses (resolved, closed) end the
// lifecycle.
type Ticket struct {
	ID            string
	RequestID     string
	Category      string // bug, feature, question
	Description   string
	Status        string
	Severity      string
	AssignedAgent string
	AutoGenerated bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Draft is the caller-supplied portion of a new ticket. The store assigns
// ID, status (open), and timestamps.
type Draft struct {
	RequestID     string
	Category      string
	Description   string
	Severity      string
	AssignedAgent string
	AutoGenerated bool
}

// Filter narrows List results. Zero values mean "no constraint"; Limit 0
// falls back to the store default.
type Filter struct {
	Status string
	Limit  int
	Offset int
}

// Store holds ticket lifecycle state. Implementations must serialize
// status updates per ticket id so concurrent transitions cannot lose
// writes, and must enforce the transition rules via ValidTransition.
type Store interface {
	Create(ctx context.Context, draft *Draft) (*Ticket, error)
	Get(ctx context.Context, id string) (*Ticket, error)
	UpdateStatus(ctx context.Context, id, status string) (*Ticket, error)
	List(ctx context.Context, filter Filter) ([]*Ticket, error)
	Search(ctx context.Context, query string) ([]*Ticket, error)
	Close() error
}

// statusRank orders statuses along the lifecycle. Terminal statuses share
// the highest rank.
var statusRank = map[string]int{
	StatusOpen:       0,
	StatusInProgress: 1,
	StatusResolved:   2,
	StatusClosed:     2,
}

// ValidStatus reports whether s is a known ticket status.
func ValidStatus(s string) bool {
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether a status ends the ticket lifecycle.
func Terminal(s string) bool {
	return s == StatusResolved || s == StatusClosed
}

// ValidTransition reports whether a ticket may move from one status to
// another. Only single forward steps are allowed: open -> in_progress,
// in_progress -> resolved or closed. Nothing leaves a terminal status.
func ValidTransition(from, to string) bool {
	fromRank, okFrom := statusRank[from]
	toRank, okTo := statusRank[to]
	if !okFrom || !okTo {
		return false
	}
	if Terminal(from) {
		return false
	}
	return toRank == fromRank+1
}

// ValidCategory reports whether c is a known ticket category.
func ValidCategory(c string) bool {
	return c == CategoryBug || c == CategoryFeature || c == CategoryQuestion
}

// ValidSeverity reports whether s is a known severity.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}
