// ABOUTME: Ticket agent that materializes issue findings as ticket records
// ABOUTME: Depends on the issue identifier's prior Result; store failures become failed Results

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/triage-gateway/internal/classify"
	"github.com/2389/triage-gateway/internal/dedupe"
	"github.com/2389/triage-gateway/internal/ticket"
)

// ErrNoFinding means the ticket agent was invoked without an issue
// identifier result to act on.
var ErrNoFinding = errors.New("ticket agent requires an issue finding")

// Ticketer creates ticket records from issue findings.
type Ticketer struct {
	store  ticket.Store
	recent *dedupe.Cache
	logger *slog.Logger
}

// NewTicketer creates the ticket agent backed by the given store. A nil
// recent cache disables duplicate suppression.
func NewTicketer(store ticket.Store, recent *dedupe.Cache, logger *slog.Logger) *Ticketer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ticketer{
		store:  store,
		recent: recent,
		logger: logger.With("component", "agent", "agent", classify.AgentTicket),
	}
}

// Name returns the agent's routing name.
func (a *Ticketer) Name() string { return classify.AgentTicket }

// Handle creates a ticket from the prior result's finding. A prior result
// without a detected issue yields a successful no-op; a missing prior
// result or a store failure yields a failed Result.
func (a *Ticketer) Handle(ctx context.Context, req *Request, prior *Result) *Result {
	if prior == nil || prior.Finding == nil {
		return failure(classify.AgentTicket, req, ErrNoFinding)
	}

	finding := prior.Finding
	if !finding.Detected {
		return &Result{
			AgentName: classify.AgentTicket,
			RequestID: req.ID,
			Output:    "no ticket created: no issue detected",
			Success:   true,
		}
	}

	// A recently filed identical finding is not filed again.
	if a.recent != nil && a.recent.Seen(dedupe.Fingerprint(finding.Category, finding.Description)) {
		a.logger.Info("duplicate finding suppressed", "request_id", req.ID, "category", finding.Category)
		return &Result{
			AgentName: classify.AgentTicket,
			RequestID: req.ID,
			Output:    "no ticket created: duplicate of a recently filed ticket",
			Success:   true,
		}
	}

	created, err := a.store.Create(ctx, &ticket.Draft{
		RequestID:     req.ID,
		Category:      finding.Category,
		Description:   finding.Description,
		Severity:      finding.Severity,
		AssignedAgent: classify.AgentTicket,
		AutoGenerated: true,
	})
	if err != nil {
		a.logger.Error("ticket creation failed", "request_id", req.ID, "error", err)
		return failure(classify.AgentTicket, req, fmt.Errorf("creating ticket: %w", err))
	}

	return &Result{
		AgentName: classify.AgentTicket,
		RequestID: req.ID,
		Output:    fmt.Sprintf("created %s ticket %s (%s severity)", created.Category, created.ID, created.Severity),
		Success:   true,
		Ticket:    created,
	}
}
