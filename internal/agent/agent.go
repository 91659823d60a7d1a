// ABOUTME: Agent abstraction shared by all agent variants
// ABOUTME: Defines Request/Result types and the Agent interface the coordinator dispatches on

package agent

import (
	"context"
	"time"

	"github.com/2389/triage-gateway/internal/ticket"
)

// Request is a single user request entering the system. Immutable once
// created.
type Request struct {
	ID            string
	Text          string
	Timestamp     time.Time
	OriginSession string
}

// Result is the outcome of exactly one agent invocation. Agents capture
// upstream failures here instead of returning Go errors; the coordinator
// decides whether a failed invocation is fatal to the overall request.
// Never mutated after creation.
type Result struct {
	AgentName string
	RequestID string
	Output    string
	Success   bool
	Err       error

	// Finding is set only by the issue identifier and feeds the ticket
	// agent as dispatch context.
	Finding *Finding

	// Ticket is set only by the ticket agent when a ticket was created.
	Ticket *ticket.Ticket
}

// Agent is a named role that handles a request and produces a Result.
// prior carries the preceding agent's result for dependent steps in a
// compound sequence, and is nil for independent invocations.
type Agent interface {
	Name() string
	Handle(ctx context.Context, req *Request, prior *Result) *Result
}

// failure builds a failed Result for the given agent and request.
func failure(name string, req *Request, err error) *Result {
	return &Result{
		AgentName: name,
		RequestID: req.ID,
		Success:   false,
		Err:       err,
	}
}
