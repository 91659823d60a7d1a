// ABOUTME: Coordinator state machine: classify, dispatch agents, merge results, emit events
// ABOUTME: Independent agents run concurrently; results merge in sequence order; primary-agent failure is fatal

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/2389/triage-gateway/internal/agent"
	"github.com/2389/triage-gateway/internal/classify"
	"github.com/2389/triage-gateway/internal/session"
	"github.com/2389/triage-gateway/internal/ticket"
)

// ErrUnknownAgent means a routing decision named an agent that is not
// registered with the coordinator.
var ErrUnknownAgent = errors.New("unknown agent in sequence")

// Request states, in lifecycle order. Completed and Failed are terminal.
type State string

const (
	StateReceived    State = "received"
	StateClassified  State = "classified"
	StateDispatching State = "dispatching"
	StateMerging     State = "merging"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// Overall response statuses.
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// Response is the terminal outcome of coordinating one request.
type Response struct {
	RequestID string
	Status    string // completed, partial, failed
	Text      string
	Tickets   []*ticket.Ticket
	Err       error // first fatal error when Status is failed

	// Decision and Results are retained for observability; Results are
	// in sequence order.
	Decision *classify.Decision
	Results  []*agent.Result
}

// FinalPayload is the completed/failed event payload and the final HTTP
// response body shape.
type FinalPayload struct {
	RequestID    string           `json:"request_id"`
	Status       string           `json:"status"`
	ResponseText string           `json:"response_text"`
	Error        string           `json:"error,omitempty"`
	Tickets      []*ticket.Ticket `json:"tickets"`
}

// agentResultPayload is the agent_result event payload.
type agentResultPayload struct {
	AgentName string `json:"agent_name"`
	Success   bool   `json:"success"`
	Output    string `json:"output,omitempty"`
	Error     string `json:"error,omitempty"`
	TicketID  string `json:"ticket_id,omitempty"`
}

// Coordinator classifies incoming requests, sequences agent invocations,
// merges their outputs, and fans events out to subscribed sessions.
type Coordinator struct {
	classifier  *classify.Classifier
	agents      map[string]agent.Agent
	fallback    string
	broadcaster *session.Broadcaster
	logger      *slog.Logger
}

// New creates a coordinator over the given agent set. fallback names the
// agent that handles requests no category claims; it must be in agents.
// Agent membership is configurable: any Agent registered here is
// routable by name.
func New(classifier *classify.Classifier, agents []agent.Agent, fallback string, broadcaster *session.Broadcaster, logger *slog.Logger) (*Coordinator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	byName := make(map[string]agent.Agent, len(agents))
	for _, a := range agents {
		byName[a.Name()] = a
	}
	if _, ok := byName[fallback]; !ok {
		return nil, fmt.Errorf("fallback agent %q is not registered", fallback)
	}

	return &Coordinator{
		classifier:  classifier,
		agents:      byName,
		fallback:    fallback,
		broadcaster: broadcaster,
		logger:      logger.With("component", "coordinator"),
	}, nil
}

// Handle coordinates one request to a terminal state. It always returns
// a Response; coordination errors surface in Response.Status/Err, never
// as a panic or partial silence. Events are published to subscribed
// sessions at each stage; a subscriber disconnecting does not stop
// coordination.
func (c *Coordinator) Handle(ctx context.Context, req *agent.Request) *Response {
	state := StateReceived
	c.publish(req.ID, session.EventStarted, map[string]string{"text": req.Text})

	// Received -> Classified
	decision, err := c.classifier.Classify(req.ID, req.Text)
	if errors.Is(err, classify.ErrAmbiguous) {
		// No category cleared the threshold: route to the fallback agent.
		decision = &classify.Decision{
			RequestID: req.ID,
			Category:  c.fallback,
			Sequence:  []string{c.fallback},
		}
		c.logger.Info("ambiguous request routed to fallback",
			"request_id", req.ID,
			"fallback", c.fallback)
	} else if err != nil {
		return c.fail(req, state, decision, nil, fmt.Errorf("classifying request: %w", err))
	}
	state = c.transition(req.ID, state, StateClassified)

	// Classified -> Dispatching
	state = c.transition(req.ID, state, StateDispatching)
	results, err := c.dispatch(ctx, req, decision.Sequence)
	if err != nil {
		return c.fail(req, state, decision, results, err)
	}

	// Dispatching -> Merging. agent_result events go out in sequence
	// order, regardless of completion order.
	state = c.transition(req.ID, state, StateMerging)
	for _, res := range results {
		c.publish(req.ID, session.EventAgentResult, resultPayload(res))
	}

	// The first agent in the sequence is the primary: its failure is
	// fatal to the whole request.
	if !results[0].Success {
		return c.fail(req, state, decision, results, results[0].Err)
	}

	resp := c.merge(req, decision, results)
	c.transition(req.ID, state, StateCompleted)
	c.publish(req.ID, session.EventCompleted, &FinalPayload{
		RequestID:    req.ID,
		Status:       resp.Status,
		ResponseText: resp.Text,
		Tickets:      resp.Tickets,
	})
	return resp
}

// dispatch invokes every agent in the sequence. The issue identifier and
// the ticket agent form a dependent chain and run sequentially, with the
// identifier's result passed as context; all other agents are
// independent and run concurrently. Results are returned in sequence
// order regardless of completion order.
func (c *Coordinator) dispatch(ctx context.Context, req *agent.Request, sequence []string) ([]*agent.Result, error) {
	type step struct {
		index int
		a     agent.Agent
	}

	// Group the sequence into chains of dependent steps.
	var chains [][]step
	for i := 0; i < len(sequence); i++ {
		a, ok := c.agents[sequence[i]]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, sequence[i])
		}
		chain := []step{{index: i, a: a}}
		// The ticket agent consumes the issue identifier's finding.
		if sequence[i] == classify.CategoryIssue && i+1 < len(sequence) && sequence[i+1] == classify.AgentTicket {
			ticketer, ok := c.agents[classify.AgentTicket]
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, classify.AgentTicket)
			}
			chain = append(chain, step{index: i + 1, a: ticketer})
			i++
		}
		chains = append(chains, chain)
	}

	results := make([]*agent.Result, len(sequence))

	var g errgroup.Group
	for _, chain := range chains {
		g.Go(func() error {
			var prior *agent.Result
			for _, s := range chain {
				// A timeout or failure in one chain never aborts the
				// others: agents capture errors in their Result.
				res := s.a.Handle(ctx, req, prior)
				results[s.index] = res
				prior = res
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// merge structures successful results into one final response, in
// sequence order. Any non-primary failure downgrades the status to
// partial and surfaces a visible warning above the content.
func (c *Coordinator) merge(req *agent.Request, decision *classify.Decision, results []*agent.Result) *Response {
	resp := &Response{
		RequestID: req.ID,
		Status:    StatusCompleted,
		Decision:  decision,
		Results:   results,
	}

	var sections []string
	var failed []string
	for _, res := range results {
		if !res.Success {
			failed = append(failed, res.AgentName)
			continue
		}
		if res.Ticket != nil {
			resp.Tickets = append(resp.Tickets, res.Ticket)
		}
		if res.Output == "" {
			continue
		}
		if len(results) > 1 {
			sections = append(sections, fmt.Sprintf("## %s\n\n%s", res.AgentName, res.Output))
		} else {
			sections = append(sections, res.Output)
		}
	}

	if len(failed) > 0 {
		resp.Status = StatusPartial
		warning := fmt.Sprintf("> **Warning:** partial response; the following agents failed: %s", strings.Join(failed, ", "))
		sections = append([]string{warning}, sections...)
	}

	resp.Text = strings.Join(sections, "\n\n")

	c.logger.Info("request merged",
		"request_id", req.ID,
		"status", resp.Status,
		"agents", len(results),
		"tickets", len(resp.Tickets))
	return resp
}

// fail moves the request to the terminal Failed state. No partial
// content is surfaced; the first fatal error carries to the user.
func (c *Coordinator) fail(req *agent.Request, from State, decision *classify.Decision, results []*agent.Result, err error) *Response {
	c.transition(req.ID, from, StateFailed)
	c.logger.Warn("request failed", "request_id", req.ID, "error", err)

	c.publish(req.ID, session.EventFailed, &FinalPayload{
		RequestID: req.ID,
		Status:    StatusFailed,
		Error:     errString(err),
		Tickets:   []*ticket.Ticket{},
	})

	return &Response{
		RequestID: req.ID,
		Status:    StatusFailed,
		Err:       err,
		Decision:  decision,
		Results:   results,
	}
}

func (c *Coordinator) transition(requestID string, from, to State) State {
	c.logger.Debug("state transition",
		"request_id", requestID,
		"from", string(from),
		"to", string(to))
	return to
}

func (c *Coordinator) publish(requestID, eventType string, payload any) {
	if c.broadcaster == nil {
		return
	}
	c.broadcaster.Publish(&session.Event{
		RequestID: requestID,
		Type:      eventType,
		Payload:   payload,
	})
}

func resultPayload(res *agent.Result) *agentResultPayload {
	p := &agentResultPayload{
		AgentName: res.AgentName,
		Success:   res.Success,
		Output:    res.Output,
		Error:     errString(res.Err),
	}
	if res.Ticket != nil {
		p.TicketID = res.Ticket.ID
	}
	return p
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
