// ABOUTME: Tests for coordinator classification routing, dispatch ordering, merging, and failure policy
// ABOUTME: Uses stub agents with controlled delays/failures plus the real classifier, identifier, and ticket store

package coordinator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/triage-gateway/internal/agent"
	"github.com/2389/triage-gateway/internal/classify"
	"github.com/2389/triage-gateway/internal/inference"
	"github.com/2389/triage-gateway/internal/session"
	"github.com/2389/triage-gateway/internal/ticket"
)

// stubAgent returns a fixed result after an optional delay.
type stubAgent struct {
	name   string
	delay  time.Duration
	output string
	err    error
}

func (s *stubAgent) Name() string { return s.name }

func (s *stubAgent) Handle(ctx context.Context, req *agent.Request, prior *agent.Result) *agent.Result {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return &agent.Result{AgentName: s.name, RequestID: req.ID, Success: false, Err: s.err}
	}
	return &agent.Result{AgentName: s.name, RequestID: req.ID, Success: true, Output: s.output}
}

func newClassifier(t *testing.T) *classify.Classifier {
	t.Helper()
	c, err := classify.NewClassifier(classify.DefaultRules(), 0.5, nil)
	require.NoError(t, err)
	return c
}

func newTicketStore(t *testing.T) ticket.Store {
	t.Helper()
	s, err := ticket.NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newRequest(text string) *agent.Request {
	return &agent.Request{
		ID:        "req-test",
		Text:      text,
		Timestamp: time.Now(),
	}
}

// newCoordinator builds a coordinator over the standard agent set with
// stubbed content agents.
func newCoordinator(t *testing.T, store ticket.Store, coding, research agent.Agent) *Coordinator {
	t.Helper()
	agents := []agent.Agent{
		agent.NewIssueIdentifier(nil),
		agent.NewTicketer(store, nil, nil),
		coding,
		research,
	}
	c, err := New(newClassifier(t), agents, classify.CategoryResearch, nil, nil)
	require.NoError(t, err)
	return c
}

func TestHandle_CodingRequestUsesCodingAgentAlone(t *testing.T) {
	coding := &stubAgent{name: classify.CategoryCoding, output: "func Reverse(s string) string {}"}
	research := &stubAgent{name: classify.CategoryResearch, output: "unused"}
	c := newCoordinator(t, newTicketStore(t), coding, research)

	resp := c.Handle(t.Context(), newRequest("Write a function to reverse a string"))

	assert.Equal(t, StatusCompleted, resp.Status)
	assert.Equal(t, coding.output, resp.Text)
	assert.Empty(t, resp.Tickets)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, classify.CategoryCoding, resp.Results[0].AgentName)
}

func TestHandle_StackTraceCreatesOpenBugTicket(t *testing.T) {
	store := newTicketStore(t)
	coding := &stubAgent{name: classify.CategoryCoding, output: "unused"}
	research := &stubAgent{name: classify.CategoryResearch, output: "unused"}
	c := newCoordinator(t, store, coding, research)

	resp := c.Handle(t.Context(), newRequest(
		"Traceback (most recent call last):\n  File \"job.py\", line 7\nValueError: invalid literal"))

	require.Equal(t, StatusCompleted, resp.Status)
	require.Len(t, resp.Tickets, 1)

	created := resp.Tickets[0]
	assert.Equal(t, ticket.StatusOpen, created.Status)
	assert.Equal(t, ticket.CategoryBug, created.Category)
	assert.Contains(t, resp.Text, created.ID)

	// Sequence places the identifier strictly before the ticket agent.
	seq := resp.Decision.Sequence
	require.GreaterOrEqual(t, len(seq), 2)
	assert.Equal(t, classify.CategoryIssue, seq[0])
	assert.Equal(t, classify.AgentTicket, seq[1])

	stored, err := store.Get(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, stored.ID)
}

func TestHandle_AmbiguousRequestRoutesToFallback(t *testing.T) {
	coding := &stubAgent{name: classify.CategoryCoding, output: "unused"}
	research := &stubAgent{name: classify.CategoryResearch, output: "fallback answer"}
	c := newCoordinator(t, newTicketStore(t), coding, research)

	resp := c.Handle(t.Context(), newRequest("good morning"))

	assert.Equal(t, StatusCompleted, resp.Status)
	assert.Equal(t, "fallback answer", resp.Text)
	assert.Equal(t, []string{classify.CategoryResearch}, resp.Decision.Sequence)
}

func TestHandle_PrimaryAgentTimeoutIsFatal(t *testing.T) {
	store := newTicketStore(t)
	coding := &stubAgent{name: classify.CategoryCoding, err: inference.ErrTimeout}
	research := &stubAgent{name: classify.CategoryResearch, output: "unused"}
	c := newCoordinator(t, store, coding, research)

	resp := c.Handle(t.Context(), newRequest("Write a function to reverse a string"))

	assert.Equal(t, StatusFailed, resp.Status)
	assert.ErrorIs(t, resp.Err, inference.ErrTimeout)
	assert.Empty(t, resp.Text, "fatal failures surface no partial content")

	// No ticket was created along the way.
	tickets, err := store.List(t.Context(), ticket.Filter{})
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestHandle_NonPrimaryFailureIsPartial(t *testing.T) {
	// Force a compound coding+research classification.
	coding := &stubAgent{name: classify.CategoryCoding, output: "the code"}
	research := &stubAgent{name: classify.CategoryResearch, err: inference.ErrUnavailable}
	c := newCoordinator(t, newTicketStore(t), coding, research)

	resp := c.Handle(t.Context(), newRequest("Write a python function to parse logs and explain how it works"))

	require.True(t, resp.Decision.Compound(), "expected a compound classification, got %v", resp.Decision.Sequence)
	require.Equal(t, classify.CategoryCoding, resp.Decision.Sequence[0], "coding must be primary")
	assert.Equal(t, StatusPartial, resp.Status)
	assert.Contains(t, resp.Text, "Warning")
	assert.Contains(t, resp.Text, "the code")
}

func TestDispatch_ResultsMergeInSequenceOrder(t *testing.T) {
	// Three independent agents finishing in reverse order.
	a := &stubAgent{name: "a", delay: 60 * time.Millisecond, output: "first"}
	b := &stubAgent{name: "b", delay: 30 * time.Millisecond, output: "second"}
	cAgent := &stubAgent{name: "c", output: "third"}

	coord, err := New(newClassifier(t), []agent.Agent{a, b, cAgent}, "a", nil, nil)
	require.NoError(t, err)

	results, err := coord.dispatch(t.Context(), newRequest("anything"), []string{"a", "b", "c"})
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "first", results[0].Output)
	assert.Equal(t, "second", results[1].Output)
	assert.Equal(t, "third", results[2].Output)

	resp := coord.merge(newRequest("anything"), &classify.Decision{}, results)
	idxA := strings.Index(resp.Text, "first")
	idxB := strings.Index(resp.Text, "second")
	idxC := strings.Index(resp.Text, "third")
	assert.Less(t, idxA, idxB)
	assert.Less(t, idxB, idxC)
}

func TestDispatch_UnknownAgentFails(t *testing.T) {
	a := &stubAgent{name: "a", output: "x"}
	coord, err := New(newClassifier(t), []agent.Agent{a}, "a", nil, nil)
	require.NoError(t, err)

	_, err = coord.dispatch(t.Context(), newRequest("anything"), []string{"a", "ghost"})
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestHandle_PublishesEventsInOrder(t *testing.T) {
	b := session.NewBroadcaster(nil)
	defer b.Close()

	coding := &stubAgent{name: classify.CategoryCoding, output: "done"}
	research := &stubAgent{name: classify.CategoryResearch, output: "unused"}
	agents := []agent.Agent{
		agent.NewIssueIdentifier(nil),
		agent.NewTicketer(newTicketStore(t), nil, nil),
		coding,
		research,
	}
	c, err := New(newClassifier(t), agents, classify.CategoryResearch, b, nil)
	require.NoError(t, err)

	sess := b.Connect()
	require.NoError(t, b.Subscribe(sess.ID, "req-test"))

	resp := c.Handle(t.Context(), newRequest("Write a function to reverse a string"))
	require.Equal(t, StatusCompleted, resp.Status)

	var types []string
	timeout := time.After(time.Second)
	for len(types) < 3 {
		select {
		case e := <-sess.Events():
			types = append(types, e.Type)
		case <-timeout:
			t.Fatalf("timed out; got events %v", types)
		}
	}
	assert.Equal(t, []string{session.EventStarted, session.EventAgentResult, session.EventCompleted}, types)
}

func TestHandle_FailedEventPublished(t *testing.T) {
	b := session.NewBroadcaster(nil)
	defer b.Close()

	coding := &stubAgent{name: classify.CategoryCoding, err: inference.ErrTimeout}
	research := &stubAgent{name: classify.CategoryResearch, output: "unused"}
	agents := []agent.Agent{
		agent.NewIssueIdentifier(nil),
		agent.NewTicketer(newTicketStore(t), nil, nil),
		coding,
		research,
	}
	c, err := New(newClassifier(t), agents, classify.CategoryResearch, b, nil)
	require.NoError(t, err)

	sess := b.Connect()
	require.NoError(t, b.Subscribe(sess.ID, "req-test"))

	resp := c.Handle(t.Context(), newRequest("Write a function to reverse a string"))
	require.Equal(t, StatusFailed, resp.Status)

	var last *session.Event
	timeout := time.After(time.Second)
	for done := false; !done; {
		select {
		case e := <-sess.Events():
			last = e
			if e.Type == session.EventFailed || e.Type == session.EventCompleted {
				done = true
			}
		case <-timeout:
			done = true
		}
	}
	require.NotNil(t, last)
	assert.Equal(t, session.EventFailed, last.Type)

	payload, ok := last.Payload.(*FinalPayload)
	require.True(t, ok)
	assert.Contains(t, payload.Error, "timeout")
}

func TestNew_RejectsUnregisteredFallback(t *testing.T) {
	a := &stubAgent{name: "a"}
	_, err := New(newClassifier(t), []agent.Agent{a}, "missing", nil, nil)
	assert.Error(t, err)
}
