// ABOUTME: HTTP surface for triage-gateway: query intake with SSE streaming plus ticket endpoints
// ABOUTME: Client disconnects end delivery only; coordination always runs to completion

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"github.com/2389/triage-gateway/internal/agent"
	"github.com/2389/triage-gateway/internal/coordinator"
	"github.com/2389/triage-gateway/internal/session"
	"github.com/2389/triage-gateway/internal/ticket"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Handler coordinates a request to completion. Satisfied by
// *coordinator.Coordinator.
type Handler interface {
	Handle(ctx context.Context, req *agent.Request) *coordinator.Response
}

// Server exposes the gateway over HTTP.
type Server struct {
	addr        string
	coordinator Handler
	tickets     ticket.Store
	broadcaster *session.Broadcaster
	logger      *slog.Logger
}

// New creates a server. Pass nil logger for default.
func New(addr string, coord Handler, tickets ticket.Store, broadcaster *session.Broadcaster, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:        addr,
		coordinator: coord,
		tickets:     tickets,
		broadcaster: broadcaster,
		logger:      logger.With("component", "server"),
	}
}

// Handler returns the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("GET /tickets", s.handleListTickets)
	mux.HandleFunc("GET /tickets/search", s.handleSearchTickets)
	mux.HandleFunc("GET /tickets/{id}", s.handleGetTicket)
	mux.HandleFunc("POST /tickets", s.handleCreateTicket)
	mux.HandleFunc("PATCH /tickets/{id}", s.handleUpdateTicket)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// QueryRequest is the JSON request body for POST /query.
type QueryRequest struct {
	Text string `json:"text"`
}

// finalResponse is the completed-event payload enriched with rendered
// HTML for web clients.
type finalResponse struct {
	RequestID    string           `json:"request_id"`
	Status       string           `json:"status"`
	ResponseText string           `json:"response_text"`
	ResponseHTML string           `json:"response_html,omitempty"`
	Error        string           `json:"error,omitempty"`
	Tickets      []ticketResponse `json:"tickets"`
}

// handleQuery handles POST /query. It accepts the request text, starts
// coordination, and streams events for the request via SSE: started,
// agent_result (one per agent in sequence order), then completed or
// failed with the final payload.
//
// Coordination runs on a context detached from the HTTP request: a
// client disconnect stops delivery to this session only, never the
// agents or ticket writes.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var q QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if q.Text == "" {
		s.sendJSONError(w, http.StatusBadRequest, "text is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sess := s.broadcaster.Connect()
	defer s.broadcaster.Disconnect(sess.ID)

	req := &agent.Request{
		ID:            "req-" + uuid.New().String(),
		Text:          q.Text,
		Timestamp:     time.Now(),
		OriginSession: sess.ID,
	}
	if err := s.broadcaster.Subscribe(sess.ID, req.ID); err != nil {
		s.logger.Error("subscribe failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	go s.coordinator.Handle(context.WithoutCancel(r.Context()), req)

	s.streamEvents(r.Context(), w, flusher, sess)
}

// streamEvents forwards session events as SSE until the request reaches
// a terminal event or the client goes away.
func (s *Server) streamEvents(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sess *session.Session) {
	for {
		select {
		case <-ctx.Done():
			// Client gone. Coordination keeps running.
			return

		case e, ok := <-sess.Events():
			if !ok {
				return
			}
			s.writeSSEEvent(w, e, s.eventData(e))
			flusher.Flush()

			if e.Type == session.EventCompleted || e.Type == session.EventFailed {
				return
			}
		}
	}
}

// eventData shapes an event payload for the wire. Terminal payloads get
// ticket DTOs and markdown rendered to HTML.
func (s *Server) eventData(e *session.Event) any {
	final, ok := e.Payload.(*coordinator.FinalPayload)
	if !ok {
		return e.Payload
	}

	resp := finalResponse{
		RequestID:    final.RequestID,
		Status:       final.Status,
		ResponseText: final.ResponseText,
		Error:        final.Error,
		Tickets:      make([]ticketResponse, 0, len(final.Tickets)),
	}
	for _, t := range final.Tickets {
		resp.Tickets = append(resp.Tickets, toTicketResponse(t))
	}
	if final.ResponseText != "" {
		resp.ResponseHTML = s.renderMarkdown(final.ResponseText)
	}
	return resp
}

// renderMarkdown converts agent markdown output to HTML for web clients.
func (s *Server) renderMarkdown(text string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		s.logger.Error("failed to convert markdown", "error", err)
		return ""
	}
	return buf.String()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// writeSSEEvent writes a single SSE event to the response writer. The
// data is the full {request_id, event_type, payload} envelope so every
// frame tells the client which request it belongs to, not just the
// terminal ones.
func (s *Server) writeSSEEvent(w io.Writer, e *session.Event, payload any) {
	dataJSON, err := json.Marshal(&session.Event{
		RequestID: e.RequestID,
		Type:      e.Type,
		Payload:   payload,
	})
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", e.Type)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
