// ABOUTME: Ticket HTTP handlers: list, get, create, status transition, and search
// ABOUTME: Store errors map to specific statuses: 404 NotFound, 409 InvalidTransition

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/triage-gateway/internal/ticket"
)

// minSearchLength is the minimum search query length, matching the
// portal this replaces.
const minSearchLength = 2

// ticketResponse is the JSON shape for a single ticket.
type ticketResponse struct {
	ID            string `json:"id"`
	RequestID     string `json:"request_id,omitempty"`
	Category      string `json:"category"`
	Description   string `json:"description"`
	Status        string `json:"status"`
	Severity      string `json:"severity"`
	AssignedAgent string `json:"assigned_agent,omitempty"`
	AutoGenerated bool   `json:"auto_generated"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// ListTicketsResponse is the JSON response for GET /tickets.
type ListTicketsResponse struct {
	Tickets []ticketResponse `json:"tickets"`
}

// CreateTicketRequest is the JSON request body for POST /tickets.
type CreateTicketRequest struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity,omitempty"`
}

// UpdateTicketRequest is the JSON request body for PATCH /tickets/{id}.
type UpdateTicketRequest struct {
	Status string `json:"status"`
}

func toTicketResponse(t *ticket.Ticket) ticketResponse {
	return ticketResponse{
		ID:            t.ID,
		RequestID:     t.RequestID,
		Category:      t.Category,
		Description:   t.Description,
		Status:        t.Status,
		Severity:      t.Severity,
		AssignedAgent: t.AssignedAgent,
		AutoGenerated: t.AutoGenerated,
		CreatedAt:     t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) writeTicketList(w http.ResponseWriter, tickets []*ticket.Ticket) {
	resp := ListTicketsResponse{Tickets: make([]ticketResponse, 0, len(tickets))}
	for _, t := range tickets {
		resp.Tickets = append(resp.Tickets, toTicketResponse(t))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleListTickets handles GET /tickets?status=&limit=&offset=.
func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	filter := ticket.Filter{Status: r.URL.Query().Get("status")}

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.sendJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.sendJSONError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = n
	}

	tickets, err := s.tickets.List(r.Context(), filter)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeTicketList(w, tickets)
}

// handleGetTicket handles GET /tickets/{id}.
func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	t, err := s.tickets.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, ticket.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "ticket not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get ticket", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toTicketResponse(t))
}

// handleCreateTicket handles POST /tickets for manually filed tickets.
func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req CreateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Description == "" {
		s.sendJSONError(w, http.StatusBadRequest, "description is required")
		return
	}
	if !ticket.ValidCategory(req.Category) {
		s.sendJSONError(w, http.StatusBadRequest, "category must be bug, feature, or question")
		return
	}

	created, err := s.tickets.Create(r.Context(), &ticket.Draft{
		Category:    req.Category,
		Description: req.Description,
		Severity:    req.Severity,
	})
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toTicketResponse(created))
}

// handleUpdateTicket handles PATCH /tickets/{id} status transitions.
// Invalid transitions return 409 without mutating the ticket.
func (s *Server) handleUpdateTicket(w http.ResponseWriter, r *http.Request) {
	var req UpdateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Status == "" {
		s.sendJSONError(w, http.StatusBadRequest, "status is required")
		return
	}

	updated, err := s.tickets.UpdateStatus(r.Context(), r.PathValue("id"), req.Status)
	switch {
	case errors.Is(err, ticket.ErrNotFound):
		s.sendJSONError(w, http.StatusNotFound, "ticket not found")
		return
	case errors.Is(err, ticket.ErrInvalidTransition):
		s.sendJSONError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Error("failed to update ticket", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toTicketResponse(updated))
}

// handleSearchTickets handles GET /tickets/search?q=.
func (s *Server) handleSearchTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if len(q) < minSearchLength {
		s.sendJSONError(w, http.StatusBadRequest, "search query must be at least 2 characters")
		return
	}

	tickets, err := s.tickets.Search(r.Context(), q)
	if err != nil {
		s.logger.Error("ticket search failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeTicketList(w, tickets)
}
