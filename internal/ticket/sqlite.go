// ABOUTME: SQLite implementation of the ticket Store using modernc.org/sqlite
// ABOUTME: Schema is created on open; status updates run in a transaction guarded on current status

package ticket

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// defaultListLimit bounds List results when the filter leaves Limit unset.
const defaultListLimit = 100

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a ticket store at the given path. The schema is
// created if it doesn't exist; parent directories are created as needed.
// Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ticketstore")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Each pooled connection to ":memory:" would get its own database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("ticket store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tickets (
			id             TEXT PRIMARY KEY,
			request_id     TEXT NOT NULL,
			category       TEXT NOT NULL,
			description    TEXT NOT NULL,
			status         TEXT NOT NULL DEFAULT 'open',
			severity       TEXT NOT NULL DEFAULT 'medium',
			assigned_agent TEXT,
			auto_generated INTEGER NOT NULL DEFAULT 0,
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL,

			CHECK (category IN ('bug', 'feature', 'question')),
			CHECK (status IN ('open', 'in_progress', 'resolved', 'closed')),
			CHECK (severity IN ('critical', 'high', 'medium', 'low'))
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
		CREATE INDEX IF NOT EXISTS idx_tickets_request ON tickets(request_id);
		CREATE INDEX IF NOT EXISTS idx_tickets_created ON tickets(created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing ticket store")
	return s.db.Close()
}

// Create inserts a new open ticket from the draft and returns it.
func (s *SQLiteStore) Create(ctx context.Context, draft *Draft) (*Ticket, error) {
	if !ValidCategory(draft.Category) {
		return nil, fmt.Errorf("unknown category %q", draft.Category)
	}
	severity := draft.Severity
	if severity == "" {
		severity = SeverityMedium
	}
	if !ValidSeverity(severity) {
		return nil, fmt.Errorf("unknown severity %q", severity)
	}

	now := time.Now().UTC()
	t := &Ticket{
		ID:            "tic-" + uuid.New().String(),
		RequestID:     draft.RequestID,
		Category:      draft.Category,
		Description:   draft.Description,
		Status:        StatusOpen,
		Severity:      severity,
		AssignedAgent: draft.AssignedAgent,
		AutoGenerated: draft.AutoGenerated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	query := `
		INSERT INTO tickets (id, request_id, category, description, status, severity, assigned_agent, auto_generated, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		t.ID,
		t.RequestID,
		t.Category,
		t.Description,
		t.Status,
		t.Severity,
		t.AssignedAgent,
		boolToInt(t.AutoGenerated),
		t.CreatedAt.Format(time.RFC3339),
		t.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting ticket: %w", err)
	}

	s.logger.Info("ticket created",
		"id", t.ID,
		"category", t.Category,
		"severity", t.Severity,
		"auto_generated", t.AutoGenerated)
	return t, nil
}

// Get retrieves a ticket by ID. Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Ticket, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying ticket: %w", err)
	}
	return t, nil
}

// UpdateStatus transitions a ticket to a new status. Returns ErrNotFound
// for unknown ids and ErrInvalidTransition for disallowed transitions;
// in both cases the stored ticket is unchanged. The read-validate-write
// runs in one transaction, and the final UPDATE is guarded on the status
// that was read, so concurrent transitions on the same id cannot lose
// updates.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id, status string) (*Ticket, error) {
	if !ValidStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM tickets WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying ticket status: %w", err)
	}

	if !ValidTransition(current, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE tickets SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		status, now.Format(time.RFC3339), id, current,
	)
	if err != nil {
		return nil, fmt.Errorf("updating ticket status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: ticket %s changed concurrently", ErrInvalidTransition, id)
	}

	row := tx.QueryRowContext(ctx, selectColumns+` FROM tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if err != nil {
		return nil, fmt.Errorf("re-reading ticket: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Info("ticket status updated", "id", id, "from", current, "to", status)
	return t, nil
}

// List returns tickets newest-first, optionally filtered by status, with
// limit/offset pagination.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*Ticket, error) {
	if filter.Status != "" && !ValidStatus(filter.Status) {
		return nil, fmt.Errorf("unknown status %q", filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := selectColumns + ` FROM tickets`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tickets: %w", err)
	}
	defer rows.Close()

	return collectTickets(rows)
}

// Search returns tickets whose description contains the query,
// case-insensitively, newest-first.
func (s *SQLiteStore) Search(ctx context.Context, query string) ([]*Ticket, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` FROM tickets WHERE description LIKE ? ESCAPE '\' ORDER BY created_at DESC, id DESC LIMIT ?`,
		"%"+escapeLike(query)+"%", defaultListLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching tickets: %w", err)
	}
	defer rows.Close()

	return collectTickets(rows)
}

const selectColumns = `SELECT id, request_id, category, description, status, severity, assigned_agent, auto_generated, created_at, updated_at`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*Ticket, error) {
	var t Ticket
	var assigned sql.NullString
	var autoGen int
	var createdAt, updatedAt string

	err := row.Scan(
		&t.ID,
		&t.RequestID,
		&t.Category,
		&t.Description,
		&t.Status,
		&t.Severity,
		&assigned,
		&autoGen,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.AssignedAgent = assigned.String
	t.AutoGenerated = autoGen != 0
	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &t, nil
}

func collectTickets(rows *sql.Rows) ([]*Ticket, error) {
	tickets := []*Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tickets: %w", err)
	}
	return tickets, nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
