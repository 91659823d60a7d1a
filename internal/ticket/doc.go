// Package ticket provides the SQLite-backed ticket store and the
// monotonic ticket status lifecycle.
//
// Tickets move open -> in_progress -> resolved or closed, one step at a
// time. Resolved and closed are terminal; tickets are never deleted.
package ticket
