// Package session fans request lifecycle events out to connected
// client sessions with at-most-once, drop-on-full delivery.
package session
