// Package server exposes the gateway HTTP API: query intake with SSE
// streaming plus the ticket CRUD and search endpoints.
package server
