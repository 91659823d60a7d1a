// Package agent defines the specialized agents a request can be routed to.
//
// # Overview
//
// Every agent implements the same interface:
//
//	type Agent interface {
//	    Name() string
//	    Handle(ctx context.Context, req *Request, prior *Result) *Result
//	}
//
// Handle never returns an error; failures are captured in the Result so
// that one agent's failure cannot abort the others mid-dispatch. The
// prior argument carries the previous result within a dependent chain
// and is nil for independent agents.
//
// # Agents
//
// Four agents ship with the gateway:
//
//   - coding: LLM-backed code generation and debugging help
//   - research: LLM-backed analysis and summarization
//   - issue_identifier: deterministic issue detection over the request text
//   - ticket: files a ticket from the identifier's finding
//
// The coding and research agents share the LLMAgent implementation and
// differ only in name, prompt template, and model options. They call the
// upstream completion endpoint through the inference client.
//
// # Issue Detection
//
// The issue identifier matches the request text against an ordered
// signature table. The first matching signature wins and fixes the
// finding's category (bug, feature, question) and confidence. Severity
// is scored separately from indicator words, defaulting to medium.
// Detection is pure string matching: no model call, no I/O, same input
// always yields the same finding.
//
// # Ticket Chain
//
// The ticket agent only ever runs directly after the issue identifier.
// It reads the finding from the prior result and creates an open ticket
// in the store, marked auto_generated. When the identifier found
// nothing, the ticket agent succeeds without creating anything.
package agent
