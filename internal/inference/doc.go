// Package inference provides the HTTP client for the upstream
// chat-completion endpoint shared by the LLM-backed agents.
package inference
