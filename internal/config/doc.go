// Package config handles configuration loading for triage-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	inference:
//	  api_key: "${TRIAGE_API_KEY}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to empty strings.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	inference:
//	  timeout: "30s"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Ticket database:
//
//	database:
//	  path: "/var/lib/triage/tickets.db"
//
// Upstream inference and per-agent models:
//
//	inference:
//	  endpoint: "https://openrouter.ai/api/v1/chat/completions"
//	  api_key: "${TRIAGE_API_KEY}"
//	  timeout: "30s"
//	  coding:
//	    model: "anthropic/claude-sonnet-4"
//	    max_tokens: 1024
//	    temperature: 0.7
//	  research:
//	    model: "openai/gpt-4o"
//
// Classification:
//
//	routing:
//	  rules_path: ""        # optional TOML rule table; builtin when empty
//	  min_confidence: 0.5
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - HTTP address, database path, and inference endpoint are set
//   - Both agent models are named
//   - min_confidence is in (0, 1)
//   - Duration format validity
package config
