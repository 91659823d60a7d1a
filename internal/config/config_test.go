// ABOUTME: Tests for configuration loading, env expansion, defaults, and validation
// ABOUTME: Uses temp YAML files per case

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "/tmp/triage.db"
inference:
  endpoint: "https://openrouter.ai/api/v1/chat/completions"
  api_key: "${TRIAGE_TEST_API_KEY}"
  timeout: "45s"
  coding:
    model: "meta-llama/llama-3.1-8b-instruct:free"
    max_tokens: 2048
  research:
    model: "meta-llama/llama-3.1-8b-instruct:free"
    temperature: 0.3
routing:
  min_confidence: 0.6
logging:
  level: "debug"
  format: "json"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	t.Setenv("TRIAGE_TEST_API_KEY", "sk-test-123")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "/tmp/triage.db", cfg.Database.Path)
	assert.Equal(t, "sk-test-123", cfg.Inference.APIKey)
	assert.Equal(t, 45*time.Second, cfg.Inference.Timeout)
	assert.Equal(t, 2048, cfg.Inference.Coding.MaxTokens)
	require.NotNil(t, cfg.Inference.Research.Temperature)
	assert.Equal(t, 0.3, *cfg.Inference.Research.Temperature)
	assert.Equal(t, 0.6, cfg.Routing.MinConfidence)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "triage.db"
inference:
  endpoint: "http://localhost:11434/v1/chat/completions"
  coding:
    model: "coder"
  research:
    model: "researcher"
`))
	require.NoError(t, err)

	assert.Equal(t, DefaultTimeout, cfg.Inference.Timeout)
	assert.Equal(t, DefaultMaxTokens, cfg.Inference.Coding.MaxTokens)
	require.NotNil(t, cfg.Inference.Research.Temperature)
	assert.Equal(t, DefaultTemperature, *cfg.Inference.Research.Temperature)
	assert.Equal(t, DefaultMinConfidence, cfg.Routing.MinConfidence)
}

func TestLoad_ExplicitZeroTemperatureSurvives(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "triage.db"
inference:
  endpoint: "http://localhost:11434/v1/chat/completions"
  coding:
    model: "coder"
    temperature: 0
  research:
    model: "researcher"
`))
	require.NoError(t, err)

	require.NotNil(t, cfg.Inference.Coding.Temperature)
	assert.Equal(t, 0.0, *cfg.Inference.Coding.Temperature, "explicit 0 must not be replaced by the default")
	require.NotNil(t, cfg.Inference.Research.Temperature)
	assert.Equal(t, DefaultTemperature, *cfg.Inference.Research.Temperature)
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing http_addr", `
database: {path: "t.db"}
inference:
  endpoint: "http://x"
  coding: {model: "a"}
  research: {model: "b"}
`},
		{"missing database path", `
server: {http_addr: ":8080"}
inference:
  endpoint: "http://x"
  coding: {model: "a"}
  research: {model: "b"}
`},
		{"missing endpoint", `
server: {http_addr: ":8080"}
database: {path: "t.db"}
inference:
  coding: {model: "a"}
  research: {model: "b"}
`},
		{"missing coding model", `
server: {http_addr: ":8080"}
database: {path: "t.db"}
inference:
  endpoint: "http://x"
  research: {model: "b"}
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `
server: {http_addr: ":8080"}
database: {path: "t.db"}
inference:
  endpoint: "http://x"
  timeout: "soon"
  coding: {model: "a"}
  research: {model: "b"}
`))
	assert.Error(t, err)
}

func TestLoad_OutOfRangeConfidence(t *testing.T) {
	_, err := Load(writeConfig(t, `
server: {http_addr: ":8080"}
database: {path: "t.db"}
inference:
  endpoint: "http://x"
  coding: {model: "a"}
  research: {model: "b"}
routing:
  min_confidence: 1.5
`))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
