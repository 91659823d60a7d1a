// ABOUTME: LLM-backed content agents (coding, research)
// ABOUTME: Variants differ only in prompt template and model options; gateway errors become failed Results

package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/triage-gateway/internal/classify"
	"github.com/2389/triage-gateway/internal/inference"
)

// Completer is the inference capability an LLM agent needs. Satisfied by
// *inference.Client.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts inference.Options) (string, error)
}

const codingTemplate = `You are a coding assistant. Produce working code or a precise technical explanation for the request below. Prefer complete, runnable examples.

Request:
%s`

const researchTemplate = `You are a research and analytics assistant. Answer the request below with factual, analytical text. Cite concrete figures where you have them and say so when you are uncertain.

Request:
%s`

// LLMAgent is a content agent backed by the inference gateway. Variants
// differ only in their prompt template and model options.
type LLMAgent struct {
	name     string
	template string
	client   Completer
	opts     inference.Options
	logger   *slog.Logger
}

// NewCodingAgent creates the coding agent with the given model options.
func NewCodingAgent(client Completer, opts inference.Options, logger *slog.Logger) *LLMAgent {
	return newLLMAgent(classify.CategoryCoding, codingTemplate, client, opts, logger)
}

// NewResearchAgent creates the research/analytics agent with the given
// model options.
func NewResearchAgent(client Completer, opts inference.Options, logger *slog.Logger) *LLMAgent {
	return newLLMAgent(classify.CategoryResearch, researchTemplate, client, opts, logger)
}

func newLLMAgent(name, template string, client Completer, opts inference.Options, logger *slog.Logger) *LLMAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMAgent{
		name:     name,
		template: template,
		client:   client,
		opts:     opts,
		logger:   logger.With("component", "agent", "agent", name),
	}
}

// Name returns the agent's routing name.
func (a *LLMAgent) Name() string { return a.name }

// Handle builds the role prompt and calls the gateway. A gateway error is
// wrapped into a failed Result rather than propagated.
func (a *LLMAgent) Handle(ctx context.Context, req *Request, prior *Result) *Result {
	prompt := fmt.Sprintf(a.template, req.Text)

	text, err := a.client.Complete(ctx, prompt, a.opts)
	if err != nil {
		a.logger.Warn("gateway call failed", "request_id", req.ID, "error", err)
		return failure(a.name, req, err)
	}

	return &Result{
		AgentName: a.name,
		RequestID: req.ID,
		Output:    text,
		Success:   true,
	}
}
