// ABOUTME: Issue identifier agent matching request text against known issue signatures
// ABOUTME: Pure pattern matching, no gateway call; produces a candidate ticket category, severity, and confidence

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/2389/triage-gateway/internal/classify"
	"github.com/2389/triage-gateway/internal/ticket"
)

// maxIssueSummary bounds the request excerpt carried into a ticket
// description.
const maxIssueSummary = 200

// Finding is the issue identifier's structured verdict, passed to the
// ticket agent as dispatch context.
type Finding struct {
	Detected    bool
	Category    string // ticket category: bug, feature, question
	Severity    string
	Description string
	Confidence  float64
}

// signature maps a text pattern to a candidate ticket category.
type signature struct {
	re         *regexp.Regexp
	category   string
	confidence float64
}

// issueSignatures are the known issue shapes, checked in order; the first
// match decides the category. Bug shapes (error reports, breakage words)
// come first since a stack trace can also contain question phrasing.
var issueSignatures = []signature{
	{regexp.MustCompile(`(?i)(traceback \(most recent call last\)|panic:|goroutine \d+|stack trace|at [\w$.]+\([\w.]+:\d+\))`), ticket.CategoryBug, 0.95},
	{regexp.MustCompile(`(?i)(error|exception)\s*:\s*\S+`), ticket.CategoryBug, 0.9},
	{regexp.MustCompile(`(?i)\b(error|bug|crash(es|ed|ing)?|broken|fatal|exception|defect|glitch|malfunction|unresponsive|freezes?|hangs?)\b`), ticket.CategoryBug, 0.8},
	{regexp.MustCompile(`(?i)\b(fail(s|ed|ing|ure)?|not working|doesn'?t work|down|outage|timeout)\b`), ticket.CategoryBug, 0.7},
	{regexp.MustCompile(`(?i)\b(feature request|would be (nice|great)|please add|can you add|support for)\b`), ticket.CategoryFeature, 0.75},
	{regexp.MustCompile(`(?i)\b(how (do|can) (i|we)|help me|help with|question about)\b`), ticket.CategoryQuestion, 0.6},
	{regexp.MustCompile(`(?i)\b(cannot|unable to|failed to)\b`), ticket.CategoryBug, 0.6},
}

// severityIndicators determine ticket severity from the text. High
// indicators win over medium; anything else defaults to medium severity,
// matching the behavior of the portal this replaces.
var severityIndicators = map[string][]string{
	ticket.SeverityCritical: {"urgent", "critical", "emergency", "fatal", "immediately", "security", "breach", "data loss"},
	ticket.SeverityHigh:     {"important", "significant", "moderate", "soon", "affecting", "performance"},
}

// IssueIdentifier pattern-matches request text against the issue
// signature table. It never calls the inference gateway.
type IssueIdentifier struct {
	logger *slog.Logger
}

// NewIssueIdentifier creates the issue identifier agent.
func NewIssueIdentifier(logger *slog.Logger) *IssueIdentifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &IssueIdentifier{
		logger: logger.With("component", "agent", "agent", classify.CategoryIssue),
	}
}

// Name returns the agent's routing name.
func (a *IssueIdentifier) Name() string { return classify.CategoryIssue }

// Handle inspects the request text and reports whether it matches a known
// issue signature. Always succeeds; a non-match is a successful Result
// with Finding.Detected == false.
func (a *IssueIdentifier) Handle(ctx context.Context, req *Request, prior *Result) *Result {
	finding := Identify(req.Text)

	output := "no issue detected"
	if finding.Detected {
		output = fmt.Sprintf("detected %s (%s severity, confidence %.2f): %s",
			finding.Category, finding.Severity, finding.Confidence, finding.Description)
		a.logger.Info("issue detected",
			"request_id", req.ID,
			"category", finding.Category,
			"severity", finding.Severity)
	}

	return &Result{
		AgentName: classify.CategoryIssue,
		RequestID: req.ID,
		Output:    output,
		Success:   true,
		Finding:   finding,
	}
}

// Identify matches text against the signature table and infers severity.
// Exported separately from the Agent so the rules can be tested without
// constructing an agent.
func Identify(text string) *Finding {
	for _, sig := range issueSignatures {
		if sig.re.MatchString(text) {
			return &Finding{
				Detected:    true,
				Category:    sig.category,
				Severity:    inferSeverity(text),
				Description: summarize(text),
				Confidence:  sig.confidence,
			}
		}
	}
	return &Finding{Detected: false}
}

func inferSeverity(text string) string {
	lower := strings.ToLower(text)
	for _, word := range severityIndicators[ticket.SeverityCritical] {
		if strings.Contains(lower, word) {
			return ticket.SeverityCritical
		}
	}
	for _, word := range severityIndicators[ticket.SeverityHigh] {
		if strings.Contains(lower, word) {
			return ticket.SeverityHigh
		}
	}
	return ticket.SeverityMedium
}

func summarize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	// Truncate on rune boundaries so multi-byte characters survive intact.
	runes := []rune(text)
	if len(runes) > maxIssueSummary {
		return string(runes[:maxIssueSummary]) + "..."
	}
	return text
}
