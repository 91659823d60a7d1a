// ABOUTME: Declarative classification rule table with TOML loading
// ABOUTME: Rule data is kept separate from the matching logic so rules can be tested independently

package classify

import (
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Categories a request can be routed to. Each category maps 1:1 to an
// agent name except CategoryIssue, which implies the ticket agent as a
// dependent follow-up step.
const (
	CategoryIssue    = "issue_identifier"
	CategoryCoding   = "coding"
	CategoryResearch = "research"
)

// AgentTicket is the agent that materializes issue findings as tickets.
// It is never matched directly; the classifier appends it after
// CategoryIssue in compound sequences.
const AgentTicket = "ticket"

// Rule scores a request text against one category. Weight must be in
// (0, 1]; it is the confidence contribution when the pattern matches.
type Rule struct {
	Pattern  string  `toml:"pattern"`
	Category string  `toml:"category"`
	Weight   float64 `toml:"weight"`
}

// compiledRule pairs a rule with its compiled regular expression.
type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// ruleFile is the TOML document shape for an external rule table.
type ruleFile struct {
	Rules []Rule `toml:"rule"`
}

// DefaultRules returns the built-in rule table. Issue patterns come from
// the support-portal keyword list; coding and research patterns cover the
// common phrasings for each agent.
func DefaultRules() []Rule {
	return []Rule{
		// Issue signatures: explicit breakage words and error-report shapes.
		{Pattern: `(?i)\b(error|bug|crash(es|ed|ing)?|broken|fatal|exception|defect|glitch|malfunction)\b`, Category: CategoryIssue, Weight: 0.8},
		{Pattern: `(?i)\b(fail(s|ed|ing|ure)?|not working|doesn'?t work|unresponsive|freezes?|hangs?|timeout)\b`, Category: CategoryIssue, Weight: 0.7},
		{Pattern: `(?i)\b(urgent|emergency|critical|outage|down)\b`, Category: CategoryIssue, Weight: 0.6},
		{Pattern: `(?i)(error|exception)\s*:\s*\S+`, Category: CategoryIssue, Weight: 0.9},
		{Pattern: `(?i)(traceback \(most recent call last\)|panic:|goroutine \d+|stack trace|at [\w$.]+\([\w.]+:\d+\))`, Category: CategoryIssue, Weight: 0.95},
		{Pattern: `(?i)\b(cannot|unable to|failed to)\b`, Category: CategoryIssue, Weight: 0.5},

		// Coding requests.
		{Pattern: `(?i)\b(write|implement|refactor|generate|fix)\b.*\b(function|method|class|script|program|code)\b`, Category: CategoryCoding, Weight: 0.9},
		{Pattern: `(?i)\b(code|function|method|class|api|library|compile|syntax|algorithm)\b`, Category: CategoryCoding, Weight: 0.6},
		{Pattern: `(?i)\b(golang|python|javascript|typescript|rust|java|sql)\b`, Category: CategoryCoding, Weight: 0.7},
		{Pattern: `(?i)\b(regex|unit test|debug)\b`, Category: CategoryCoding, Weight: 0.6},

		// Research / analytics requests.
		{Pattern: `(?i)\b(analy[sz]e|analysis|analytics|metrics|statistics|trends?)\b`, Category: CategoryResearch, Weight: 0.8},
		{Pattern: `(?i)\b(research|summari[sz]e|compare|report|explain|what is|how does)\b`, Category: CategoryResearch, Weight: 0.6},
		{Pattern: `(?i)\b(data|dataset|chart|forecast)\b`, Category: CategoryResearch, Weight: 0.5},
	}
}

// LoadRules reads a TOML rule table from path. Each entry is a [[rule]]
// block with pattern, category, and weight keys.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	var rf ruleFile
	if err := toml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}
	if len(rf.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s contains no rules", path)
	}
	return rf.Rules, nil
}

// compileRules validates and compiles a rule table.
func compileRules(rules []Rule) ([]compiledRule, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if r.Category != CategoryIssue && r.Category != CategoryCoding && r.Category != CategoryResearch {
			return nil, fmt.Errorf("rule %d: unknown category %q", i, r.Category)
		}
		if r.Weight <= 0 || r.Weight > 1 {
			return nil, fmt.Errorf("rule %d: weight %v out of range (0, 1]", i, r.Weight)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: compiling pattern: %w", i, err)
		}
		compiled = append(compiled, compiledRule{Rule: r, re: re})
	}
	return compiled, nil
}
