// ABOUTME: Rule-based request classifier producing immutable routing decisions
// ABOUTME: Scores request text per category, tie-breaks by fixed priority, sequences compound requests

package classify

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAmbiguous is returned when no category clears the confidence
// threshold. The coordinator routes such requests to the fallback agent.
var ErrAmbiguous = errors.New("classification ambiguous")

// categoryPriority is the fixed tie-break order: higher wins.
var categoryPriority = map[string]int{
	CategoryIssue:    3,
	CategoryCoding:   2,
	CategoryResearch: 1,
}

// Decision is the routing decision for a single request. Produced once
// per request and never mutated; re-classification requires a new request.
type Decision struct {
	RequestID  string
	Category   string // top category, or "compound" when several matched
	Confidence float64
	Sequence   []string // ordered agent names to invoke
}

// Compound reports whether the decision requires more than one agent.
func (d *Decision) Compound() bool {
	return len(d.Sequence) > 1
}

// Classifier scores request text against a compiled rule table.
type Classifier struct {
	rules     []compiledRule
	threshold float64
	logger    *slog.Logger
}

// NewClassifier compiles the given rule table. The threshold is the
// minimum per-category confidence for a category to participate in
// routing; it must be in (0, 1).
func NewClassifier(rules []Rule, threshold float64, logger *slog.Logger) (*Classifier, error) {
	if threshold <= 0 || threshold >= 1 {
		return nil, fmt.Errorf("threshold %v out of range (0, 1)", threshold)
	}
	compiled, err := compileRules(rules)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		rules:     compiled,
		threshold: threshold,
		logger:    logger.With("component", "classify"),
	}, nil
}

// Scores returns the per-category confidence for the given text.
// Confidences combine matched rule weights noisy-or style, so several
// weak matches accumulate but never exceed 1.
func (c *Classifier) Scores(text string) map[string]float64 {
	miss := map[string]float64{
		CategoryIssue:    1,
		CategoryCoding:   1,
		CategoryResearch: 1,
	}
	for _, r := range c.rules {
		if r.re.MatchString(text) {
			miss[r.Category] *= 1 - r.Weight
		}
	}
	scores := make(map[string]float64, len(miss))
	for cat, m := range miss {
		scores[cat] = 1 - m
	}
	return scores
}

// Classify produces the routing decision for a request. Returns
// ErrAmbiguous when no category clears the threshold.
//
// Sequencing: issue_identifier always precedes the ticket agent, which
// precedes content agents; content agents are ordered by priority. The
// ticket agent is appended automatically whenever issue_identifier is in
// the sequence, since ticket creation depends on its finding.
func (c *Classifier) Classify(requestID, text string) (*Decision, error) {
	scores := c.Scores(text)

	var matched []string
	for cat, score := range scores {
		if score >= c.threshold {
			matched = append(matched, cat)
		}
	}
	if len(matched) == 0 {
		c.logger.Debug("no category cleared threshold",
			"request_id", requestID,
			"threshold", c.threshold)
		return nil, fmt.Errorf("%w: no category cleared confidence %.2f", ErrAmbiguous, c.threshold)
	}

	sortByPriorityDesc(matched, scores)

	top := matched[0]
	decision := &Decision{
		RequestID:  requestID,
		Category:   top,
		Confidence: scores[top],
	}

	// Issue identification (and its dependent ticket step) always runs
	// before content agents, regardless of relative score.
	for _, cat := range matched {
		if cat == CategoryIssue {
			decision.Sequence = append(decision.Sequence, CategoryIssue, AgentTicket)
		}
	}
	for _, cat := range matched {
		if cat != CategoryIssue {
			decision.Sequence = append(decision.Sequence, cat)
		}
	}
	// Compound means several categories matched. A lone issue match keeps
	// its category even though the ticket step makes the sequence longer.
	if len(matched) > 1 {
		decision.Category = "compound"
	}

	c.logger.Debug("request classified",
		"request_id", requestID,
		"category", decision.Category,
		"confidence", decision.Confidence,
		"sequence", decision.Sequence)

	return decision, nil
}

// sortByPriorityDesc orders categories by score descending, breaking
// ties with the fixed priority order (issue > coding > research).
func sortByPriorityDesc(cats []string, scores map[string]float64) {
	for i := 1; i < len(cats); i++ {
		for j := i; j > 0; j-- {
			a, b := cats[j-1], cats[j]
			if scores[b] > scores[a] || (scores[b] == scores[a] && categoryPriority[b] > categoryPriority[a]) {
				cats[j-1], cats[j] = cats[j], cats[j-1]
			} else {
				break
			}
		}
	}
}
