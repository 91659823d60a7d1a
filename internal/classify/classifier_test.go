// ABOUTME: Tests for classification scoring, sequencing, and tie-break behavior
// ABOUTME: Covers single-category, compound, ambiguous, and rule-table loading cases

package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier(DefaultRules(), 0.5, nil)
	require.NoError(t, err)
	return c
}

func TestClassify_CodingKeywordSelectsCodingAlone(t *testing.T) {
	c := newTestClassifier(t)

	d, err := c.Classify("req-1", "Write a function to reverse a string")
	require.NoError(t, err)

	assert.Equal(t, CategoryCoding, d.Category)
	assert.Equal(t, []string{CategoryCoding}, d.Sequence)
	assert.GreaterOrEqual(t, d.Confidence, 0.5)
	assert.False(t, d.Compound())
}

func TestClassify_IssuePatternPutsIdentifierBeforeTicket(t *testing.T) {
	c := newTestClassifier(t)

	inputs := []string{
		"The login page is broken and throws an error every time",
		"Traceback (most recent call last):\n  File \"app.py\", line 3\nTypeError: bad operand",
		"panic: runtime error: index out of range\ngoroutine 17 [running]:",
	}
	for _, input := range inputs {
		d, err := c.Classify("req-2", input)
		require.NoError(t, err, "input: %s", input)

		idxIssue, idxTicket := -1, -1
		for i, name := range d.Sequence {
			switch name {
			case CategoryIssue:
				idxIssue = i
			case AgentTicket:
				idxTicket = i
			}
		}
		require.NotEqual(t, -1, idxIssue, "issue_identifier missing for %q", input)
		require.NotEqual(t, -1, idxTicket, "ticket missing for %q", input)
		assert.Less(t, idxIssue, idxTicket, "issue_identifier must precede ticket")
	}
}

func TestClassify_IssueAlwaysPrecedesContentAgents(t *testing.T) {
	c := newTestClassifier(t)

	// Both coding and issue signals present.
	d, err := c.Classify("req-3", "My python script crashes with an exception: ValueError, please fix the function")
	require.NoError(t, err)

	require.True(t, d.Compound())
	assert.Equal(t, "compound", d.Category)
	assert.Equal(t, CategoryIssue, d.Sequence[0])
	assert.Equal(t, AgentTicket, d.Sequence[1])
	assert.Contains(t, d.Sequence[2:], CategoryCoding)
}

func TestClassify_LoneIssueMatchKeepsItsCategory(t *testing.T) {
	c := newTestClassifier(t)

	// Only the issue category matches; the ticket step extends the
	// sequence but must not relabel the decision as compound.
	d, err := c.Classify("req-8", "Traceback (most recent call last):\n  File \"job.py\", line 7\nValueError: boom")
	require.NoError(t, err)

	assert.Equal(t, CategoryIssue, d.Category)
	assert.Equal(t, []string{CategoryIssue, AgentTicket}, d.Sequence)
	assert.True(t, d.Compound(), "sequence still has two agents")
}

func TestClassify_ResearchRequest(t *testing.T) {
	c := newTestClassifier(t)

	d, err := c.Classify("req-4", "Analyze last quarter's usage metrics and summarize the trends")
	require.NoError(t, err)
	assert.Equal(t, CategoryResearch, d.Category)
	assert.Equal(t, []string{CategoryResearch}, d.Sequence)
}

func TestClassify_AmbiguousReturnsError(t *testing.T) {
	c := newTestClassifier(t)

	_, err := c.Classify("req-5", "hello there")
	assert.ErrorIs(t, err, ErrAmbiguous)
}

func TestClassify_TieBreakUsesFixedPriority(t *testing.T) {
	rules := []Rule{
		{Pattern: `(?i)widget`, Category: CategoryCoding, Weight: 0.7},
		{Pattern: `(?i)widget`, Category: CategoryResearch, Weight: 0.7},
	}
	c, err := NewClassifier(rules, 0.5, nil)
	require.NoError(t, err)

	d, err := c.Classify("req-6", "widget")
	require.NoError(t, err)

	// Equal scores: coding outranks research.
	assert.Equal(t, CategoryCoding, d.Sequence[0])
	assert.Equal(t, CategoryResearch, d.Sequence[1])
}

func TestScores_AccumulateWithoutExceedingOne(t *testing.T) {
	c := newTestClassifier(t)

	scores := c.Scores("fatal error: crash, bug, broken, exception, failed to start, timeout")
	assert.Greater(t, scores[CategoryIssue], 0.9)
	assert.LessOrEqual(t, scores[CategoryIssue], 1.0)
}

func TestNewClassifier_RejectsBadRules(t *testing.T) {
	cases := []struct {
		name  string
		rules []Rule
	}{
		{"unknown category", []Rule{{Pattern: "x", Category: "bogus", Weight: 0.5}}},
		{"zero weight", []Rule{{Pattern: "x", Category: CategoryCoding, Weight: 0}}},
		{"weight above one", []Rule{{Pattern: "x", Category: CategoryCoding, Weight: 1.5}}},
		{"invalid regex", []Rule{{Pattern: "([", Category: CategoryCoding, Weight: 0.5}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewClassifier(tc.rules, 0.5, nil)
			assert.Error(t, err)
		})
	}
}

func TestLoadRules_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.toml")
	content := `
[[rule]]
pattern = '(?i)\bdeploy\b'
category = "coding"
weight = 0.8

[[rule]]
pattern = '(?i)\bquarterly\b'
category = "research"
weight = 0.6
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, CategoryCoding, rules[0].Category)
	assert.Equal(t, 0.8, rules[0].Weight)

	c, err := NewClassifier(rules, 0.5, nil)
	require.NoError(t, err)

	d, err := c.Classify("req-7", "deploy the service")
	require.NoError(t, err)
	assert.Equal(t, CategoryCoding, d.Category)
}

func TestLoadRules_MissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadRules_EmptyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.toml")
	require.NoError(t, os.WriteFile(path, []byte("# no rules\n"), 0o644))

	_, err := LoadRules(path)
	assert.Error(t, err)
}
