package service

import (
	"context"
	"strings"

	"github.com/joescharf/tracker/internal/models"
)

// KeywordSuggester infers an issue type from keywords in the summary and
// description. Bug keywords win over improvement keywords (e.g. "fix the
// slow query" is a bug). Anything unmatched is a task.
type KeywordSuggester struct{}

var (
	bugPhrases = []string{"issue with", "not working", "doesn't work", "does not work"}
	bugWords   = []string{
		"fix ", "fix:", "fixed", "fixes", "fixing",
		"bug", "broken", "crash", "error",
		"regression", "fail", "fault", "defect",
	}
	featureWords = []string{
		"add ", "support ", "introduce", "implement", "new ", "allow ", "enable ",
	}
	improvementWords = []string{
		"improve", "refactor", "cleanup", "clean up", "optimize", "speed up",
		"faster", "simplify", "upgrade", "polish",
	}
)

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func (KeywordSuggester) SuggestType(_ context.Context, summary, description string) (models.IssueType, error) {
	lower := strings.ToLower(summary + " " + description)

	switch {
	case containsAny(lower, bugPhrases), containsAny(lower, bugWords), strings.HasSuffix(strings.TrimSpace(lower), "fix"):
		return models.IssueTypeBug, nil
	case containsAny(lower, improvementWords):
		return models.IssueTypeImprovement, nil
	case containsAny(lower, featureWords):
		return models.IssueTypeFeature, nil
	default:
		return models.IssueTypeTask, nil
	}
}
