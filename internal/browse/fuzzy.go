package browse

import (
	"strings"
	"sync"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"

	"github.com/joescharf/tracker/internal/models"
)

var fuzzyInit sync.Once

// fuzzyFilter returns a predicate matching issues whose summary or id
// fuzzy-matches query, or whose id starts with it. An empty query returns
// nil so every issue stays visible.
func fuzzyFilter(query string) func(*models.Issue) bool {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	fuzzyInit.Do(func() { algo.Init("default") })

	pattern := []rune(strings.ToLower(query))
	slab := util.MakeSlab(100*1024, 2048)
	matches := func(text string) bool {
		chars := util.ToChars([]byte(text))
		result, _ := algo.FuzzyMatchV2(false, true, true, &chars, pattern, false, slab)
		return result.Start >= 0 && result.Score > 0
	}
	return func(issue *models.Issue) bool {
		return matches(issue.Summary) || strings.HasPrefix(strings.ToLower(issue.ID), string(pattern))
	}
}
