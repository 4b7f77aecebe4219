package health

import (
	"time"

	"github.com/joescharf/tracker/internal/models"
)

// ProgressScore represents the computed delivery progress of a project.
type ProgressScore struct {
	Total           int `json:"total"`
	Completion      int `json:"completion"`      // 0-50
	Flow            int `json:"flow"`            // 0-25
	ActivityRecency int `json:"activityRecency"` // 0-25

	NotStarted int `json:"notStarted"`
	InProgress int `json:"inProgress"`
	Resolved   int `json:"resolved"`
}

// Scorer computes progress scores for projects.
type Scorer struct {
	now func() time.Time
}

// NewScorer returns a new progress Scorer.
func NewScorer() *Scorer {
	return &Scorer{now: time.Now}
}

// Score computes a progress score (0-100) from a project's issues.
func (s *Scorer) Score(issues []*models.Issue) *ProgressScore {
	p := &ProgressScore{}
	var lastActivity time.Time
	for _, i := range issues {
		switch i.Status {
		case models.IssueStatusNew, models.IssueStatusReady:
			p.NotStarted++
		case models.IssueStatusInDevelopment, models.IssueStatusInReview:
			p.InProgress++
		case models.IssueStatusResolved:
			p.Resolved++
		}
		if i.UpdatedAt.After(lastActivity) {
			lastActivity = i.UpdatedAt
		}
	}

	// Completion (50 pts) - share of resolved issues
	p.Completion = scoreCompletion(p.Resolved, len(issues), 50)

	// Flow (25 pts) - fewer issues parked in review/development at once
	p.Flow = scoreFlow(p.InProgress, 25)

	// Activity recency (25 pts) - more recent issue updates = more points
	p.ActivityRecency = s.scoreRecency(lastActivity, 25)

	p.Total = p.Completion + p.Flow + p.ActivityRecency
	return p
}

func scoreCompletion(resolved, total, maxPoints int) int {
	if total == 0 {
		return maxPoints // nothing to do
	}
	return maxPoints * resolved / total
}

// scoreFlow penalizes too much work in progress.
func scoreFlow(inProgress, maxPoints int) int {
	switch {
	case inProgress <= 3:
		return maxPoints
	case inProgress <= 5:
		return int(float64(maxPoints) * 0.8)
	case inProgress <= 10:
		return int(float64(maxPoints) * 0.6)
	case inProgress <= 20:
		return int(float64(maxPoints) * 0.4)
	default:
		return int(float64(maxPoints) * 0.2)
	}
}

// scoreRecency converts time since last activity to points.
func (s *Scorer) scoreRecency(t time.Time, maxPoints int) int {
	if t.IsZero() {
		return 0
	}
	days := int(s.now().Sub(t).Hours() / 24)
	switch {
	case days <= 1:
		return maxPoints
	case days <= 3:
		return int(float64(maxPoints) * 0.9)
	case days <= 7:
		return int(float64(maxPoints) * 0.75)
	case days <= 14:
		return int(float64(maxPoints) * 0.6)
	case days <= 30:
		return int(float64(maxPoints) * 0.4)
	case days <= 90:
		return int(float64(maxPoints) * 0.2)
	default:
		return int(float64(maxPoints) * 0.1)
	}
}
