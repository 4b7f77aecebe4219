// Package workflow holds the issue status transition table and answers
// which statuses an issue may move to next.
package workflow

import (
	"sort"

	"github.com/joescharf/tracker/internal/models"
)

// Transition is a named one-step move between two workflow places.
type Transition struct {
	Name string
	From string
	To   string
}

// DefaultTransitions is the issue lifecycle graph. Resolved issues can be
// reopened into development but never sent back to new.
var DefaultTransitions = []Transition{
	{Name: "ready", From: "new", To: "ready"},
	{Name: "start_from_new", From: "new", To: "in_development"},
	{Name: "back_to_new", From: "ready", To: "new"},
	{Name: "start", From: "ready", To: "in_development"},
	{Name: "postpone", From: "in_development", To: "ready"},
	{Name: "request_review", From: "in_development", To: "in_review"},
	{Name: "reject", From: "in_review", To: "in_development"},
	{Name: "resolve", From: "in_review", To: "resolved"},
	{Name: "reopen", From: "resolved", To: "in_development"},
}

// Workflow is a static adjacency map from place to outgoing transitions.
type Workflow struct {
	outgoing map[string][]Transition
}

// New builds a Workflow from the given transitions. Declaration order is
// kept per source place.
func New(transitions []Transition) *Workflow {
	w := &Workflow{outgoing: make(map[string][]Transition)}
	for _, t := range transitions {
		w.outgoing[t.From] = append(w.outgoing[t.From], t)
	}
	return w
}

// Default returns the workflow built from DefaultTransitions.
func Default() *Workflow {
	return New(DefaultTransitions)
}

// EnabledTransitions returns the transitions leaving the given status.
func (w *Workflow) EnabledTransitions(status models.IssueStatus) []Transition {
	return w.outgoing[status.WorkflowPlace()]
}

// EnabledStatuses returns the statuses selectable for an issue in the given
// status: the current one plus every one-step target, each exactly once,
// sorted ascending by value. Targets that do not map to a known status are
// skipped.
func (w *Workflow) EnabledStatuses(current models.IssueStatus) []models.Option {
	seen := map[models.IssueStatus]bool{current: true}
	options := []models.Option{models.StatusOption(current)}

	for _, t := range w.EnabledTransitions(current) {
		to, ok := models.StatusFromWorkflowPlace(t.To)
		if !ok || seen[to] {
			continue
		}
		seen[to] = true
		options = append(options, models.StatusOption(to))
	}

	sort.SliceStable(options, func(i, j int) bool {
		return options[i].Value < options[j].Value
	})
	return options
}

// CanTransition reports whether an issue may move from one status to
// another. Staying in place is always allowed.
func (w *Workflow) CanTransition(from, to models.IssueStatus) bool {
	if from == to {
		return true
	}
	for _, t := range w.EnabledTransitions(from) {
		if t.To == to.WorkflowPlace() {
			return true
		}
	}
	return false
}

// Statuses returns every status as a select option in declaration order.
func Statuses() []models.Option {
	out := make([]models.Option, len(models.AllIssueStatuses))
	for i, s := range models.AllIssueStatuses {
		out[i] = models.StatusOption(s)
	}
	return out
}

// Types returns every issue type as a select option in declaration order.
func Types() []models.Option {
	out := make([]models.Option, len(models.AllIssueTypes))
	for i, t := range models.AllIssueTypes {
		out[i] = models.TypeOption(t)
	}
	return out
}
