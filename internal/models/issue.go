package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IssueStatus is the lifecycle state of an issue. The numeric value drives
// display ordering.
type IssueStatus int

const (
	IssueStatusNew           IssueStatus = 1
	IssueStatusReady         IssueStatus = 2
	IssueStatusInDevelopment IssueStatus = 3
	IssueStatusInReview      IssueStatus = 4
	IssueStatusResolved      IssueStatus = 5
)

type statusInfo struct {
	name  string
	label string
	place string // workflow place name
}

var statusTable = map[IssueStatus]statusInfo{
	IssueStatusNew:           {"NEW", "New", "new"},
	IssueStatusReady:         {"READY", "Ready", "ready"},
	IssueStatusInDevelopment: {"IN_DEVELOPMENT", "In development", "in_development"},
	IssueStatusInReview:      {"IN_REVIEW", "In review", "in_review"},
	IssueStatusResolved:      {"RESOLVED", "Resolved", "resolved"},
}

// AllIssueStatuses lists every status in declaration order.
var AllIssueStatuses = []IssueStatus{
	IssueStatusNew,
	IssueStatusReady,
	IssueStatusInDevelopment,
	IssueStatusInReview,
	IssueStatusResolved,
}

// Valid reports whether s is a defined status.
func (s IssueStatus) Valid() bool {
	_, ok := statusTable[s]
	return ok
}

// String returns the machine name, e.g. "IN_REVIEW".
func (s IssueStatus) String() string {
	if info, ok := statusTable[s]; ok {
		return info.name
	}
	return fmt.Sprintf("IssueStatus(%d)", int(s))
}

// Label returns the human-readable label.
func (s IssueStatus) Label() string {
	return statusTable[s].label
}

// WorkflowPlace returns the place name used by the transition table.
func (s IssueStatus) WorkflowPlace() string {
	return statusTable[s].place
}

// StatusFromWorkflowPlace maps a workflow place name back to a status.
func StatusFromWorkflowPlace(place string) (IssueStatus, bool) {
	for _, s := range AllIssueStatuses {
		if statusTable[s].place == place {
			return s, true
		}
	}
	return 0, false
}

// ParseIssueStatus accepts the numeric value, the machine name or the
// workflow place name.
func ParseIssueStatus(v string) (IssueStatus, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		s := IssueStatus(n)
		if s.Valid() {
			return s, nil
		}
		return 0, fmt.Errorf("unknown issue status: %q", v)
	}
	for _, s := range AllIssueStatuses {
		info := statusTable[s]
		if strings.EqualFold(v, info.name) || v == info.place {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown issue status: %q", v)
}

func (s IssueStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(s))
}

func (s *IssueStatus) UnmarshalJSON(data []byte) error {
	parsed, err := parseEnumJSON(data, ParseIssueStatus)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// IssueType is the kind of work an issue tracks.
type IssueType int

const (
	IssueTypeBug         IssueType = 1
	IssueTypeFeature     IssueType = 2
	IssueTypeTask        IssueType = 3
	IssueTypeImprovement IssueType = 4
)

var typeTable = map[IssueType][2]string{
	IssueTypeBug:         {"BUG", "Bug"},
	IssueTypeFeature:     {"FEATURE", "Feature"},
	IssueTypeTask:        {"TASK", "Task"},
	IssueTypeImprovement: {"IMPROVEMENT", "Improvement"},
}

// AllIssueTypes lists every type in declaration order.
var AllIssueTypes = []IssueType{
	IssueTypeBug,
	IssueTypeFeature,
	IssueTypeTask,
	IssueTypeImprovement,
}

func (t IssueType) Valid() bool {
	_, ok := typeTable[t]
	return ok
}

func (t IssueType) String() string {
	if info, ok := typeTable[t]; ok {
		return info[0]
	}
	return fmt.Sprintf("IssueType(%d)", int(t))
}

func (t IssueType) Label() string {
	return typeTable[t][1]
}

// ParseIssueType accepts the numeric value or the machine name (any case).
func ParseIssueType(v string) (IssueType, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		t := IssueType(n)
		if t.Valid() {
			return t, nil
		}
		return 0, fmt.Errorf("unknown issue type: %q", v)
	}
	for _, t := range AllIssueTypes {
		if strings.EqualFold(v, typeTable[t][0]) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown issue type: %q", v)
}

func (t IssueType) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(t))
}

func (t *IssueType) UnmarshalJSON(data []byte) error {
	parsed, err := parseEnumJSON(data, ParseIssueType)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// parseEnumJSON decodes either a JSON number or a JSON string.
func parseEnumJSON[T any](data []byte, parse func(string) (T, error)) (T, error) {
	var zero T
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return parse(n.String())
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return zero, fmt.Errorf("expected number or string, got %s", string(data))
	}
	return parse(str)
}

// Option is a {label, value} pair for select inputs.
type Option struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// StatusOption returns the option for s.
func StatusOption(s IssueStatus) Option {
	return Option{Label: s.Label(), Value: int(s)}
}

// TypeOption returns the option for t.
func TypeOption(t IssueType) Option {
	return Option{Label: t.Label(), Value: int(t)}
}

// Issue is a trackable unit of work belonging to exactly one project.
type Issue struct {
	ID          string        `json:"id"`
	ProjectID   string        `json:"project"`
	Summary     string        `json:"summary"`
	Description string        `json:"description,omitempty"`
	Status      IssueStatus   `json:"status"`
	Type        IssueType     `json:"type"`
	AssigneeID  string        `json:"assignee,omitempty"`
	ReporterID  string        `json:"reporter"`
	Attachments []*Attachment `json:"attachments"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// IssueSummary is the {id, summary} projection used by bucket listings.
type IssueSummary struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}
