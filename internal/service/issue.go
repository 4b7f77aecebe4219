package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/notify"
	"github.com/joescharf/tracker/internal/store"
	"github.com/joescharf/tracker/internal/workflow"
)

// Actor is the request-scoped identity a query runs under: who is asking
// and which project they are looking at.
type Actor struct {
	UserID    string
	ProjectID string
}

// TypeSuggester proposes an issue type from free text.
type TypeSuggester interface {
	SuggestType(ctx context.Context, summary, description string) (models.IssueType, error)
}

// IssueService implements issue creation, workflow-aware updates and the
// bucketed dashboard listings.
type IssueService struct {
	store     store.Store
	workflow  *workflow.Workflow
	bus       *notify.Bus
	enforce   bool
	suggester TypeSuggester
}

// IssueOption configures an IssueService.
type IssueOption func(*IssueService)

// WithPermissiveTransitions disables transition checks on status updates;
// any defined status is accepted.
func WithPermissiveTransitions() IssueOption {
	return func(s *IssueService) { s.enforce = false }
}

// WithTypeSuggester replaces the keyword heuristic used by SuggestType.
func WithTypeSuggester(ts TypeSuggester) IssueOption {
	return func(s *IssueService) {
		if ts != nil {
			s.suggester = ts
		}
	}
}

// NewIssueService creates an IssueService. A nil workflow uses the default
// transition table; a nil bus drops notifications.
func NewIssueService(st store.Store, wf *workflow.Workflow, bus *notify.Bus, opts ...IssueOption) *IssueService {
	if wf == nil {
		wf = workflow.Default()
	}
	s := &IssueService{
		store:     st,
		workflow:  wf,
		bus:       bus,
		enforce:   true,
		suggester: KeywordSuggester{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnforcesTransitions reports whether status updates are checked against
// the workflow.
func (s *IssueService) EnforcesTransitions() bool { return s.enforce }

// FindByID returns a single issue with its attachments.
func (s *IssueService) FindByID(ctx context.Context, id string) (*models.Issue, error) {
	return s.store.GetIssue(ctx, id)
}

// FindByQuery returns issues whose id or summary contains q.
func (s *IssueService) FindByQuery(ctx context.Context, q string) ([]*models.Issue, error) {
	issues, err := s.store.ListIssues(ctx, store.IssueListFilter{Query: strings.TrimSpace(q)})
	if err != nil {
		return nil, err
	}
	if issues == nil {
		issues = []*models.Issue{}
	}
	return issues, nil
}

// ListProject returns every issue of a project in storage order.
func (s *IssueService) ListProject(ctx context.Context, projectRef string) ([]*models.Issue, error) {
	return s.SearchProject(ctx, projectRef, "")
}

// SearchProject is FindByQuery restricted to one project. The project may
// be given by id, name or IRI; an unknown project is ErrNotFound.
func (s *IssueService) SearchProject(ctx context.Context, projectRef, q string) ([]*models.Issue, error) {
	ref, err := ParseRef(projectRef, "projects")
	if err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(ctx, ref)
	if err != nil {
		return nil, err
	}
	issues, err := s.store.ListIssues(ctx, store.IssueListFilter{ProjectID: project.ID, Query: strings.TrimSpace(q)})
	if err != nil {
		return nil, err
	}
	if issues == nil {
		issues = []*models.Issue{}
	}
	return issues, nil
}

// EnabledStatuses returns the statuses an issue can be set to: its current
// one and every status reachable in one transition, sorted by value.
func (s *IssueService) EnabledStatuses(ctx context.Context, id string) ([]models.Option, error) {
	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.workflow.EnabledStatuses(issue.Status), nil
}

// Statuses lists every status option.
func (s *IssueService) Statuses() []models.Option { return workflow.Statuses() }

// Types lists every issue type option.
func (s *IssueService) Types() []models.Option { return workflow.Types() }

// CreateIssueInput carries the fields accepted when creating an issue.
// References may be bare ids or /api/{collection}/{id} IRIs.
type CreateIssueInput struct {
	Project     string
	Reporter    string
	Assignee    string
	Summary     string
	Description string
	Type        models.IssueType   // zero means TASK
	Status      models.IssueStatus // zero means NEW
}

// Create validates input and stores a new issue.
func (s *IssueService) Create(ctx context.Context, in CreateIssueInput) (*models.Issue, error) {
	summary := strings.TrimSpace(in.Summary)
	if summary == "" {
		return nil, validationf("summary is required")
	}

	projectID, err := ParseRef(in.Project, "projects")
	if err != nil {
		return nil, err
	}
	reporterID, err := ParseRef(in.Reporter, "users")
	if err != nil {
		return nil, err
	}
	assigneeID, err := ParseRef(in.Assignee, "users")
	if err != nil {
		return nil, err
	}
	if projectID == "" {
		return nil, validationf("project is required")
	}
	if reporterID == "" {
		return nil, validationf("reporter is required")
	}

	issueType := in.Type
	if issueType == 0 {
		issueType = models.IssueTypeTask
	}
	if !issueType.Valid() {
		return nil, validationf("unknown issue type: %d", int(issueType))
	}
	status := in.Status
	if status == 0 {
		status = models.IssueStatusNew
	}
	if !status.Valid() {
		return nil, validationf("unknown issue status: %d", int(status))
	}

	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, referenceError("project", projectID, err)
	}
	if _, err := s.store.GetUser(ctx, reporterID); err != nil {
		return nil, referenceError("reporter", reporterID, err)
	}
	if assigneeID != "" {
		if _, err := s.store.GetUser(ctx, assigneeID); err != nil {
			return nil, referenceError("assignee", assigneeID, err)
		}
		member, err := s.store.IsProjectMember(ctx, project.ID, assigneeID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, validationf("assignee %s is not a member of project %s", assigneeID, project.Name)
		}
	}

	issue := &models.Issue{
		ProjectID:   project.ID,
		Summary:     summary,
		Description: in.Description,
		Status:      status,
		Type:        issueType,
		AssigneeID:  assigneeID,
		ReporterID:  reporterID,
	}
	if err := s.store.CreateIssue(ctx, issue); err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, notify.IssueCreated{Issue: issue})
	return issue, nil
}

func referenceError(field, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return validationf("%s %s does not exist", field, id)
	}
	return err
}

// IssuePatch holds the optional fields of a partial update.
type IssuePatch struct {
	Status *models.IssueStatus
	Type   *models.IssueType
}

// Update applies a partial status/type change. Both fields are validated
// before anything is written.
func (s *IssueService) Update(ctx context.Context, id string, patch IssuePatch) (*models.Issue, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, validationf("unknown issue status: %d", int(*patch.Status))
	}
	if patch.Type != nil && !patch.Type.Valid() {
		return nil, validationf("unknown issue type: %d", int(*patch.Type))
	}

	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Status != nil {
		if s.enforce && !s.workflow.CanTransition(issue.Status, *patch.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, issue.Status, *patch.Status)
		}
		issue.Status = *patch.Status
	}
	if patch.Type != nil {
		issue.Type = *patch.Type
	}
	if patch.Status == nil && patch.Type == nil {
		return issue, nil
	}

	if err := s.store.UpdateIssue(ctx, issue); err != nil {
		return nil, err
	}
	s.bus.Publish(ctx, notify.IssueUpdated{Issue: issue})
	return issue, nil
}

// UpdateStatus moves an issue to a new status.
func (s *IssueService) UpdateStatus(ctx context.Context, id string, status models.IssueStatus) (*models.Issue, error) {
	return s.Update(ctx, id, IssuePatch{Status: &status})
}

// UpdateType changes the kind of an issue.
func (s *IssueService) UpdateType(ctx context.Context, id string, issueType models.IssueType) (*models.Issue, error) {
	return s.Update(ctx, id, IssuePatch{Type: &issueType})
}

// Bucket names a dashboard grouping of statuses.
type Bucket string

const (
	BucketNotStarted Bucket = "notStarted"
	BucketInProgress Bucket = "inProgress"
	BucketResolved   Bucket = "resolved"
)

// BucketStatuses maps each bucket to the statuses it contains. The sets
// are disjoint.
var BucketStatuses = map[Bucket][]models.IssueStatus{
	BucketNotStarted: {models.IssueStatusNew, models.IssueStatusReady},
	BucketInProgress: {models.IssueStatusInDevelopment, models.IssueStatusInReview},
	BucketResolved:   {models.IssueStatusResolved},
}

func (s *IssueService) bucket(ctx context.Context, actor Actor, b Bucket) ([]models.IssueSummary, error) {
	if actor.ProjectID == "" {
		return nil, validationf("no project selected")
	}
	issues, err := s.store.ListIssues(ctx, store.IssueListFilter{
		ProjectID: actor.ProjectID,
		Statuses:  BucketStatuses[b],
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.IssueSummary, len(issues))
	for i, issue := range issues {
		out[i] = models.IssueSummary{ID: issue.ID, Summary: issue.Summary}
	}
	return out, nil
}

// NotStarted lists NEW and READY issues of the actor's selected project.
func (s *IssueService) NotStarted(ctx context.Context, actor Actor) ([]models.IssueSummary, error) {
	return s.bucket(ctx, actor, BucketNotStarted)
}

// InProgress lists IN_DEVELOPMENT and IN_REVIEW issues of the actor's
// selected project.
func (s *IssueService) InProgress(ctx context.Context, actor Actor) ([]models.IssueSummary, error) {
	return s.bucket(ctx, actor, BucketInProgress)
}

// Resolved lists RESOLVED issues of the actor's selected project.
func (s *IssueService) Resolved(ctx context.Context, actor Actor) ([]models.IssueSummary, error) {
	return s.bucket(ctx, actor, BucketResolved)
}

// Dashboard holds all three buckets.
type Dashboard struct {
	NotStarted []models.IssueSummary `json:"notStarted"`
	InProgress []models.IssueSummary `json:"inProgress"`
	Resolved   []models.IssueSummary `json:"resolved"`
}

// Dashboard returns every bucket for the actor's selected project.
func (s *IssueService) Dashboard(ctx context.Context, actor Actor) (*Dashboard, error) {
	d := &Dashboard{}
	var err error
	if d.NotStarted, err = s.NotStarted(ctx, actor); err != nil {
		return nil, err
	}
	if d.InProgress, err = s.InProgress(ctx, actor); err != nil {
		return nil, err
	}
	if d.Resolved, err = s.Resolved(ctx, actor); err != nil {
		return nil, err
	}
	return d, nil
}

// AddAttachment stores a file reference on an issue.
func (s *IssueService) AddAttachment(ctx context.Context, issueID, fileName, path, mediaType string) (*models.Attachment, error) {
	if strings.TrimSpace(fileName) == "" || strings.TrimSpace(path) == "" {
		return nil, validationf("fileName and path are required")
	}
	if _, err := s.store.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}
	a := &models.Attachment{IssueID: issueID, FileName: fileName, Path: path, MediaType: mediaType}
	if err := s.store.CreateAttachment(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListAttachments returns an issue's attachments in creation order.
func (s *IssueService) ListAttachments(ctx context.Context, issueID string) ([]*models.Attachment, error) {
	if _, err := s.store.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}
	return s.store.ListAttachments(ctx, issueID)
}

// DeleteAttachment removes an attachment and notifies subscribers.
func (s *IssueService) DeleteAttachment(ctx context.Context, id string) error {
	a, err := s.store.GetAttachment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAttachment(ctx, id); err != nil {
		return err
	}
	s.bus.Publish(ctx, notify.AttachmentDeleted{IssueID: a.IssueID, AttachmentID: a.ID})
	return nil
}

// SuggestType proposes an issue type for the given text.
func (s *IssueService) SuggestType(ctx context.Context, summary, description string) (models.IssueType, error) {
	t, err := s.suggester.SuggestType(ctx, summary, description)
	if err != nil {
		// Fall back to keywords when the configured suggester is unavailable.
		return KeywordSuggester{}.SuggestType(ctx, summary, description)
	}
	return t, nil
}
