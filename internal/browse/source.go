package browse

import (
	"context"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/notify"
	"github.com/joescharf/tracker/internal/service"
)

// Source abstracts issue data access for the browser. The model is
// identical whether it talks to an in-process service or the REST API.
type Source interface {
	// Issues returns the issues of the browsed project in storage order.
	Issues(ctx context.Context) ([]*models.Issue, error)

	// EnabledStatuses returns the statuses an issue can be moved to,
	// including its current one.
	EnabledStatuses(ctx context.Context, issueID string) ([]models.Option, error)

	// Types returns every issue type option.
	Types(ctx context.Context) ([]models.Option, error)

	// UpdateStatus and UpdateType return the server's confirmed issue.
	UpdateStatus(ctx context.Context, issueID string, status models.IssueStatus) (*models.Issue, error)
	UpdateType(ctx context.Context, issueID string, t models.IssueType) (*models.Issue, error)

	DeleteAttachment(ctx context.Context, attachmentID string) error

	// People returns the project members eligible as assignees.
	People(ctx context.Context) ([]models.Person, error)

	// CreateIssue creates an issue in the browsed project reported by the
	// acting user.
	CreateIssue(ctx context.Context, in NewIssue) (*models.Issue, error)

	// Subscribe returns a channel of live notifications, or nil when the
	// source has no live updates.
	Subscribe() <-chan notify.Message
}

// NewIssue is the input of the browser's create form.
type NewIssue struct {
	Summary     string
	Description string
	AssigneeID  string // empty leaves the issue unassigned
}

// eventBuffer bounds the notifications queued for a slow UI. Publishers
// never block on the browser; overflow is dropped.
const eventBuffer = 64

// ServiceSource implements Source over an in-process IssueService and
// receives live updates from the notification bus.
type ServiceSource struct {
	issues     *service.IssueService
	projects   *service.ProjectService
	projectID  string
	reporterID string

	events      chan notify.Message
	unsubscribe func()
}

// NewServiceSource creates a source for one project; issues it creates are
// reported by reporterID. When bus is non-nil the source subscribes to
// issue creation and attachment deletion.
func NewServiceSource(issues *service.IssueService, projects *service.ProjectService, projectID, reporterID string, bus *notify.Bus) *ServiceSource {
	s := &ServiceSource{issues: issues, projects: projects, projectID: projectID, reporterID: reporterID}
	if bus != nil {
		s.events = make(chan notify.Message, eventBuffer)
		s.unsubscribe = bus.Subscribe(s.forward, notify.TopicIssueCreated, notify.TopicAttachmentDeleted)
	}
	return s
}

func (s *ServiceSource) forward(_ context.Context, msg notify.Message) {
	if created, ok := msg.(notify.IssueCreated); ok && created.Issue.ProjectID != s.projectID {
		return
	}
	select {
	case s.events <- msg:
	default:
	}
}

// Close detaches the source from the bus.
func (s *ServiceSource) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *ServiceSource) Issues(ctx context.Context) ([]*models.Issue, error) {
	return s.issues.ListProject(ctx, s.projectID)
}

func (s *ServiceSource) EnabledStatuses(ctx context.Context, issueID string) ([]models.Option, error) {
	return s.issues.EnabledStatuses(ctx, issueID)
}

func (s *ServiceSource) Types(context.Context) ([]models.Option, error) {
	return s.issues.Types(), nil
}

func (s *ServiceSource) UpdateStatus(ctx context.Context, issueID string, status models.IssueStatus) (*models.Issue, error) {
	return s.issues.UpdateStatus(ctx, issueID, status)
}

func (s *ServiceSource) UpdateType(ctx context.Context, issueID string, t models.IssueType) (*models.Issue, error) {
	return s.issues.UpdateType(ctx, issueID, t)
}

func (s *ServiceSource) DeleteAttachment(ctx context.Context, attachmentID string) error {
	return s.issues.DeleteAttachment(ctx, attachmentID)
}

func (s *ServiceSource) People(ctx context.Context) ([]models.Person, error) {
	return s.projects.People(ctx, s.projectID)
}

// CreateIssue stores the issue; the list learns about it from the bus.
func (s *ServiceSource) CreateIssue(ctx context.Context, in NewIssue) (*models.Issue, error) {
	return s.issues.Create(ctx, service.CreateIssueInput{
		Project:     s.projectID,
		Reporter:    s.reporterID,
		Assignee:    in.AssigneeID,
		Summary:     in.Summary,
		Description: in.Description,
	})
}

func (s *ServiceSource) Subscribe() <-chan notify.Message {
	if s.events == nil {
		return nil
	}
	return s.events
}
