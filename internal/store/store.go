package store

import (
	"context"
	"errors"

	"github.com/joescharf/tracker/internal/models"
)

// ErrNotFound is wrapped by every lookup that finds no row.
var ErrNotFound = errors.New("not found")

// IssueListFilter specifies filters for listing issues.
type IssueListFilter struct {
	ProjectID string
	Statuses  []models.IssueStatus // match any
	Type      models.IssueType
	Query     string // case-insensitive substring of id or summary
}

// Store defines the persistence interface for tracker.
type Store interface {
	// Projects
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]*models.Project, error)
	AddProjectMember(ctx context.Context, projectID, userID string) error
	IsProjectMember(ctx context.Context, projectID, userID string) (bool, error)

	// Users
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context, query string) ([]*models.User, error)
	ListProjectMembers(ctx context.Context, projectID string) ([]*models.User, error)
	SetSelectedProject(ctx context.Context, userID, projectID string) error

	// Issues
	CreateIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, id string) (*models.Issue, error)
	ListIssues(ctx context.Context, filter IssueListFilter) ([]*models.Issue, error)
	UpdateIssue(ctx context.Context, issue *models.Issue) error

	// Attachments
	CreateAttachment(ctx context.Context, a *models.Attachment) error
	GetAttachment(ctx context.Context, id string) (*models.Attachment, error)
	ListAttachments(ctx context.Context, issueID string) ([]*models.Attachment, error)
	DeleteAttachment(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
