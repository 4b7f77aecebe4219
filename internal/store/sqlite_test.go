package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/tracker/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

// seed creates a project with one member user and returns both.
func seed(t *testing.T, s *SQLiteStore) (*models.Project, *models.User) {
	t.Helper()
	ctx := context.Background()

	p := &models.Project{Name: "alpha", Description: "first project"}
	require.NoError(t, s.CreateProject(ctx, p))

	u := &models.User{Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace", PasswordHash: "x"}
	require.NoError(t, s.CreateUser(ctx, u))
	require.NoError(t, s.AddProjectMember(ctx, p.ID, u.ID))
	return p, u
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

// --- Projects ---

func TestProjectCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &models.Project{Name: "tracker", Description: "issue tracker"}
	require.NoError(t, s.CreateProject(ctx, p))
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "tracker", got.Name)

	byName, err := s.GetProject(ctx, "tracker")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byName.ID)

	list, err := s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.GetProject(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProjectMembers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, u := seed(t, s)

	// Adding twice is a no-op.
	require.NoError(t, s.AddProjectMember(ctx, p.ID, u.ID))

	members, err := s.ListProjectMembers(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "Ada", members[0].FirstName)

	ok, err := s.IsProjectMember(ctx, p.ID, u.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsProjectMember(ctx, p.ID, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

// --- Users ---

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, u := seed(t, s)

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", got.Email)
	assert.Empty(t, got.SelectedProjectID)

	byEmail, err := s.GetUserByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	require.NoError(t, s.SetSelectedProject(ctx, u.ID, p.ID))
	got, err = s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.SelectedProjectID)

	assert.ErrorIs(t, s.SetSelectedProject(ctx, "missing", p.ID), ErrNotFound)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s)

	err := s.CreateUser(ctx, &models.User{Email: "ada@example.com", PasswordHash: "y"})
	assert.Error(t, err)
}

func TestListUsers_Query(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s)
	require.NoError(t, s.CreateUser(ctx, &models.User{Email: "grace@example.com", FirstName: "Grace", LastName: "Hopper", PasswordHash: "x"}))

	all, err := s.ListUsers(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	found, err := s.ListUsers(ctx, "hop")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Grace", found[0].FirstName)
}

func TestListUsers_QueryWildcardsAreLiteral(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s)
	require.NoError(t, s.CreateUser(ctx, &models.User{Email: "first_last@example.com", FirstName: "Under", LastName: "Score", PasswordHash: "x"}))

	found, err := s.ListUsers(ctx, "_")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "first_last@example.com", found[0].Email)

	found, err = s.ListUsers(ctx, "%")
	require.NoError(t, err)
	assert.Empty(t, found)
}

// --- Issues ---

func TestIssueCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, u := seed(t, s)

	issue := &models.Issue{
		ProjectID:  p.ID,
		Summary:    "Fix login bug",
		Status:     models.IssueStatusNew,
		Type:       models.IssueTypeBug,
		AssigneeID: u.ID,
		ReporterID: u.ID,
	}
	require.NoError(t, s.CreateIssue(ctx, issue))
	assert.NotEmpty(t, issue.ID)

	got, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fix login bug", got.Summary)
	assert.Equal(t, models.IssueStatusNew, got.Status)
	assert.Equal(t, models.IssueTypeBug, got.Type)
	assert.Equal(t, u.ID, got.AssigneeID)
	assert.Equal(t, u.ID, got.ReporterID)
	assert.Empty(t, got.Attachments)

	got.Status = models.IssueStatusReady
	got.Description = "<p>steps</p>"
	require.NoError(t, s.UpdateIssue(ctx, got))

	got, err = s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusReady, got.Status)
	assert.Equal(t, "<p>steps</p>", got.Description)

	_, err = s.GetIssue(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.UpdateIssue(ctx, &models.Issue{ID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateIssue_WithoutAssignee(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, u := seed(t, s)

	issue := &models.Issue{ProjectID: p.ID, Summary: "Unassigned", Status: models.IssueStatusNew, Type: models.IssueTypeTask, ReporterID: u.ID}
	require.NoError(t, s.CreateIssue(ctx, issue))

	got, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Empty(t, got.AssigneeID)
}

func TestListIssues_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, u := seed(t, s)

	other := &models.Project{Name: "beta"}
	require.NoError(t, s.CreateProject(ctx, other))

	mk := func(projectID, summary string, status models.IssueStatus, typ models.IssueType) *models.Issue {
		i := &models.Issue{ProjectID: projectID, Summary: summary, Status: status, Type: typ, ReporterID: u.ID}
		require.NoError(t, s.CreateIssue(ctx, i))
		return i
	}
	first := mk(p.ID, "Login page crash", models.IssueStatusNew, models.IssueTypeBug)
	mk(p.ID, "Add dark mode", models.IssueStatusInReview, models.IssueTypeFeature)
	mk(p.ID, "Write docs", models.IssueStatusResolved, models.IssueTypeTask)
	mk(other.ID, "Other login work", models.IssueStatusNew, models.IssueTypeTask)

	all, err := s.ListIssues(ctx, IssueListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	byProject, err := s.ListIssues(ctx, IssueListFilter{ProjectID: p.ID})
	require.NoError(t, err)
	require.Len(t, byProject, 3)
	assert.Equal(t, first.ID, byProject[0].ID, "storage order is creation order")

	byStatus, err := s.ListIssues(ctx, IssueListFilter{
		ProjectID: p.ID,
		Statuses:  []models.IssueStatus{models.IssueStatusNew, models.IssueStatusReady},
	})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "Login page crash", byStatus[0].Summary)

	byType, err := s.ListIssues(ctx, IssueListFilter{Type: models.IssueTypeTask})
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	byQuery, err := s.ListIssues(ctx, IssueListFilter{Query: "LOGIN"})
	require.NoError(t, err)
	assert.Len(t, byQuery, 2)
}

func TestListIssues_QueryWildcardsAreLiteral(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, u := seed(t, s)

	for _, summary := range []string{"Coverage at 50% of target", "Coverage at 500 files", "snake_case names", "snakeXcase names", `C:\temp path`} {
		require.NoError(t, s.CreateIssue(ctx, &models.Issue{ProjectID: p.ID, Summary: summary, Status: models.IssueStatusNew, Type: models.IssueTypeTask, ReporterID: u.ID}))
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"50%", []string{"Coverage at 50% of target"}},
		{"snake_case", []string{"snake_case names"}},
		{"%", []string{"Coverage at 50% of target"}},
		{`\`, []string{`C:\temp path`}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := s.ListIssues(ctx, IssueListFilter{Query: tt.query})
			require.NoError(t, err)
			var summaries []string
			for _, i := range got {
				summaries = append(summaries, i.Summary)
			}
			assert.Equal(t, tt.want, summaries)
		})
	}
}

// --- Attachments ---

func TestAttachments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, u := seed(t, s)

	issue := &models.Issue{ProjectID: p.ID, Summary: "Screenshot", Status: models.IssueStatusNew, Type: models.IssueTypeBug, ReporterID: u.ID}
	require.NoError(t, s.CreateIssue(ctx, issue))

	a1 := &models.Attachment{IssueID: issue.ID, FileName: "one.png", Path: "/uploads/one.png", MediaType: "image/png"}
	a2 := &models.Attachment{IssueID: issue.ID, FileName: "two.png", Path: "/uploads/two.png", MediaType: "image/png"}
	require.NoError(t, s.CreateAttachment(ctx, a1))
	require.NoError(t, s.CreateAttachment(ctx, a2))

	got, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	require.Len(t, got.Attachments, 2)
	assert.Equal(t, "one.png", got.Attachments[0].FileName)

	listed, err := s.ListIssues(ctx, IssueListFilter{ProjectID: p.ID})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Len(t, listed[0].Attachments, 2)

	require.NoError(t, s.DeleteAttachment(ctx, a1.ID))
	remaining, err := s.ListAttachments(ctx, issue.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, a2.ID, remaining[0].ID)

	assert.ErrorIs(t, s.DeleteAttachment(ctx, a1.ID), ErrNotFound)
	_, err = s.GetAttachment(ctx, a1.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
