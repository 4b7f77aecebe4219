package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/service"
)

// seedActor creates a project and a member user, and makes that user the
// acting user with the project selected.
func seedActor(t *testing.T) (*services, *models.Project, *models.User) {
	t.Helper()
	ctx := context.Background()
	sv, err := getServices()
	require.NoError(t, err)

	p, err := sv.projects.Create(ctx, "alpha", "first project")
	require.NoError(t, err)
	u, err := sv.users.Signup(ctx, service.SignupInput{Email: "ada@example.com", Password: "password1", FirstName: "Ada"})
	require.NoError(t, err)
	require.NoError(t, sv.projects.AddMember(ctx, p.ID, u.ID))
	_, err = sv.users.SelectProject(ctx, u.ID, p.ID)
	require.NoError(t, err)
	viper.Set("user.id", u.ID)
	return sv, p, u
}

func resetIssueFlags(t *testing.T) {
	t.Cleanup(func() {
		issueProject, issueSummary, issueDesc, issueType, issueStatus = "", "", "", "", ""
		issueAssignee, issueReporter, issueSuggestType = "", "", false
		jsonOut = false
	})
}

func captureJSON(t *testing.T, run func() error, v any) {
	t.Helper()
	var buf bytes.Buffer
	ui.Out = &buf
	jsonOut = true
	defer func() { jsonOut = false }()
	require.NoError(t, run())
	require.NoError(t, json.Unmarshal(buf.Bytes(), v))
}

func TestIssueAddAndList(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	ctx := context.Background()
	_, _, u := seedActor(t)

	issueSummary = "Crash when saving"
	issueSuggestType = true
	var created models.Issue
	captureJSON(t, func() error { return issueAddRun(ctx) }, &created)

	assert.Equal(t, "Crash when saving", created.Summary)
	assert.Equal(t, models.IssueTypeBug, created.Type, "keyword suggestion classifies crashes as bugs")
	assert.Equal(t, models.IssueStatusNew, created.Status)
	assert.Equal(t, u.ID, created.ReporterID)

	issueSummary, issueSuggestType, issueType = "Add export", false, "feature"
	require.NoError(t, issueAddRun(ctx))

	var listed []*models.Issue
	issueSummary, issueType = "", ""
	captureJSON(t, func() error { return issueListRun(ctx) }, &listed)
	require.Len(t, listed, 2)
	assert.Equal(t, created.ID, listed[0].ID)

	issueStatus = "NEW"
	captureJSON(t, func() error { return issueListRun(ctx) }, &listed)
	assert.Len(t, listed, 2)
	issueStatus = "resolved"
	captureJSON(t, func() error { return issueListRun(ctx) }, &listed)
	assert.Empty(t, listed)
}

func TestIssueStatusTransitions(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	ctx := context.Background()
	sv, p, u := seedActor(t)

	issue, err := sv.issues.Create(ctx, service.CreateIssueInput{Project: p.ID, Reporter: u.ID, Summary: "Flow"})
	require.NoError(t, err)

	// Prefix lookup and place-name parsing.
	require.NoError(t, issueSetStatusRun(ctx, shortID(issue.ID), "ready"))
	got, err := sv.issues.FindByID(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusReady, got.Status)

	err = issueSetStatusRun(ctx, issue.ID, "RESOLVED")
	assert.ErrorIs(t, err, service.ErrTransitionNotAllowed)

	err = issueSetStatusRun(ctx, issue.ID, "bogus")
	assert.ErrorIs(t, err, service.ErrValidation)

	require.NoError(t, issueSetTypeRun(ctx, issue.ID, "IMPROVEMENT"))
	got, err = sv.issues.FindByID(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueTypeImprovement, got.Type)

	var options []models.Option
	captureJSON(t, func() error { return issueStatusesRun(ctx, issue.ID) }, &options)
	assert.Equal(t, []models.Option{
		{Label: "New", Value: 1},
		{Label: "Ready", Value: 2},
		{Label: "In development", Value: 3},
	}, options)
}

func TestIssueDashboard(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	ctx := context.Background()
	sv, p, u := seedActor(t)

	for _, status := range []models.IssueStatus{models.IssueStatusNew, models.IssueStatusInReview, models.IssueStatusResolved} {
		_, err := sv.issues.Create(ctx, service.CreateIssueInput{Project: p.ID, Reporter: u.ID, Summary: status.Label(), Status: status})
		require.NoError(t, err)
	}

	var dash service.Dashboard
	captureJSON(t, func() error { return issueDashboardRun(ctx) }, &dash)
	require.Len(t, dash.NotStarted, 1)
	require.Len(t, dash.InProgress, 1)
	require.Len(t, dash.Resolved, 1)
	assert.Equal(t, "In review", dash.InProgress[0].Summary)

	viper.Set("user.id", "")
	err := issueDashboardRun(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no acting user")
}

func TestFindIssue_NotFoundAndAmbiguous(t *testing.T) {
	testEnv(t)
	ctx := context.Background()
	sv, p, u := seedActor(t)

	_, err := findIssue(ctx, sv, "ZZZZ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issue not found")

	a, err := sv.issues.Create(ctx, service.CreateIssueInput{Project: p.ID, Reporter: u.ID, Summary: "one"})
	require.NoError(t, err)
	_, err = sv.issues.Create(ctx, service.CreateIssueInput{Project: p.ID, Reporter: u.ID, Summary: "two"})
	require.NoError(t, err)

	// Both ULIDs share the leading timestamp characters.
	_, err = findIssue(ctx, sv, a.ID[:4])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
}

func TestProjectOrSelected(t *testing.T) {
	testEnv(t)
	ctx := context.Background()
	sv, p, _ := seedActor(t)

	got, err := projectOrSelected(ctx, sv, "")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	got, err = projectOrSelected(ctx, sv, "alpha")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestUserSelectPersistsActingUser(t *testing.T) {
	testEnv(t)
	ctx := context.Background()
	sv, p, _ := seedActor(t)

	other, err := sv.users.Signup(ctx, service.SignupInput{Email: "bob@example.com", Password: "password2"})
	require.NoError(t, err)
	require.NoError(t, sv.projects.AddMember(ctx, p.ID, other.ID))

	userProject = "alpha"
	t.Cleanup(func() { userProject = "" })
	require.NoError(t, userSelectRun(ctx, other.ID))

	assert.Equal(t, other.ID, viper.GetString("user.id"))
	actor, err := currentActor(ctx, sv)
	require.NoError(t, err)
	assert.Equal(t, p.ID, actor.ProjectID)

	cfgPath, err := configFilePath()
	require.NoError(t, err)
	assert.True(t, readConfigFileValues(cfgPath)["user.id"])
}

func TestIssueClassify(t *testing.T) {
	testEnv(t)
	ctx := context.Background()
	sv, p, u := seedActor(t)

	issue, err := sv.issues.Create(ctx, service.CreateIssueInput{Project: p.ID, Reporter: u.ID, Summary: "Refactor database layer"})
	require.NoError(t, err)
	require.Equal(t, models.IssueTypeTask, issue.Type)

	require.NoError(t, issueClassifyRun(ctx, issue.ID))
	got, err := sv.issues.FindByID(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueTypeTask, got.Type, "without --apply nothing changes")

	issueClassifyApply = true
	t.Cleanup(func() { issueClassifyApply = false })
	require.NoError(t, issueClassifyRun(ctx, issue.ID))
	got, err = sv.issues.FindByID(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueTypeImprovement, got.Type)
}
