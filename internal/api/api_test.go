package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/notify"
	"github.com/joescharf/tracker/internal/service"
	"github.com/joescharf/tracker/internal/store"
)

type testEnv struct {
	router   http.Handler
	issues   *service.IssueService
	users    *service.UserService
	projects *service.ProjectService
	project  *models.Project
	user     *models.User
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { s.Close() })

	env := &testEnv{
		issues:   service.NewIssueService(s, nil, notify.New()),
		users:    service.NewUserService(s, bcrypt.MinCost),
		projects: service.NewProjectService(s),
	}
	env.router = NewServer(env.issues, env.users, env.projects, nil).Router()

	env.project, err = env.projects.Create(ctx, "alpha", "")
	require.NoError(t, err)
	env.user, err = env.users.Signup(ctx, service.SignupInput{Email: "ada@example.com", Password: "password1", FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err)
	require.NoError(t, env.projects.AddMember(ctx, env.project.ID, env.user.ID))
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createIssue(t *testing.T, summary string, status models.IssueStatus) *models.Issue {
	t.Helper()
	issue, err := e.issues.Create(context.Background(), service.CreateIssueInput{
		Project: e.project.ID, Reporter: e.user.ID, Summary: summary, Status: status,
	})
	require.NoError(t, err)
	return issue
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestCreateIssue_API(t *testing.T) {
	env := setupTestServer(t)

	body := `{"project":"/api/projects/` + env.project.ID + `","reporter":"/api/users/` + env.user.ID +
		`","assignee":"/api/users/` + env.user.ID + `","summary":"Fix login bug","type":1}`
	w := env.do(t, "POST", "/api/issues", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "Fix login bug", created.Summary)
	assert.Equal(t, models.IssueStatusNew, created.Status)
	assert.Equal(t, models.IssueTypeBug, created.Type)

	w = env.do(t, "GET", "/api/issues/"+created.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)
	var got models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, env.user.ID, got.AssigneeID)
	assert.Equal(t, env.user.ID, got.ReporterID)
}

func TestCreateIssue_MissingSummary(t *testing.T) {
	env := setupTestServer(t)
	w := env.do(t, "POST", "/api/issues", `{"project":"`+env.project.ID+`","reporter":"`+env.user.ID+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorBody(t, w), "summary")
}

func TestGetIssue_NotFound(t *testing.T) {
	env := setupTestServer(t)
	w := env.do(t, "GET", "/api/issues/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, errorBody(t, w), "not found")
}

func TestPatchIssue_Status(t *testing.T) {
	env := setupTestServer(t)
	issue := env.createIssue(t, "Work", 0)

	w := env.do(t, "PATCH", "/api/issues/"+issue.ID, `{"status":2}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, models.IssueStatusReady, got.Status)

	// Workflow place names are accepted too.
	w = env.do(t, "PATCH", "/api/issues/"+issue.ID, `{"status":"in_development"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, models.IssueStatusInDevelopment, got.Status)
}

func TestPatchIssue_Errors(t *testing.T) {
	env := setupTestServer(t)
	resolved := env.createIssue(t, "Done", models.IssueStatusResolved)

	tests := []struct {
		name string
		id   string
		body string
		want int
	}{
		{"unknown status value", resolved.ID, `{"status":"FOO"}`, http.StatusBadRequest},
		{"out of range status", resolved.ID, `{"status":9}`, http.StatusBadRequest},
		{"malformed body", resolved.ID, `{`, http.StatusBadRequest},
		{"disallowed transition", resolved.ID, `{"status":1}`, http.StatusConflict},
		{"unknown issue", "nope", `{"status":2}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "PATCH", "/api/issues/"+tt.id, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.NotEmpty(t, errorBody(t, w))
		})
	}

	got, err := env.issues.FindByID(context.Background(), resolved.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusResolved, got.Status)
}

func TestEnabledStatuses_API(t *testing.T) {
	env := setupTestServer(t)
	issue := env.createIssue(t, "Review", models.IssueStatusInReview)

	w := env.do(t, "GET", "/api/issues/"+issue.ID+"/statuses", "")
	require.Equal(t, http.StatusOK, w.Code)
	var options []models.Option
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &options))
	assert.Equal(t, []models.Option{
		{Label: "In development", Value: 3},
		{Label: "In review", Value: 4},
		{Label: "Resolved", Value: 5},
	}, options)

	w = env.do(t, "GET", "/api/issues/nope/statuses", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchIssues_API(t *testing.T) {
	env := setupTestServer(t)
	env.createIssue(t, "Fix login bug", 0)
	env.createIssue(t, "Add export", 0)

	w := env.do(t, "GET", "/api/issues?q=LOGIN", "")
	require.Equal(t, http.StatusOK, w.Code)
	var issues []*models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issues))
	require.Len(t, issues, 1)
	assert.Equal(t, "Fix login bug", issues[0].Summary)
}

func TestSearchIssues_API_ByProject(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	env.createIssue(t, "Fix login bug", 0)
	env.createIssue(t, "Add export", 0)

	beta, err := env.projects.Create(ctx, "beta", "")
	require.NoError(t, err)
	_, err = env.issues.Create(ctx, service.CreateIssueInput{Project: beta.ID, Reporter: env.user.ID, Summary: "Beta login flow"})
	require.NoError(t, err)

	tests := []struct {
		name string
		path string
		want []string
	}{
		{"by id", "/api/issues?project=" + env.project.ID, []string{"Fix login bug", "Add export"}},
		{"by name with query", "/api/issues?project=beta&q=login", []string{"Beta login flow"}},
		{"query across projects", "/api/issues?q=login", []string{"Fix login bug", "Beta login flow"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "GET", tt.path, "")
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			var issues []*models.Issue
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issues))
			var got []string
			for _, i := range issues {
				got = append(got, i.Summary)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	w := env.do(t, "GET", "/api/issues?project=nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDashboard_API(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	a := env.createIssue(t, "A", models.IssueStatusNew)
	b := env.createIssue(t, "B", models.IssueStatusInReview)
	c := env.createIssue(t, "C", models.IssueStatusResolved)

	// No selected project yet.
	w := env.do(t, "GET", "/api/dashboard", "", UserHeader, env.user.ID)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, err := env.users.SelectProject(ctx, env.user.ID, env.project.ID)
	require.NoError(t, err)

	w = env.do(t, "GET", "/api/dashboard", "", UserHeader, env.user.ID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var d service.Dashboard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, []models.IssueSummary{{ID: a.ID, Summary: "A"}}, d.NotStarted)
	assert.Equal(t, []models.IssueSummary{{ID: b.ID, Summary: "B"}}, d.InProgress)
	assert.Equal(t, []models.IssueSummary{{ID: c.ID, Summary: "C"}}, d.Resolved)

	w = env.do(t, "GET", "/api/dashboard", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, "GET", "/api/dashboard", "", UserHeader, "ghost")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusesAndTypes_API(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, "GET", "/api/statuses", "")
	require.Equal(t, http.StatusOK, w.Code)
	var statuses []models.Option
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &statuses))
	assert.Len(t, statuses, 5)
	assert.Equal(t, models.Option{Label: "New", Value: 1}, statuses[0])

	w = env.do(t, "GET", "/api/types", "")
	require.Equal(t, http.StatusOK, w.Code)
	var types []models.Option
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &types))
	assert.Len(t, types, 4)
}

func TestAttachments_API(t *testing.T) {
	env := setupTestServer(t)
	issue := env.createIssue(t, "Screenshot", 0)

	w := env.do(t, "POST", "/api/issues/"+issue.ID+"/attachments",
		`{"fileName":"shot.png","path":"/uploads/shot.png","mediaType":"image/png"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var a models.Attachment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &a))

	w = env.do(t, "GET", "/api/issues/"+issue.ID+"/attachments", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []*models.Attachment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "shot.png", list[0].FileName)

	w = env.do(t, "DELETE", "/api/attachments/"+a.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, "DELETE", "/api/attachments/"+a.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProjectsAndPeople_API(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, "POST", "/api/projects", `{"name":"beta"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var beta models.Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &beta))

	w = env.do(t, "POST", "/api/projects", `{"name":"beta"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, "GET", "/api/projects", "")
	require.Equal(t, http.StatusOK, w.Code)
	var projects []*models.Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &projects))
	assert.Len(t, projects, 2)

	w = env.do(t, "POST", "/api/projects/"+beta.ID+"/people", `{"user":"/api/users/`+env.user.ID+`"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, "GET", "/api/projects/"+beta.ID+"/people", "")
	require.Equal(t, http.StatusOK, w.Code)
	var people struct {
		People []models.Person `json:"people"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &people))
	assert.Equal(t, []models.Person{{ID: env.user.ID, FirstName: "Ada", LastName: "Lovelace"}}, people.People)

	w = env.do(t, "GET", "/api/projects/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProjectProgress_API(t *testing.T) {
	env := setupTestServer(t)
	env.createIssue(t, "A", models.IssueStatusResolved)
	env.createIssue(t, "B", models.IssueStatusNew)

	w := env.do(t, "GET", "/api/projects/"+env.project.ID+"/progress", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 25, got["completion"])
	assert.Equal(t, 1, got["resolved"])
	assert.Equal(t, 1, got["notStarted"])
}

func TestSignupAndSelectProject_API(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, "POST", "/api/users", `{"email":"grace@example.com","password":"hopper123","firstName":"Grace","lastName":"Hopper"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "hopper123")
	assert.NotContains(t, w.Body.String(), "password")
	var u models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &u))

	w = env.do(t, "POST", "/api/users", `{"email":"grace@example.com","password":"hopper123"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, "GET", "/api/users?q=grace", "")
	require.Equal(t, http.StatusOK, w.Code)
	var users []*models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
	require.Len(t, users, 1)

	// Grace is not a member of alpha.
	w = env.do(t, "PUT", "/api/users/"+u.ID+"/selected-project", `{"project":"/api/projects/`+env.project.ID+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "PUT", "/api/users/"+env.user.ID+"/selected-project", `{"project":"/api/projects/`+env.project.ID+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &u))
	assert.Equal(t, env.project.ID, u.SelectedProjectID)
}

func TestSignup_API_PasswordTooLong(t *testing.T) {
	env := setupTestServer(t)

	body := `{"email":"long@example.com","password":"` + strings.Repeat("a", 80) + `"}`
	w := env.do(t, "POST", "/api/users", body)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "at most 72 bytes")
}

func TestCORS_Preflight(t *testing.T) {
	env := setupTestServer(t)
	w := env.do(t, "OPTIONS", "/api/issues/x", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}
