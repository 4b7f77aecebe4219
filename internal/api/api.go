package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/joescharf/tracker/internal/health"
	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/service"
)

// UserHeader carries the id of the acting user on dashboard requests.
const UserHeader = "X-User-ID"

// Server provides the REST API handlers.
type Server struct {
	issues   *service.IssueService
	users    *service.UserService
	projects *service.ProjectService
	scorer   *health.Scorer
	logger   *slog.Logger
}

// NewServer creates a new API server. A nil logger discards request logs.
func NewServer(issues *service.IssueService, users *service.UserService, projects *service.ProjectService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		issues:   issues,
		users:    users,
		projects: projects,
		scorer:   health.NewScorer(),
		logger:   logger,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/issues", s.searchIssues)
	mux.HandleFunc("POST /api/issues", s.createIssue)
	mux.HandleFunc("GET /api/issues/{id}", s.getIssue)
	mux.HandleFunc("PATCH /api/issues/{id}", s.patchIssue)
	mux.HandleFunc("GET /api/issues/{id}/statuses", s.enabledStatuses)
	mux.HandleFunc("GET /api/issues/{id}/attachments", s.listAttachments)
	mux.HandleFunc("POST /api/issues/{id}/attachments", s.createAttachment)
	mux.HandleFunc("DELETE /api/attachments/{id}", s.deleteAttachment)

	mux.HandleFunc("GET /api/dashboard", s.dashboard)
	mux.HandleFunc("GET /api/statuses", s.listStatuses)
	mux.HandleFunc("GET /api/types", s.listTypes)

	mux.HandleFunc("GET /api/projects", s.listProjects)
	mux.HandleFunc("POST /api/projects", s.createProject)
	mux.HandleFunc("GET /api/projects/{id}", s.getProject)
	mux.HandleFunc("GET /api/projects/{id}/people", s.listPeople)
	mux.HandleFunc("POST /api/projects/{id}/people", s.addPerson)
	mux.HandleFunc("GET /api/projects/{id}/progress", s.projectProgress)

	mux.HandleFunc("GET /api/users", s.searchUsers)
	mux.HandleFunc("POST /api/users", s.signup)
	mux.HandleFunc("GET /api/users/{id}", s.getUser)
	mux.HandleFunc("PUT /api/users/{id}/selected-project", s.selectProject)

	return s.logRequests(corsMiddleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+UserHeader)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.LogAttrs(r.Context(), slog.LevelInfo, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service sentinels to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrTransitionNotAllowed), errors.Is(err, service.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// --- Issues ---

func (s *Server) searchIssues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var issues []*models.Issue
	var err error
	if project := q.Get("project"); project != "" {
		issues, err = s.issues.SearchProject(r.Context(), project, q.Get("q"))
	} else {
		issues, err = s.issues.FindByQuery(r.Context(), q.Get("q"))
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

// CreateIssueRequest is the JSON body for POST /api/issues.
type CreateIssueRequest struct {
	Project     string             `json:"project"`
	Reporter    string             `json:"reporter"`
	Assignee    string             `json:"assignee"`
	Summary     string             `json:"summary"`
	Description string             `json:"description"`
	Type        models.IssueType   `json:"type"`
	Status      models.IssueStatus `json:"status"`
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	var req CreateIssueRequest
	if !decode(w, r, &req) {
		return
	}
	issue, err := s.issues.Create(r.Context(), service.CreateIssueInput(req))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := s.issues.FindByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// PatchIssueRequest is the JSON body for PATCH /api/issues/{id}. Status and
// type accept a number, a machine name or a workflow place.
type PatchIssueRequest struct {
	Status *models.IssueStatus `json:"status"`
	Type   *models.IssueType   `json:"type"`
}

func (s *Server) patchIssue(w http.ResponseWriter, r *http.Request) {
	var req PatchIssueRequest
	if !decode(w, r, &req) {
		return
	}
	issue, err := s.issues.Update(r.Context(), r.PathValue("id"), service.IssuePatch{
		Status: req.Status,
		Type:   req.Type,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) enabledStatuses(w http.ResponseWriter, r *http.Request) {
	options, err := s.issues.EnabledStatuses(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, options)
}

func (s *Server) listAttachments(w http.ResponseWriter, r *http.Request) {
	attachments, err := s.issues.ListAttachments(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attachments)
}

// CreateAttachmentRequest is the JSON body for POST /api/issues/{id}/attachments.
type CreateAttachmentRequest struct {
	FileName  string `json:"fileName"`
	Path      string `json:"path"`
	MediaType string `json:"mediaType"`
}

func (s *Server) createAttachment(w http.ResponseWriter, r *http.Request) {
	var req CreateAttachmentRequest
	if !decode(w, r, &req) {
		return
	}
	a, err := s.issues.AddAttachment(r.Context(), r.PathValue("id"), req.FileName, req.Path, req.MediaType)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) deleteAttachment(w http.ResponseWriter, r *http.Request) {
	if err := s.issues.DeleteAttachment(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	actor, err := s.users.ResolveActor(r.Context(), r.Header.Get(UserHeader))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	d, err := s.issues.Dashboard(r.Context(), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) listStatuses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.issues.Statuses())
}

func (s *Server) listTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.issues.Types())
}

// --- Projects ---

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !decode(w, r, &req) {
		return
	}
	p, err := s.projects.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.projects.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) listPeople(w http.ResponseWriter, r *http.Request) {
	people, err := s.projects.People(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"people": people})
}

func (s *Server) addPerson(w http.ResponseWriter, r *http.Request) {
	var req struct {
		User string `json:"user"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.projects.AddMember(r.Context(), r.PathValue("id"), req.User); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) projectProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.projects.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	issues, err := s.issues.ListProject(r.Context(), p.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.scorer.Score(issues))
}

// --- Users ---

func (s *Server) searchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.FindByQuery(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// SignupRequest is the JSON body for POST /api/users.
type SignupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := s.users.Signup(r.Context(), service.SignupInput(req))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.FindByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) selectProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Project string `json:"project"`
	}
	if !decode(w, r, &req) {
		return
	}
	u, err := s.users.SelectProject(r.Context(), r.PathValue("id"), req.Project)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
