package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/service"
)

// Server wraps the tracker services and exposes them as MCP tools.
type Server struct {
	issues   *service.IssueService
	users    *service.UserService
	projects *service.ProjectService
	version  string
}

// NewServer creates the MCP server wrapper with all required dependencies.
func NewServer(issues *service.IssueService, users *service.UserService, projects *service.ProjectService, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{issues: issues, users: users, projects: projects, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("tracker", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.updateIssueTool())
	srv.AddTool(s.enabledStatusesTool())
	srv.AddTool(s.dashboardTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

type issueOut struct {
	ID          string `json:"id"`
	Project     string `json:"project"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	Type        string `json:"type"`
	Assignee    string `json:"assignee,omitempty"`
	Reporter    string `json:"reporter"`
}

func toIssueOut(i *models.Issue) issueOut {
	return issueOut{
		ID:          i.ID,
		Project:     i.ProjectID,
		Summary:     i.Summary,
		Description: i.Description,
		Status:      i.Status.String(),
		Type:        i.Type.String(),
		Assignee:    i.AssigneeID,
		Reporter:    i.ReporterID,
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// tracker_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tracker_list_issues",
		mcp.WithDescription("List issues. Filter by project (name or id), status, or a search query matched against id and summary."),
		mcp.WithString("project", mcp.Description("Project name or id")),
		mcp.WithString("status", mcp.Description("Status filter"),
			mcp.Enum("new", "ready", "in_development", "in_review", "resolved")),
		mcp.WithString("query", mcp.Description("Case-insensitive search text")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectRef := request.GetString("project", "")
	query := request.GetString("query", "")

	var status models.IssueStatus
	if v := request.GetString("status", ""); v != "" {
		st, err := service.ParseStatus(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		status = st
	}

	var issues []*models.Issue
	var err error
	if projectRef != "" {
		p, perr := s.projects.Get(ctx, projectRef)
		if perr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("project not found: %s", projectRef)), nil
		}
		issues, err = s.issues.ListProject(ctx, p.ID)
	} else {
		issues, err = s.issues.FindByQuery(ctx, query)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list issues: %v", err)), nil
	}

	lowerQuery := strings.ToLower(query)
	out := []issueOut{}
	for _, i := range issues {
		if status != 0 && i.Status != status {
			continue
		}
		if projectRef != "" && lowerQuery != "" &&
			!strings.Contains(strings.ToLower(i.ID), lowerQuery) &&
			!strings.Contains(strings.ToLower(i.Summary), lowerQuery) {
			continue
		}
		out = append(out, toIssueOut(i))
	}
	return jsonResult(out)
}

// tracker_create_issue
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tracker_create_issue",
		mcp.WithDescription("Create an issue. When type is omitted it is suggested from the summary and description."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name or id")),
		mcp.WithString("reporter", mcp.Required(), mcp.Description("Reporter user id")),
		mcp.WithString("summary", mcp.Required(), mcp.Description("One-line summary")),
		mcp.WithString("description", mcp.Description("Longer description")),
		mcp.WithString("assignee", mcp.Description("Assignee user id; must be a member of the project")),
		mcp.WithString("type", mcp.Description("Issue type"),
			mcp.Enum("bug", "feature", "task", "improvement")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectRef, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}
	reporter, err := request.RequireString("reporter")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: reporter"), nil
	}
	summary, err := request.RequireString("summary")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: summary"), nil
	}
	description := request.GetString("description", "")

	p, err := s.projects.Get(ctx, projectRef)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("project not found: %s", projectRef)), nil
	}

	var issueType models.IssueType
	if v := request.GetString("type", ""); v != "" {
		if issueType, err = service.ParseType(v); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	} else if issueType, err = s.issues.SuggestType(ctx, summary, description); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to suggest type: %v", err)), nil
	}

	issue, err := s.issues.Create(ctx, service.CreateIssueInput{
		Project:     p.ID,
		Reporter:    reporter,
		Assignee:    request.GetString("assignee", ""),
		Summary:     summary,
		Description: description,
		Type:        issueType,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create issue: %v", err)), nil
	}
	return jsonResult(toIssueOut(issue))
}

// tracker_update_issue
func (s *Server) updateIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tracker_update_issue",
		mcp.WithDescription("Change the status and/or type of an issue. Status changes must follow the workflow; use tracker_enabled_statuses to see the allowed targets."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue id or unique id prefix")),
		mcp.WithString("status", mcp.Description("New status")),
		mcp.WithString("type", mcp.Description("New type")),
	)
	return tool, s.handleUpdateIssue
}

func (s *Server) handleUpdateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}

	issue, err := s.findIssue(ctx, issueID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var patch service.IssuePatch
	if v := request.GetString("status", ""); v != "" {
		st, err := service.ParseStatus(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		patch.Status = &st
	}
	if v := request.GetString("type", ""); v != "" {
		t, err := service.ParseType(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		patch.Type = &t
	}
	if patch.Status == nil && patch.Type == nil {
		return mcp.NewToolResultError("nothing to update: pass status or type"), nil
	}

	updated, err := s.issues.Update(ctx, issue.ID, patch)
	if err != nil {
		if errors.Is(err, service.ErrTransitionNotAllowed) {
			return mcp.NewToolResultError(fmt.Sprintf("%v (see tracker_enabled_statuses)", err)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to update issue: %v", err)), nil
	}
	return jsonResult(toIssueOut(updated))
}

// tracker_enabled_statuses
func (s *Server) enabledStatusesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tracker_enabled_statuses",
		mcp.WithDescription("List the statuses an issue can be set to: its current status plus every status one workflow transition away."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue id or unique id prefix")),
	)
	return tool, s.handleEnabledStatuses
}

func (s *Server) handleEnabledStatuses(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}
	issue, err := s.findIssue(ctx, issueID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	options, err := s.issues.EnabledStatuses(ctx, issue.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load statuses: %v", err)), nil
	}
	return jsonResult(options)
}

// tracker_dashboard
func (s *Server) dashboardTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tracker_dashboard",
		mcp.WithDescription("Show the not started, in progress and resolved issues of a user's selected project."),
		mcp.WithString("user", mcp.Required(), mcp.Description("User id")),
	)
	return tool, s.handleDashboard
}

func (s *Server) handleDashboard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: user"), nil
	}
	actor, err := s.users.ResolveActor(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("user not found: %s", userID)), nil
	}
	d, err := s.issues.Dashboard(ctx, actor)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d)
}

// findIssue finds an issue by full ID or unique prefix.
func (s *Server) findIssue(ctx context.Context, id string) (*models.Issue, error) {
	if issue, err := s.issues.FindByID(ctx, id); err == nil {
		return issue, nil
	}

	upper := strings.ToUpper(id)
	issues, err := s.issues.FindByQuery(ctx, id)
	if err != nil {
		return nil, err
	}

	var matches []*models.Issue
	for _, issue := range issues {
		if strings.HasPrefix(issue.ID, upper) {
			matches = append(matches, issue)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("issue not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous issue prefix %q matches %d issues", id, len(matches))
	}
}
