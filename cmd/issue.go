package cmd

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/output"
	"github.com/joescharf/tracker/internal/service"
)

var (
	issueProject     string
	issueSummary     string
	issueDesc        string
	issueType        string
	issueStatus      string
	issueAssignee    string
	issueReporter    string
	issueSuggestType bool
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage issues",
	Long:  "Create, list, and move issues through the status workflow.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd.Context())
	},
}

var issueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a new issue",
	Long: `Create a new issue. Without --project the acting user's selected
project is used; without --reporter the acting user reports it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun(cmd.Context())
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List a project's issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd.Context())
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(cmd.Context(), args[0])
	},
}

var issueStatusCmd = &cobra.Command{
	Use:   "status <issue-id> <status>",
	Short: "Move an issue to a new status",
	Long: `Move an issue to a new status. The status may be given as its number,
name (IN_REVIEW), or workflow place (in_review).`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueSetStatusRun(cmd.Context(), args[0], args[1])
	},
}

var issueTypeCmd = &cobra.Command{
	Use:   "type <issue-id> <type>",
	Short: "Change an issue's type",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueSetTypeRun(cmd.Context(), args[0], args[1])
	},
}

var issueStatusesCmd = &cobra.Command{
	Use:   "statuses <issue-id>",
	Short: "List the statuses an issue can move to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueStatusesRun(cmd.Context(), args[0])
	},
}

var issueSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search issues by id or summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueSearchRun(cmd.Context(), args[0])
	},
}

var issueDashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show not started, in progress, and resolved issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDashboardRun(cmd.Context())
	},
}

var issueClassifyApply bool

var issueClassifyCmd = &cobra.Command{
	Use:   "classify <issue-id>",
	Short: "Suggest a type for an issue from its text",
	Long: `Suggest a type for an issue from its summary and description. Uses the
Anthropic API when anthropic.api_key is set, keyword heuristics otherwise.
With --apply the suggestion is saved.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueClassifyRun(cmd.Context(), args[0])
	},
}

var issueAttachCmd = &cobra.Command{
	Use:   "attach <issue-id> <file>",
	Short: "Attach a file reference to an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAttachRun(cmd.Context(), args[0], args[1])
	},
}

var issueDetachCmd = &cobra.Command{
	Use:   "detach <attachment-id>",
	Short: "Delete an attachment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDetachRun(cmd.Context(), args[0])
	},
}

func init() {
	issueAddCmd.Flags().StringVar(&issueSummary, "summary", "", "Issue summary (required)")
	issueAddCmd.Flags().StringVar(&issueDesc, "desc", "", "Issue description")
	issueAddCmd.Flags().StringVar(&issueType, "type", "", "Type: bug, feature, task, improvement (default task)")
	issueAddCmd.Flags().StringVar(&issueStatus, "status", "", "Initial status (default new)")
	issueAddCmd.Flags().StringVar(&issueAssignee, "assignee", "", "Assignee user id (must be a project member)")
	issueAddCmd.Flags().StringVar(&issueReporter, "reporter", "", "Reporter user id (default: acting user)")
	issueAddCmd.Flags().BoolVar(&issueSuggestType, "suggest-type", false, "Suggest the type from the summary when --type is not given")
	_ = issueAddCmd.MarkFlagRequired("summary")

	issueListCmd.Flags().StringVar(&issueStatus, "status", "", "Filter by status")
	issueClassifyCmd.Flags().BoolVar(&issueClassifyApply, "apply", false, "Save the suggested type")

	issueCmd.PersistentFlags().StringVar(&issueProject, "project", "", "Project name or id (default: selected project)")
	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueStatusCmd)
	issueCmd.AddCommand(issueTypeCmd)
	issueCmd.AddCommand(issueStatusesCmd)
	issueCmd.AddCommand(issueSearchCmd)
	issueCmd.AddCommand(issueDashboardCmd)
	issueCmd.AddCommand(issueClassifyCmd)
	issueCmd.AddCommand(issueAttachCmd)
	issueCmd.AddCommand(issueDetachCmd)
	rootCmd.AddCommand(issueCmd)
}

func issueAddRun(ctx context.Context) error {
	sv, err := getServices()
	if err != nil {
		return err
	}

	project, err := projectOrSelected(ctx, sv, issueProject)
	if err != nil {
		return err
	}
	reporter := issueReporter
	if reporter == "" {
		actor, err := currentActor(ctx, sv)
		if err != nil {
			return err
		}
		reporter = actor.UserID
	}

	in := service.CreateIssueInput{
		Project:     project.ID,
		Reporter:    reporter,
		Assignee:    issueAssignee,
		Summary:     issueSummary,
		Description: issueDesc,
	}
	switch {
	case issueType != "":
		if in.Type, err = service.ParseType(issueType); err != nil {
			return err
		}
	case issueSuggestType:
		if in.Type, err = sv.issues.SuggestType(ctx, issueSummary, issueDesc); err != nil {
			return err
		}
		ui.VerboseLog("Suggested type: %s", in.Type.Label())
	}
	if issueStatus != "" {
		if in.Status, err = service.ParseStatus(issueStatus); err != nil {
			return err
		}
	}

	issue, err := sv.issues.Create(ctx, in)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	if jsonOut {
		return ui.JSON(issue)
	}

	ui.Success("Created %s %s: %s", output.TypeColor(issue.Type), output.Cyan(shortID(issue.ID)), issue.Summary)
	return nil
}

func issueListRun(ctx context.Context) error {
	sv, err := getServices()
	if err != nil {
		return err
	}

	project, err := projectOrSelected(ctx, sv, issueProject)
	if err != nil {
		return err
	}
	issues, err := sv.issues.ListProject(ctx, project.ID)
	if err != nil {
		return err
	}

	if issueStatus != "" {
		status, err := service.ParseStatus(issueStatus)
		if err != nil {
			return err
		}
		filtered := issues[:0]
		for _, issue := range issues {
			if issue.Status == status {
				filtered = append(filtered, issue)
			}
		}
		issues = filtered
	}

	if jsonOut {
		return ui.JSON(issues)
	}
	if len(issues) == 0 {
		ui.Info("No issues in %s.", project.Name)
		return nil
	}
	renderIssueTable(issues)
	return nil
}

func renderIssueTable(issues []*models.Issue) {
	table := ui.Table([]string{"ID", "Summary", "Status", "Type", "Assignee", "Updated"})
	for _, issue := range issues {
		_ = table.Append([]string{
			shortID(issue.ID),
			issue.Summary,
			output.StatusColor(issue.Status),
			output.TypeColor(issue.Type),
			shortID(issue.AssigneeID),
			timeAgo(issue.UpdatedAt),
		})
	}
	_ = table.Render()
}

func issueShowRun(ctx context.Context, ref string) error {
	sv, err := getServices()
	if err != nil {
		return err
	}
	issue, err := findIssue(ctx, sv, ref)
	if err != nil {
		return err
	}
	if jsonOut {
		return ui.JSON(issue)
	}

	projName := issue.ProjectID
	if p, err := sv.projects.Get(ctx, issue.ProjectID); err == nil {
		projName = p.Name
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(shortID(issue.ID)), issue.Summary)
	fmt.Fprintf(ui.Out, "  Project:    %s\n", projName)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(issue.Status))
	fmt.Fprintf(ui.Out, "  Type:       %s\n", output.TypeColor(issue.Type))
	fmt.Fprintf(ui.Out, "  Reporter:   %s\n", userName(ctx, sv, issue.ReporterID))
	if issue.AssigneeID != "" {
		fmt.Fprintf(ui.Out, "  Assignee:   %s\n", userName(ctx, sv, issue.AssigneeID))
	}
	if issue.Description != "" {
		fmt.Fprintf(ui.Out, "  Desc:       %s\n", issue.Description)
	}
	for i, a := range issue.Attachments {
		label := ""
		if i == 0 {
			label = "Files:"
		}
		fmt.Fprintf(ui.Out, "  %-11s %s  %s (%s)\n", label, shortID(a.ID), a.FileName, a.MediaType)
	}
	fmt.Fprintf(ui.Out, "  Created:    %s\n", issue.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Updated:    %s\n", issue.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", issue.ID)
	return nil
}

func issueSetStatusRun(ctx context.Context, ref, value string) error {
	sv, err := getServices()
	if err != nil {
		return err
	}
	status, err := service.ParseStatus(value)
	if err != nil {
		return err
	}
	issue, err := findIssue(ctx, sv, ref)
	if err != nil {
		return err
	}
	from := issue.Status

	updated, err := sv.issues.UpdateStatus(ctx, issue.ID, status)
	if err != nil {
		return err
	}
	if jsonOut {
		return ui.JSON(updated)
	}
	ui.Success("%s: %s -> %s", output.Cyan(shortID(updated.ID)), output.StatusColor(from), output.StatusColor(updated.Status))
	return nil
}

func issueSetTypeRun(ctx context.Context, ref, value string) error {
	sv, err := getServices()
	if err != nil {
		return err
	}
	t, err := service.ParseType(value)
	if err != nil {
		return err
	}
	issue, err := findIssue(ctx, sv, ref)
	if err != nil {
		return err
	}

	updated, err := sv.issues.UpdateType(ctx, issue.ID, t)
	if err != nil {
		return err
	}
	if jsonOut {
		return ui.JSON(updated)
	}
	ui.Success("%s is now a %s", output.Cyan(shortID(updated.ID)), output.TypeColor(updated.Type))
	return nil
}

func issueStatusesRun(ctx context.Context, ref string) error {
	sv, err := getServices()
	if err != nil {
		return err
	}
	issue, err := findIssue(ctx, sv, ref)
	if err != nil {
		return err
	}
	options, err := sv.issues.EnabledStatuses(ctx, issue.ID)
	if err != nil {
		return err
	}
	if jsonOut {
		return ui.JSON(options)
	}

	for _, o := range options {
		status := models.IssueStatus(o.Value)
		marker := " "
		if status == issue.Status {
			marker = "*"
		}
		fmt.Fprintf(ui.Out, "%s %d  %s (%s)\n", marker, o.Value, output.StatusColor(status), status.WorkflowPlace())
	}
	return nil
}

func issueSearchRun(ctx context.Context, q string) error {
	sv, err := getServices()
	if err != nil {
		return err
	}
	issues, err := sv.issues.FindByQuery(ctx, q)
	if err != nil {
		return err
	}
	if jsonOut {
		return ui.JSON(issues)
	}
	if len(issues) == 0 {
		ui.Info("No issues match %q.", q)
		return nil
	}
	renderIssueTable(issues)
	return nil
}

func issueDashboardRun(ctx context.Context) error {
	sv, err := getServices()
	if err != nil {
		return err
	}
	actor, err := currentActor(ctx, sv)
	if err != nil {
		return err
	}
	dash, err := sv.issues.Dashboard(ctx, actor)
	if err != nil {
		return err
	}
	if jsonOut {
		return ui.JSON(dash)
	}

	sections := []struct {
		title  string
		issues []models.IssueSummary
	}{
		{"Not started", dash.NotStarted},
		{"In progress", dash.InProgress},
		{"Resolved", dash.Resolved},
	}
	for i, sec := range sections {
		if i > 0 {
			fmt.Fprintln(ui.Out)
		}
		fmt.Fprintf(ui.Out, "%s (%d)\n", output.Cyan(sec.title), len(sec.issues))
		for _, is := range sec.issues {
			fmt.Fprintf(ui.Out, "  %s  %s\n", shortID(is.ID), is.Summary)
		}
	}
	return nil
}

func issueClassifyRun(ctx context.Context, ref string) error {
	sv, err := getServices()
	if err != nil {
		return err
	}
	issue, err := findIssue(ctx, sv, ref)
	if err != nil {
		return err
	}
	suggested, err := sv.issues.SuggestType(ctx, issue.Summary, issue.Description)
	if err != nil {
		return err
	}

	if suggested == issue.Type {
		ui.Info("%s already looks like a %s", output.Cyan(shortID(issue.ID)), output.TypeColor(issue.Type))
		return nil
	}
	if !issueClassifyApply {
		ui.Info("%s: %s -> %s (use --apply to save)", output.Cyan(shortID(issue.ID)), output.TypeColor(issue.Type), output.TypeColor(suggested))
		return nil
	}
	if _, err := sv.issues.UpdateType(ctx, issue.ID, suggested); err != nil {
		return err
	}
	ui.Success("%s is now a %s", output.Cyan(shortID(issue.ID)), output.TypeColor(suggested))
	return nil
}

func issueAttachRun(ctx context.Context, ref, path string) error {
	sv, err := getServices()
	if err != nil {
		return err
	}
	issue, err := findIssue(ctx, sv, ref)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	mediaType := mime.TypeByExtension(filepath.Ext(abs))
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	a, err := sv.issues.AddAttachment(ctx, issue.ID, filepath.Base(abs), abs, mediaType)
	if err != nil {
		return err
	}
	if jsonOut {
		return ui.JSON(a)
	}
	ui.Success("Attached %s to %s (%s)", a.FileName, output.Cyan(shortID(issue.ID)), shortID(a.ID))
	return nil
}

func issueDetachRun(ctx context.Context, attachmentID string) error {
	sv, err := getServices()
	if err != nil {
		return err
	}
	if err := sv.issues.DeleteAttachment(ctx, attachmentID); err != nil {
		return err
	}
	ui.Success("Deleted attachment %s", shortID(attachmentID))
	return nil
}

// findIssue finds an issue by full ID or unique prefix.
func findIssue(ctx context.Context, sv *services, id string) (*models.Issue, error) {
	if issue, err := sv.issues.FindByID(ctx, id); err == nil {
		return issue, nil
	}

	upper := strings.ToUpper(id)
	candidates, err := sv.issues.FindByQuery(ctx, upper)
	if err != nil {
		return nil, err
	}

	var matches []*models.Issue
	for _, issue := range candidates {
		if strings.HasPrefix(issue.ID, upper) {
			matches = append(matches, issue)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("issue not found: %s", id)
	case 1:
		return sv.issues.FindByID(ctx, matches[0].ID)
	default:
		return nil, fmt.Errorf("ambiguous issue ID %s: matches %d issues", id, len(matches))
	}
}

// userName returns "First Last" for a user id, or the id when unknown.
func userName(ctx context.Context, sv *services, id string) string {
	u, err := sv.users.FindByID(ctx, id)
	if err != nil {
		return id
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// shortID returns a truncated ULID for display (first 12 chars).
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// timeAgo renders t relative to now in coarse units.
func timeAgo(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
