package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/tracker/internal/health"
	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/output"
)

var projectDesc string

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects and their people",
	Long:  "Create projects, list them, and manage the people eligible as assignees.",
}

var projectAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectAddRun(cmd.Context(), args[0])
	},
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectListRun(cmd.Context())
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show [name-or-id]",
	Short: "Show project details and progress",
	Long:  "Show a project's details, issue counts, and progress score. Without an argument, shows the selected project.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ref string
		if len(args) > 0 {
			ref = args[0]
		}
		return projectShowRun(cmd.Context(), ref)
	},
}

var projectPeopleCmd = &cobra.Command{
	Use:   "people [name-or-id]",
	Short: "List the people of a project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ref string
		if len(args) > 0 {
			ref = args[0]
		}
		return projectPeopleRun(cmd.Context(), ref)
	},
}

var projectMemberCmd = &cobra.Command{
	Use:   "member <name-or-id> <user-id>",
	Short: "Add a user to a project's people",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectMemberRun(cmd.Context(), args[0], args[1])
	},
}

func init() {
	projectAddCmd.Flags().StringVar(&projectDesc, "desc", "", "Project description")

	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectPeopleCmd)
	projectCmd.AddCommand(projectMemberCmd)
	rootCmd.AddCommand(projectCmd)
}

func projectAddRun(ctx context.Context, name string) error {
	sv, err := getServices()
	if err != nil {
		return err
	}
	p, err := sv.projects.Create(ctx, name, projectDesc)
	if err != nil {
		return err
	}
	if jsonOut {
		return ui.JSON(p)
	}
	ui.Success("Created project %s (%s)", output.Cyan(p.Name), p.ID)
	return nil
}

func projectListRun(ctx context.Context) error {
	sv, err := getServices()
	if err != nil {
		return err
	}
	projects, err := sv.projects.List(ctx)
	if err != nil {
		return err
	}
	if jsonOut {
		return ui.JSON(projects)
	}
	if len(projects) == 0 {
		ui.Info("No projects yet. Add one with: tracker project add <name>")
		return nil
	}

	scorer := health.NewScorer()
	table := ui.Table([]string{"Name", "ID", "Issues", "Progress", "Description"})
	for _, p := range projects {
		issues, err := sv.issues.ListProject(ctx, p.ID)
		if err != nil {
			return err
		}
		score := scorer.Score(issues)
		_ = table.Append([]string{
			p.Name,
			shortID(p.ID),
			fmt.Sprintf("%d", len(issues)),
			output.ProgressColor(score.Total),
			p.Description,
		})
	}
	_ = table.Render()
	return nil
}

func projectShowRun(ctx context.Context, ref string) error {
	sv, err := getServices()
	if err != nil {
		return err
	}
	p, err := projectOrSelected(ctx, sv, ref)
	if err != nil {
		return err
	}
	issues, err := sv.issues.ListProject(ctx, p.ID)
	if err != nil {
		return err
	}
	people, err := sv.projects.People(ctx, p.ID)
	if err != nil {
		return err
	}
	score := health.NewScorer().Score(issues)

	if jsonOut {
		return ui.JSON(struct {
			*models.Project
			People   []models.Person       `json:"people"`
			Progress *health.ProgressScore `json:"progress"`
		}{p, people, score})
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(p.Name), p.ID)
	if p.Description != "" {
		fmt.Fprintf(ui.Out, "  Desc:        %s\n", p.Description)
	}
	fmt.Fprintf(ui.Out, "  People:      %d\n", len(people))
	fmt.Fprintf(ui.Out, "  Issues:      %d (%d not started, %d in progress, %d resolved)\n",
		score.Total, score.NotStarted, score.InProgress, score.Resolved)
	fmt.Fprintf(ui.Out, "  Progress:    %s/100\n", output.ProgressColor(score.Total))
	ui.VerboseLog("completion %d/50, flow %d/25, recency %d/25", score.Completion, score.Flow, score.ActivityRecency)
	return nil
}

func projectPeopleRun(ctx context.Context, ref string) error {
	sv, err := getServices()
	if err != nil {
		return err
	}
	p, err := projectOrSelected(ctx, sv, ref)
	if err != nil {
		return err
	}
	people, err := sv.projects.People(ctx, p.ID)
	if err != nil {
		return err
	}
	if jsonOut {
		return ui.JSON(map[string]any{"people": people})
	}
	if len(people) == 0 {
		ui.Info("%s has no people yet.", p.Name)
		return nil
	}
	table := ui.Table([]string{"ID", "First name", "Last name"})
	for _, person := range people {
		_ = table.Append([]string{person.ID, person.FirstName, person.LastName})
	}
	_ = table.Render()
	return nil
}

func projectMemberRun(ctx context.Context, ref, userID string) error {
	sv, err := getServices()
	if err != nil {
		return err
	}
	p, err := sv.projects.Get(ctx, ref)
	if err != nil {
		return err
	}
	if err := sv.projects.AddMember(ctx, p.ID, userID); err != nil {
		return err
	}
	ui.Success("Added %s to %s", userName(ctx, sv, userID), output.Cyan(p.Name))
	return nil
}

// projectOrSelected resolves a project by name or id, falling back to the
// acting user's selected project.
func projectOrSelected(ctx context.Context, sv *services, ref string) (*models.Project, error) {
	if ref != "" {
		return sv.projects.Get(ctx, ref)
	}
	actor, err := currentActor(ctx, sv)
	if err != nil {
		return nil, fmt.Errorf("no project given: %w", err)
	}
	if actor.ProjectID == "" {
		return nil, fmt.Errorf("no project given and user %s has no selected project (run 'tracker user select')", actor.UserID)
	}
	return sv.projects.Get(ctx, actor.ProjectID)
}
