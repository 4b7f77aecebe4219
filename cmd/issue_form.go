package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/output"
	"github.com/joescharf/tracker/internal/service"
	"github.com/joescharf/tracker/internal/workflow"
)

var issueNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create an issue using an interactive form",
	Long: `Create an issue using an interactive terminal form.

The assignee is picked from the project's people; the type defaults to a
suggestion based on the summary.

  - Tab/Shift+Tab: Move between fields
  - Enter: Submit
  - Ctrl+C: Cancel`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueNewRun(cmd.Context())
	},
}

func init() {
	issueCmd.AddCommand(issueNewCmd)
}

func issueNewRun(ctx context.Context) error {
	sv, err := getServices()
	if err != nil {
		return err
	}
	actor, err := currentActor(ctx, sv)
	if err != nil {
		return err
	}
	project, err := projectOrSelected(ctx, sv, issueProject)
	if err != nil {
		return err
	}
	people, err := sv.projects.People(ctx, project.ID)
	if err != nil {
		return err
	}

	var (
		summary     string
		description string
		typeValue   string
		assignee    string
		confirmed   = true
	)

	assigneeOptions := []huh.Option[string]{huh.NewOption("Unassigned", "")}
	for _, p := range people {
		assigneeOptions = append(assigneeOptions, huh.NewOption(strings.TrimSpace(p.FirstName+" "+p.LastName), p.ID))
	}

	details := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Summary").
				Description(fmt.Sprintf("New issue in %s (required)", project.Name)).
				Placeholder("e.g., Login fails with expired token").
				Value(&summary).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("summary is required")
					}
					return nil
				}),

			huh.NewText().
				Title("Description").
				Placeholder("Steps to reproduce, context, acceptance...").
				CharLimit(5000).
				Value(&description),
		),
	)
	if err := details.Run(); err != nil {
		return formError(err)
	}

	// Preselect the suggested type.
	suggested, err := sv.issues.SuggestType(ctx, summary, description)
	if err != nil || !suggested.Valid() {
		ui.VerboseLog("type suggestion failed: %v", err)
		suggested = models.IssueTypeTask
	}
	typeValue = strconv.Itoa(int(suggested))

	var typeOptions []huh.Option[string]
	for _, o := range workflow.Types() {
		typeOptions = append(typeOptions, huh.NewOption(o.Label, strconv.Itoa(o.Value)))
	}

	assignment := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Type").
				Options(typeOptions...).
				Value(&typeValue),

			huh.NewSelect[string]().
				Title("Assignee").
				Description("Only the project's people can be assigned").
				Options(assigneeOptions...).
				Value(&assignee),

			huh.NewConfirm().
				Title("Create this issue?").
				Affirmative("Create").
				Negative("Cancel").
				Value(&confirmed),
		),
	)
	if err := assignment.Run(); err != nil {
		return formError(err)
	}
	if !confirmed {
		ui.Info("Issue creation cancelled.")
		return nil
	}

	issueType, err := service.ParseType(typeValue)
	if err != nil {
		return err
	}
	issue, err := sv.issues.Create(ctx, service.CreateIssueInput{
		Project:     project.ID,
		Reporter:    actor.UserID,
		Assignee:    assignee,
		Summary:     summary,
		Description: description,
		Type:        issueType,
	})
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	ui.Success("Created %s %s: %s", output.TypeColor(issue.Type), output.Cyan(shortID(issue.ID)), issue.Summary)
	return nil
}

// formError turns a user abort into a quiet cancellation.
func formError(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		ui.Info("Cancelled.")
		return nil
	}
	return fmt.Errorf("form error: %w", err)
}
