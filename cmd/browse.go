package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/tracker/internal/browse"
)

var (
	browseSelected string
	browseRemote   bool
)

var browseCmd = &cobra.Command{
	Use:   "browse [project]",
	Short: "Browse and edit a project's issues interactively",
	Long: `Open the interactive issue browser on a project (default: the acting
user's selected project).

By default the browser works on the local database. Issues created with 'c'
are reported by the acting user (--user or user.id) and reach the list
through the notification bus, as do attachment deletions. With --remote it
talks to a running 'tracker serve' at server.url instead.

Keys: j/k move, s status, t type, c new issue, a attachments, / filter,
? help, q quit.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ref string
		if len(args) > 0 {
			ref = args[0]
		}
		return browseRun(cmd, ref)
	},
}

func init() {
	browseCmd.Flags().StringVar(&browseSelected, "selected-issue", "", "Issue id to select on open")
	browseCmd.Flags().BoolVar(&browseRemote, "remote", false, "Use the API server at server.url")
	rootCmd.AddCommand(browseCmd)
}

func browseRun(cmd *cobra.Command, ref string) error {
	ctx := cmd.Context()
	sv, err := getServices()
	if err != nil {
		return err
	}
	project, err := projectOrSelected(ctx, sv, ref)
	if err != nil {
		return err
	}

	reporter := viper.GetString("user.id")
	var source browse.Source
	if browseRemote {
		source = browse.NewHTTPSource(viper.GetString("server.url"), project.ID, reporter, nil)
	} else {
		local := browse.NewServiceSource(sv.issues, sv.projects, project.ID, reporter, sv.bus)
		defer local.Close()
		source = local
	}

	last, err := browse.Run(ctx, source, browseSelected)
	if err != nil {
		return err
	}
	if last != "" {
		ui.Info("Reopen with: tracker browse %s --selected-issue %s", project.Name, last)
	}
	return nil
}
