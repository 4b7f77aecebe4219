package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/joescharf/tracker/internal/output"
	"github.com/joescharf/tracker/internal/service"
)

var (
	userEmail     string
	userPassword  string
	userFirstName string
	userLastName  string
	userProject   string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userSignupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create a user",
	Long: `Create a user. Without --password the password is read from the
terminal (or from TRACKER_PASSWORD when stdin is not a terminal).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return userSignupRun(cmd.Context())
	},
}

var userListCmd = &cobra.Command{
	Use:     "list [query]",
	Aliases: []string{"ls"},
	Short:   "List users, optionally filtered by email or name",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var q string
		if len(args) > 0 {
			q = args[0]
		}
		return userListRun(cmd.Context(), q)
	},
}

var userSelectCmd = &cobra.Command{
	Use:   "select <user-id>",
	Short: "Make a user the acting user and optionally select their project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return userSelectRun(cmd.Context(), args[0])
	},
}

func init() {
	userSignupCmd.Flags().StringVar(&userEmail, "email", "", "Email address (required)")
	userSignupCmd.Flags().StringVar(&userPassword, "password", "", "Password, at least 8 characters")
	userSignupCmd.Flags().StringVar(&userFirstName, "first-name", "", "First name")
	userSignupCmd.Flags().StringVar(&userLastName, "last-name", "", "Last name")
	_ = userSignupCmd.MarkFlagRequired("email")

	userSelectCmd.Flags().StringVar(&userProject, "project", "", "Project name or id to select for the user")

	userCmd.AddCommand(userSignupCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userSelectCmd)
	rootCmd.AddCommand(userCmd)
}

func userSignupRun(ctx context.Context) error {
	sv, err := getServices()
	if err != nil {
		return err
	}

	password := userPassword
	if password == "" {
		if password, err = readPassword(); err != nil {
			return err
		}
	}

	u, err := sv.users.Signup(ctx, service.SignupInput{
		Email:     userEmail,
		Password:  password,
		FirstName: userFirstName,
		LastName:  userLastName,
	})
	if err != nil {
		return err
	}
	if jsonOut {
		return ui.JSON(u)
	}
	ui.Success("Created user %s (%s)", output.Cyan(u.Email), u.ID)
	return nil
}

// readPassword prompts on the terminal without echo, or reads
// TRACKER_PASSWORD when stdin is not a terminal.
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		if pw := os.Getenv("TRACKER_PASSWORD"); pw != "" {
			return pw, nil
		}
		return "", fmt.Errorf("no password: pass --password or set TRACKER_PASSWORD")
	}
	var password string
	prompt := huh.NewInput().
		Title("Password").
		EchoMode(huh.EchoModePassword).
		Value(&password).
		Validate(func(s string) error {
			if len(s) < 8 {
				return fmt.Errorf("password must be at least 8 characters")
			}
			return nil
		})
	if err := prompt.Run(); err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return password, nil
}

func userListRun(ctx context.Context, q string) error {
	sv, err := getServices()
	if err != nil {
		return err
	}
	users, err := sv.users.FindByQuery(ctx, q)
	if err != nil {
		return err
	}
	if jsonOut {
		return ui.JSON(users)
	}
	if len(users) == 0 {
		ui.Info("No users found.")
		return nil
	}

	current := viper.GetString("user.id")
	table := ui.Table([]string{"", "ID", "Email", "Name", "Selected project"})
	for _, u := range users {
		marker := ""
		if u.ID == current {
			marker = "*"
		}
		project := ""
		if u.SelectedProjectID != "" {
			if p, err := sv.projects.Get(ctx, u.SelectedProjectID); err == nil {
				project = p.Name
			}
		}
		_ = table.Append([]string{marker, u.ID, u.Email, strings.TrimSpace(u.FirstName + " " + u.LastName), project})
	}
	_ = table.Render()
	return nil
}

func userSelectRun(ctx context.Context, userID string) error {
	sv, err := getServices()
	if err != nil {
		return err
	}
	u, err := sv.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if userProject != "" {
		p, err := sv.projects.Get(ctx, userProject)
		if err != nil {
			return err
		}
		if u, err = sv.users.SelectProject(ctx, u.ID, p.ID); err != nil {
			return err
		}
		ui.Success("Selected project %s for %s", output.Cyan(p.Name), u.Email)
	}

	if err := setConfigValue("user.id", u.ID); err != nil {
		return fmt.Errorf("save acting user: %w", err)
	}
	ui.Success("Acting user is now %s", output.Cyan(u.Email))
	return nil
}
