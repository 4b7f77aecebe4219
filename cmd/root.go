package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/tracker/internal/notify"
	"github.com/joescharf/tracker/internal/output"
	"github.com/joescharf/tracker/internal/service"
	"github.com/joescharf/tracker/internal/store"
	"github.com/joescharf/tracker/internal/telemetry"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	logger    *slog.Logger
	dataStore store.Store
	svc       *services

	verbose bool
	jsonOut bool
)

// services bundles the domain services sharing one store and bus.
type services struct {
	bus      *notify.Bus
	issues   *service.IssueService
	users    *service.UserService
	projects *service.ProjectService
}

var rootCmd = &cobra.Command{
	Use:   "tracker",
	Short: "Issue tracker - projects, issues, and a status workflow",
	Long: `tracker is an issue tracker backed by SQLite.
It serves a JSON API, an MCP server for coding agents, and an interactive
terminal browser for moving issues through their workflow.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	telemetry.Shutdown(context.Background())
	if dataStore != nil {
		_ = dataStore.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/tracker/config.yaml)")
	rootCmd.PersistentFlags().String("user", "", "Acting user id (default: user.id from config)")
	_ = viper.BindPFlag("user.id", rootCmd.PersistentFlags().Lookup("user"))
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TRACKER")
	viper.AutomaticEnv()

	defaultConfigDir, _ := configDirFunc()
	setDefaults(defaultConfigDir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key's default value.
func setDefaults(dir string) {
	viper.SetDefault("state_dir", dir)
	viper.SetDefault("db_path", filepath.Join(dir, "tracker.db"))
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.url", "http://localhost:8080")
	viper.SetDefault("workflow.enforce_transitions", true)
	viper.SetDefault("auth.bcrypt_cost", 12)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.stdout", false)
	viper.SetDefault("user.id", "")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	logger = newLogger(os.Stderr, verbose)

	// Store and services are opened lazily, only when commands need
	// them, so config/version run without a db.
}

// newLogger builds the structured logger used by the server and bus.
func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	if viper.GetBool("telemetry.enabled") {
		err := telemetry.Init(context.Background(), telemetry.Config{
			Enabled: true,
			Stdout:  viper.GetBool("telemetry.stdout"),
			Writer:  os.Stderr,
		}, "tracker", buildVersion)
		if err != nil {
			logger.Warn("telemetry disabled", "error", err)
		}
	}

	dataStore = telemetry.WrapStore(s)
	return dataStore, nil
}

// getServices returns the shared services, opening the store on first
// call. Every bus notification is logged at debug level.
func getServices() (*services, error) {
	if svc != nil {
		return svc, nil
	}
	s, err := getStore()
	if err != nil {
		return nil, err
	}

	bus := notify.New()
	bus.Subscribe(notify.LogSubscriber(logger))

	var opts []service.IssueOption
	if !viper.GetBool("workflow.enforce_transitions") {
		opts = append(opts, service.WithPermissiveTransitions())
	}
	if opt := typeSuggesterOption(); opt != nil {
		opts = append(opts, opt)
	}

	svc = &services{
		bus:      bus,
		issues:   service.NewIssueService(s, nil, bus, opts...),
		users:    service.NewUserService(s, viper.GetInt("auth.bcrypt_cost")),
		projects: service.NewProjectService(s),
	}
	return svc, nil
}

// currentActor resolves the acting user from --user or user.id.
func currentActor(ctx context.Context, sv *services) (service.Actor, error) {
	userID := viper.GetString("user.id")
	if userID == "" {
		return service.Actor{}, fmt.Errorf("no acting user: pass --user or set user.id (run 'tracker user select')")
	}
	return sv.users.ResolveActor(ctx, userID)
}
