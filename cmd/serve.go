package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/tracker/internal/api"
	"github.com/joescharf/tracker/internal/daemon"
	"github.com/joescharf/tracker/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON API server",
	Long: `Start an HTTP server exposing the issue tracker JSON API.
By default it listens on port 8080. Use --port to change it.

Use 'tracker serve start' to run it in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun(cmd.Context())
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.PersistentFlags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("server.port", serveCmd.PersistentFlags().Lookup("port"))

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

// pidFile returns the PID file tracking the background server.
func pidFile() *daemon.PIDFile {
	dir, _ := configDirFunc()
	return daemon.NewPIDFile(filepath.Join(dir, "tracker-serve.pid"))
}

// serveLogPath returns the log file of the background server.
func serveLogPath() string {
	dir, _ := configDirFunc()
	return filepath.Join(dir, "tracker-serve.log")
}

// serveRun runs the API server in the foreground until a shutdown signal.
func serveRun(ctx context.Context) error {
	sv, err := getServices()
	if err != nil {
		return err
	}

	var handler http.Handler = api.NewServer(sv.issues, sv.users, sv.projects, logger).Router()
	if telemetry.Enabled() {
		handler = otelhttp.NewHandler(handler, "tracker.api")
	}

	port := viper.GetInt("server.port")
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("serving API", "addr", srv.Addr, "transitions_enforced", sv.issues.EnforcesTransitions())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// waitForServer polls the API until it answers or the backoff gives up.
func waitForServer(ctx context.Context, baseURL string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = 5 * time.Second

	client := &http.Client{Timeout: time.Second}
	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/statuses", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health check: %s", resp.Status)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

func serveStartRun() error {
	pf := pidFile()
	if rec, err := pf.Running(); err == nil {
		return fmt.Errorf("server already running (pid %d)", rec.PID)
	} else if !errors.Is(err, daemon.ErrNotRunning) {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(pf.Path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	port := viper.GetInt("server.port")
	args := []string{"serve", "--port", strconv.Itoa(port)}
	if cfg := viper.ConfigFileUsed(); cfg != "" {
		args = append(args, "--config", cfg)
	}
	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	pid := child.Process.Pid
	if err := pf.Save(daemon.Record{PID: pid, Port: port, StartedAt: time.Now().UTC()}); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	_ = child.Process.Release()

	if err := waitForServer(context.Background(), fmt.Sprintf("http://localhost:%d", port)); err != nil {
		ui.Warning("Server did not answer yet: %v (see %s)", err, serveLogPath())
	}
	ui.Success("Server started (pid %d) on port %d", pid, port)
	ui.Info("Logs: %s", serveLogPath())
	return nil
}

func serveStopRun(ctx context.Context) error {
	pf := pidFile()
	rec, err := pf.Running()
	if err != nil {
		return err
	}
	killed, err := pf.Stop(ctx, 5*time.Second)
	if err != nil {
		return fmt.Errorf("stop server: %w", err)
	}
	if killed {
		ui.Warning("Server did not exit in time, killed pid %d", rec.PID)
	}
	ui.Success("Server stopped (pid %d)", rec.PID)
	return nil
}

func serveStatusRun() error {
	rec, err := pidFile().Running()
	if errors.Is(err, daemon.ErrNotRunning) {
		ui.Info("Server is not running")
		return nil
	}
	if err != nil {
		return err
	}
	ui.Success("Server running (pid %d) on port %d, up %s", rec.PID, rec.Port, rec.Uptime(time.Now()))
	return nil
}
