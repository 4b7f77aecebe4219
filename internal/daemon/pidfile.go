// Package daemon tracks the background API server through a small JSON
// record on disk.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrNotRunning is returned when no live server owns the PID file.
var ErrNotRunning = errors.New("server is not running")

// Record describes a running server instance.
type Record struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
}

// Uptime reports how long the instance has been running as of now.
func (r Record) Uptime(now time.Time) time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(r.StartedAt).Round(time.Second)
}

// PIDFile stores the Record of the background server.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Claim records the current process as the server listening on port.
func (p *PIDFile) Claim(port int) error {
	return p.Save(Record{PID: os.Getpid(), Port: port, StartedAt: time.Now().UTC()})
}

// Save writes rec, creating the parent directory when needed.
func (p *PIDFile) Save(rec Record) error {
	if rec.PID <= 0 {
		return fmt.Errorf("invalid pid %d", rec.PID)
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return os.WriteFile(p.Path, append(data, '\n'), 0o644)
}

// Load reads the stored Record.
func (p *PIDFile) Load() (Record, error) {
	var rec Record
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil || rec.PID <= 0 {
		return Record{}, fmt.Errorf("invalid PID file content in %s", p.Path)
	}
	return rec, nil
}

// Remove deletes the PID file. A missing file is not an error.
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Running returns the stored Record when its process is still alive.
// A record whose process has gone away is removed and ErrNotRunning
// is returned.
func (p *PIDFile) Running() (Record, error) {
	rec, err := p.Load()
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, ErrNotRunning
	}
	if err != nil {
		return Record{}, err
	}
	if !processAlive(rec.PID) {
		_ = p.Remove()
		return rec, ErrNotRunning
	}
	return rec, nil
}

// Stop sends a termination signal to the recorded process and waits up
// to grace for it to exit, escalating to a kill after that. It reports
// whether the kill was needed.
func (p *PIDFile) Stop(ctx context.Context, grace time.Duration) (killed bool, err error) {
	rec, err := p.Running()
	if err != nil {
		return false, err
	}
	if err := terminate(rec.PID); err != nil {
		return false, fmt.Errorf("signal pid %d: %w", rec.PID, err)
	}
	if waitErr := waitExit(ctx, rec.PID, grace); waitErr != nil {
		if err := kill(rec.PID); err != nil {
			return false, fmt.Errorf("kill pid %d: %w", rec.PID, err)
		}
		killed = true
	}
	return killed, p.Remove()
}

func waitExit(ctx context.Context, pid int, grace time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = grace
	return backoff.Retry(func() error {
		if processAlive(pid) {
			return fmt.Errorf("pid %d still running", pid)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}
