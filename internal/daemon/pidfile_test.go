package daemon

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_ClaimAndLoad(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "state", "serve.pid"))

	require.NoError(t, pf.Claim(9090))

	rec, err := pf.Load()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), rec.PID)
	assert.Equal(t, 9090, rec.Port)
	assert.WithinDuration(t, time.Now(), rec.StartedAt, 5*time.Second)
}

func TestPIDFile_SaveRejectsBadPID(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))
	assert.Error(t, pf.Save(Record{PID: 0}))
}

func TestPIDFile_Load_InvalidContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-json\n"), 0o644))

	_, err := NewPIDFile(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PID file content")
}

func TestPIDFile_Remove_MissingFileIsFine(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "nonexistent.pid"))
	assert.NoError(t, pf.Remove())
}

func TestPIDFile_Running(t *testing.T) {
	t.Run("current process", func(t *testing.T) {
		pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))
		require.NoError(t, pf.Claim(8080))

		rec, err := pf.Running()
		require.NoError(t, err)
		assert.Equal(t, os.Getpid(), rec.PID)
	})

	t.Run("no file", func(t *testing.T) {
		pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))
		_, err := pf.Running()
		assert.ErrorIs(t, err, ErrNotRunning)
	})

	t.Run("stale record is cleaned up", func(t *testing.T) {
		pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))
		// A PID this high almost certainly does not exist.
		require.NoError(t, pf.Save(Record{PID: 999999, Port: 8080}))

		rec, err := pf.Running()
		assert.ErrorIs(t, err, ErrNotRunning)
		assert.Equal(t, 999999, rec.PID)
		_, statErr := os.Stat(pf.Path)
		assert.True(t, os.IsNotExist(statErr))
	})
}

func TestPIDFile_Stop(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sleep")
	}
	child := exec.Command("sleep", "30")
	require.NoError(t, child.Start())
	done := make(chan struct{})
	go func() { _ = child.Wait(); close(done) }()

	pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))
	require.NoError(t, pf.Save(Record{PID: child.Process.Pid, Port: 8080, StartedAt: time.Now()}))

	killed, err := pf.Stop(context.Background(), 5*time.Second)
	require.NoError(t, err)
	assert.False(t, killed, "sleep exits on SIGTERM")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit")
	}
	_, statErr := os.Stat(pf.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPIDFile_Stop_NotRunning(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))
	_, err := pf.Stop(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestRecord_Uptime(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := Record{StartedAt: start}
	assert.Equal(t, 90*time.Second, rec.Uptime(start.Add(90*time.Second+300*time.Millisecond)))
	assert.Zero(t, Record{}.Uptime(start))
}
