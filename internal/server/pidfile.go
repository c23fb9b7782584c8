// Package server implements the daemon side of py-hotstart: the PID-file
// single-instance guard, the Unix-socket request loop, and the wire
// protocol spoken over it.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// PIDFileGuard enforces that at most one daemon runs against a given
// config path at a time.
type PIDFileGuard struct {
	path string
}

func NewPIDFileGuard(path string) *PIDFileGuard {
	return &PIDFileGuard{path: path}
}

// Acquire claims the PID file for the current process. The write is
// published atomically: the pid is written to a temp file, fsynced, then
// hard-linked into place, so a reader never observes a partially written
// file and a concurrent acquirer's link either succeeds or fails outright.
func (g *PIDFileGuard) Acquire() error {
	if pid, ok := g.readLivePID(); ok {
		return fmt.Errorf("pidfile: daemon already running with pid %d", pid)
	}
	_ = os.Remove(g.path)

	tmp := fmt.Sprintf("%s.tmp.%d", g.path, os.Getpid())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("pidfile: creating temp file: %w", err)
	}
	defer os.Remove(tmp)

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()
		return fmt.Errorf("pidfile: writing pid: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("pidfile: fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("pidfile: closing temp file: %w", err)
	}

	if err := os.Link(tmp, g.path); err != nil {
		return fmt.Errorf("pidfile: linking into place: %w", err)
	}
	return nil
}

// Release removes the PID file. Only the process that acquired it should
// call this.
func (g *PIDFileGuard) Release() error {
	return os.Remove(g.path)
}

func (g *PIDFileGuard) readLivePID() (int, bool) {
	data, err := os.ReadFile(g.path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	alive, err := process.PidExists(int32(pid))
	if err != nil || !alive {
		return 0, false
	}
	return pid, true
}

// ReadPID reads the pid recorded at path without any liveness check.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("pidfile: reading %s: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("pidfile: parsing %s: %w", path, err)
	}
	return pid, nil
}
