package supervisor

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/maxdjohnson/py-hotstart/internal/interp"
)

// History receives best-effort notifications of supervisor lifecycle
// events for audit logging. It is never consulted to answer exit-code
// lookups.
type History interface {
	LogSpawn(id interp.ChildID)
	LogKill(id interp.ChildID, signal string)
	LogExit(id interp.ChildID, exitCode int)
}

// Supervisor owns the set of live interpreters, their exit-info ring, and
// the sequence counter that names each one.
type Supervisor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	running map[int]*interp.Handle
	nextSeq uint32
	ring    *ring
	prelude string

	// spawnMu serializes Spawn end to end, across the fork/exec itself and
	// not just the nextSeq bump. The server dispatches every connection on
	// its own goroutine, so two concurrent INIT/TAKE requests can both call
	// Spawn; without this, both could read the same nextSeq before either
	// commits, assigning the same seq to two children.
	spawnMu sync.Mutex

	pythonExe        string
	bootstrapPath    string
	gracefulTimeout  time.Duration
	killPollInterval time.Duration

	history History
}

func New(pythonExe, bootstrapPath string, ringCapacity int, gracefulTimeout, killPollInterval time.Duration, history History) *Supervisor {
	s := &Supervisor{
		running:          make(map[int]*interp.Handle),
		ring:             newRing(ringCapacity),
		pythonExe:        pythonExe,
		bootstrapPath:    bootstrapPath,
		gracefulTimeout:  gracefulTimeout,
		killPollInterval: killPollInterval,
		history:          history,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// SetPrelude replaces the prelude substituted into the bootstrap script for
// interpreters spawned from now on.
func (s *Supervisor) SetPrelude(prelude string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prelude = prelude
}

// Spawn starts a new interpreter with the current prelude, assigns it the
// next sequence number, and tracks it as running.
func (s *Supervisor) Spawn() (*interp.Handle, error) {
	s.spawnMu.Lock()
	defer s.spawnMu.Unlock()

	s.mu.Lock()
	prelude := s.prelude
	seq := s.nextSeq + 1
	s.mu.Unlock()

	h, err := interp.Spawn(seq, s.pythonExe, s.bootstrapPath, prelude)
	if err != nil {
		return nil, fmt.Errorf("supervisor: spawn: %w", err)
	}

	s.mu.Lock()
	s.nextSeq = seq
	s.running[h.ID.PID] = h
	s.mu.Unlock()

	slog.Info("spawned interpreter", "child", h.ID.String())
	if s.history != nil {
		s.history.LogSpawn(h.ID)
	}
	return h, nil
}

// Kill delivers SIGTERM to the named child, escalating to SIGKILL if it
// hasn't exited by the graceful timeout. It returns once the child is
// confirmed gone or the kill signal itself fails.
func (s *Supervisor) Kill(id interp.ChildID) error {
	s.mu.Lock()
	h, ok := s.running[id.PID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("supervisor: kill %s: no such running child", id)
	}

	if s.history != nil {
		s.history.LogKill(id, "SIGTERM")
	}
	if err := h.Signal(syscall.SIGTERM); err != nil && err != os.ErrProcessDone {
		slog.Warn("SIGTERM delivery failed", "child", id.String(), "error", err)
	}

	deadline := time.Now().Add(s.gracefulTimeout)
	ticker := time.NewTicker(s.killPollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		<-ticker.C
		s.Reap()
		if !s.isRunning(id.PID) {
			return nil
		}
	}

	s.Reap()
	if !s.isRunning(id.PID) {
		return nil
	}

	if s.history != nil {
		s.history.LogKill(id, "SIGKILL")
	}
	if err := h.Signal(syscall.SIGKILL); err != nil && err != os.ErrProcessDone {
		return fmt.Errorf("supervisor: SIGKILL %s: %w", id, err)
	}
	for s.isRunning(id.PID) {
		<-ticker.C
		s.Reap()
	}
	return nil
}

func (s *Supervisor) isRunning(pid int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[pid]
	return ok
}

// Reap drains exited children with a non-blocking wait loop, recording
// their exit codes in the ring and waking any WaitExitCode callers blocked
// on them. Runs from the server's SIGCHLD handling and from Kill's poll
// loop.
func (s *Supervisor) Reap() {
	for {
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &ws, syscall.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}

		exitCode := exitCodeFromWaitStatus(ws)
		s.mu.Lock()
		h, ok := s.running[pid]
		if ok {
			delete(s.running, pid)
			s.ring.record(h.ID, exitCode)
		}
		s.mu.Unlock()
		if !ok {
			continue
		}

		_ = h.Close()

		slog.Info("interpreter exited", "child", h.ID.String(), "exit_code", exitCode)
		if s.history != nil {
			s.history.LogExit(h.ID, exitCode)
		}

		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

func exitCodeFromWaitStatus(ws syscall.WaitStatus) int {
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return 128 + int(ws.Signal())
	default:
		return -1
	}
}

// GetExitCode returns the recorded exit code for id without blocking.
func (s *Supervisor) GetExitCode(id interp.ChildID) (int, bool) {
	return s.ring.lookup(id)
}

// WaitExitCode blocks until id's exit code is recorded, returning an error
// if the child is neither running nor in the exit-info ring (already
// evicted, or never existed).
func (s *Supervisor) WaitExitCode(id interp.ChildID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if code, ok := s.ring.lookup(id); ok {
			return code, nil
		}
		if _, running := s.running[id.PID]; !running {
			return 0, fmt.Errorf("supervisor: exit code for %s unavailable", id)
		}
		s.cond.Wait()
	}
}

// CloseAll forcefully terminates and releases every tracked interpreter,
// used on server shutdown.
func (s *Supervisor) CloseAll() {
	s.mu.Lock()
	handles := make([]*interp.Handle, 0, len(s.running))
	for _, h := range s.running {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		if err := h.Signal(syscall.SIGKILL); err != nil && err != os.ErrProcessDone {
			slog.Warn("SIGKILL delivery failed during shutdown", "child", h.ID.String(), "error", err)
		}
		_ = h.Close()
	}
}
