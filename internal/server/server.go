package server

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/maxdjohnson/py-hotstart/internal/core"
	"github.com/maxdjohnson/py-hotstart/internal/interp"
	"github.com/maxdjohnson/py-hotstart/internal/supervisor"
)

// Server runs the daemon's accept loop: one goroutine adapts the listener
// into a channel, one adapts SIGCHLD, one adapts SIGTERM/SIGINT, and a
// single select loop dispatches among them. The supervisor itself — not
// this dispatch loop — is what's safe for concurrent access, so each
// accepted connection is handled on its own goroutine; this lets a
// blocking EXITCODE wait on one connection without stalling INIT/TAKE on
// another.
type Server struct {
	listener *net.UnixListener
	super    *supervisor.Supervisor
	guard    *PIDFileGuard

	mu      sync.Mutex
	current *interp.Handle

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

func New(listener *net.UnixListener, super *supervisor.Supervisor, guard *PIDFileGuard) *Server {
	return &Server{
		listener: listener,
		super:    super,
		guard:    guard,
		shutdown: make(chan struct{}),
	}
}

func (s *Server) Run() error {
	defer s.guard.Release()
	defer s.listener.Close()

	if err := s.ensureHotSpare(); err != nil {
		return fmt.Errorf("server: initial spawn: %w", err)
	}

	conns := make(chan *net.UnixConn)
	go s.acceptLoop(conns)

	sigchld := make(chan os.Signal, 1)
	signal.Notify(sigchld, syscall.SIGCHLD)
	defer signal.Stop(sigchld)

	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigterm)

	for {
		select {
		case conn, ok := <-conns:
			if !ok {
				return nil
			}
			go s.handleConn(conn)
		case <-sigchld:
			s.super.Reap()
		case <-sigterm:
			slog.Info("shutting down on signal")
			s.terminate()
			return nil
		case <-s.shutdown:
			slog.Info("shutting down on SHUTDOWN request")
			s.terminate()
			return nil
		}
	}
}

func (s *Server) acceptLoop(conns chan<- *net.UnixConn) {
	defer close(conns)
	for {
		conn, err := s.listener.AcceptUnix()
		if err != nil {
			return
		}
		conns <- conn
	}
}

func (s *Server) terminate() {
	s.mu.Lock()
	current := s.current
	s.current = nil
	s.mu.Unlock()

	if current != nil {
		if err := s.super.Kill(current.ID); err != nil {
			slog.Warn("error killing hot spare during shutdown", "error", err)
		}
	}
	s.super.CloseAll()
}

func (s *Server) ensureHotSpare() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return nil
	}
	h, err := s.super.Spawn()
	if err != nil {
		return err
	}
	s.current = h
	return nil
}

func (s *Server) handleConn(conn *net.UnixConn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	line, err := r.ReadString('\n')
	if err != nil {
		slog.Warn("transport error reading request", "error", err)
		return
	}

	req, err := ParseRequest(line)
	if err != nil {
		_ = WriteError(w, err)
		return
	}

	switch req.Verb {
	case "INIT":
		s.handleInit(w, req.Arg)
	case "TAKE":
		s.handleTake(conn, w)
	case "EXITCODE":
		s.handleExitCode(w, req.Arg)
	case "SHUTDOWN":
		_ = WriteOK(w, "")
		s.shutdownOnce.Do(func() { close(s.shutdown) })
	case "VERSION":
		_ = WriteOK(w, core.Version)
	}
}

func (s *Server) handleInit(w *bufio.Writer, prelude string) {
	s.mu.Lock()
	current := s.current
	s.current = nil
	s.mu.Unlock()

	if current != nil {
		if err := s.super.Kill(current.ID); err != nil {
			slog.Warn("error killing previous hot spare on INIT", "error", err)
		}
	}

	s.super.SetPrelude(prelude)

	h, err := s.super.Spawn()
	if err != nil {
		_ = WriteError(w, fmt.Errorf("init: %w", err))
		return
	}

	s.mu.Lock()
	s.current = h
	s.mu.Unlock()

	_ = WriteOK(w, "")
}

func (s *Server) handleTake(conn *net.UnixConn, w *bufio.Writer) {
	s.mu.Lock()
	h := s.current
	s.current = nil
	s.mu.Unlock()

	if h == nil {
		_ = WriteError(w, fmt.Errorf("take: no hot spare available"))
		return
	}

	if err := SendHandle(conn, h); err != nil {
		slog.Warn("error sending handle for TAKE", "error", err)
		return
	}

	h2, err := s.super.Spawn()
	if err != nil {
		slog.Error("failed to respawn hot spare after take", "error", err)
		return
	}
	s.mu.Lock()
	s.current = h2
	s.mu.Unlock()
}

func (s *Server) handleExitCode(w *bufio.Writer, arg string) {
	id, err := interp.ParseChildID(arg)
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	code, err := s.super.WaitExitCode(id)
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteOK(w, fmt.Sprintf("%d", code))
}
