// Package client implements the caller-facing side of py-hotstart: making
// sure a daemon is running, taking its hot-spare interpreter, composing the
// instructions payload, and proxying the caller's terminal to it.
package client

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/maxdjohnson/py-hotstart/internal/core"
	"github.com/maxdjohnson/py-hotstart/internal/interp"
	"github.com/maxdjohnson/py-hotstart/internal/server"
)

func dial(socketPath string) (*net.UnixConn, error) {
	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: socketPath, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("client: dialing daemon: %w", err)
	}
	return conn, nil
}

// EnsureServerRunning dials the daemon socket, starting the daemon via
// self-re-exec if it isn't reachable. Each wait attempt is bounded by
// daemon_ready_timeout (the fast path: fsnotify, falling back to a short
// poll); socket_wait_timeout bounds the whole operation, retrying across
// attempts in case the daemon's first run is slow to come up (e.g. creating
// its config directory).
func EnsureServerRunning() error {
	socketPath := core.GetSocketPath()

	if conn, err := dial(socketPath); err == nil {
		conn.Close()
		return nil
	}

	if err := spawnDaemon(); err != nil {
		return fmt.Errorf("client: starting daemon: %w", err)
	}

	overallTimeout := core.GetSocketWaitTimeout()
	deadline := time.Now().Add(overallTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("client: daemon socket %s did not appear within %s", socketPath, overallTimeout)
		}
		attempt := core.GetDaemonReadyTimeout()
		if attempt > remaining {
			attempt = remaining
		}
		if err := waitForSocket(socketPath, attempt); err == nil {
			return nil
		}
	}
}

func spawnDaemon() error {
	return server.Daemonize(
		[]string{"daemon", "--config-path", core.Config.GetString("config_path")},
		core.GetLogFilePath(),
	)
}

// waitForSocket blocks until path appears, watching its parent directory
// with fsnotify for the common case and falling back to a short poll so a
// missed or coalesced inotify event never stalls past the deadline.
func waitForSocket(path string, timeout time.Duration) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	watcher, werr := fsnotify.NewWatcher()
	if werr == nil {
		defer watcher.Close()
		_ = watcher.Add(filepath.Dir(path))
	}

	deadlineTimer := time.NewTimer(timeout)
	defer deadlineTimer.Stop()
	poll := time.NewTicker(200 * time.Millisecond)
	defer poll.Stop()

	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if watcher != nil {
			select {
			case ev := <-watcher.Events:
				if ev.Name == path && ev.Op&fsnotify.Create != 0 {
					return nil
				}
			case <-poll.C:
			case <-deadlineTimer.C:
				return fmt.Errorf("client: daemon socket %s did not appear within %s", path, timeout)
			}
		} else {
			select {
			case <-poll.C:
			case <-deadlineTimer.C:
				return fmt.Errorf("client: daemon socket %s did not appear within %s", path, timeout)
			}
		}
	}
}

func sendRequest(line string) (string, error) {
	conn, err := dial(core.GetSocketPath())
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		return "", fmt.Errorf("client: writing request: %w", err)
	}

	resp, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("client: reading response: %w", err)
	}
	resp = strings.TrimRight(resp, "\r\n")
	if strings.HasPrefix(resp, "ERROR: ") {
		return "", fmt.Errorf("%s", strings.TrimPrefix(resp, "ERROR: "))
	}
	return resp, nil
}

// Initialize sends INIT with prelude, (re)starting the daemon's hot spare
// against it.
func Initialize(prelude string) error {
	_, err := sendRequest("INIT " + prelude)
	return err
}

// GetExitCode sends EXITCODE for id, blocking server-side until the
// interpreter it names has exited.
func GetExitCode(id interp.ChildID) (int, error) {
	resp, err := sendRequest("EXITCODE " + id.String())
	if err != nil {
		return 0, err
	}
	var code int
	if _, err := fmt.Sscanf(resp, "OK %d", &code); err != nil {
		return 0, fmt.Errorf("client: malformed exitcode response %q", resp)
	}
	return code, nil
}

// Shutdown sends SHUTDOWN, asking the daemon to terminate its hot spare and
// exit.
func Shutdown() error {
	_, err := sendRequest("SHUTDOWN")
	return err
}

// Version asks the daemon for its version string.
func Version() (string, error) {
	resp, err := sendRequest("VERSION")
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(resp, "OK "), nil
}

// TakeInterpreter sends TAKE and receives the daemon's current hot spare:
// its ChildId, PTY master, and control channel, handed over via SCM_RIGHTS.
func TakeInterpreter() (*Handle, error) {
	conn, err := dial(core.GetSocketPath())
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("TAKE\n")); err != nil {
		return nil, fmt.Errorf("client: sending TAKE: %w", err)
	}

	id, ptyMaster, control, err := server.ReceiveHandle(conn)
	if err != nil {
		return nil, err
	}
	return &Handle{ID: id, Control: control, PTYMaster: ptyMaster}, nil
}
