package client

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// CaptureTermios reads the caller's terminal attributes. It must be called
// before RunProxy (or term.MakeRaw) switches the terminal to raw mode, so
// BuildInstructions can have the interpreter restore them on its own side
// of the pty. Returns a nil state and no error when stdin isn't a terminal,
// in which case there is nothing to restore.
func CaptureTermios() (*unix.Termios, error) {
	t, err := unix.IoctlGetTermios(int(os.Stdin.Fd()), unix.TCGETS)
	if err != nil {
		if err == unix.ENOTTY {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// RunProxy puts the caller's terminal into raw mode (when stdin is a
// terminal), syncs its window size onto ptyMaster, and shuttles bytes
// between the caller's stdio and the interpreter's PTY. The caller's
// terminal mode is restored on every exit path.
//
// The two directions are not symmetric (spec.md's terminal-proxy contract):
// stdin reaching EOF only stops forwarding stdin for the rest of the
// session, it does not end the proxy. The proxy exits only once the pty
// read side reaches EOF, i.e. once the interpreter exits. Returning as soon
// as either io.Copy finished would end the session the moment a
// redirected/closed stdin (e.g. /dev/null, a pipe closed early) went dry,
// discarding whatever the interpreter still had left to print. The
// stdin-copying goroutine is left to exit on its own (on stdin EOF, or on
// process exit shortly after RunProxy returns) rather than joined here.
func RunProxy(ptyMaster *os.File) error {
	stdinFd := int(os.Stdin.Fd())

	if term.IsTerminal(stdinFd) {
		oldState, err := term.MakeRaw(stdinFd)
		if err != nil {
			return err
		}
		defer term.Restore(stdinFd, oldState)
	}

	syncWinsize(ptyMaster)

	sigwinch := make(chan os.Signal, 1)
	signal.Notify(sigwinch, syscall.SIGWINCH)
	defer signal.Stop(sigwinch)

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-sigwinch:
				syncWinsize(ptyMaster)
			case <-done:
				return
			}
		}
	}()

	go io.Copy(ptyMaster, os.Stdin)

	ptyErr := make(chan error, 1)
	go func() {
		_, err := io.Copy(os.Stdout, ptyMaster)
		ptyErr <- err
	}()

	return <-ptyErr
}

func syncWinsize(ptyMaster *os.File) {
	ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return
	}
	_ = unix.IoctlSetWinsize(int(ptyMaster.Fd()), unix.TIOCSWINSZ, ws)
}
