package interp

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// Handle is a spawned interpreter still owned by the supervisor: its
// control channel, PTY master, and underlying process.
type Handle struct {
	ID        ChildID
	Control   *os.File
	PTYMaster *os.File

	cmd *exec.Cmd

	mu           sync.Mutex
	unsupervised bool
}

// Spawn allocates a PTY, a control-channel socket pair, and starts the
// interpreter attached to both: the PTY slave lands on stdin/stdout/stderr
// and becomes the child's controlling terminal, and the child end of the
// control socket is the first (and only) extra file, landing on fd 3.
func Spawn(seq uint32, pythonExe, bootstrapPath, prelude string) (*Handle, error) {
	if err := writeBootstrapScript(bootstrapPath, prelude); err != nil {
		return nil, fmt.Errorf("interp: spawn: %w", err)
	}

	ptmx, pts, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("interp: spawn: opening pty: %w", err)
	}
	defer pts.Close()

	parentConn, childConn, err := socketpair()
	if err != nil {
		ptmx.Close()
		return nil, fmt.Errorf("interp: spawn: creating control socket pair: %w", err)
	}
	defer childConn.Close()

	cmd := exec.Command(pythonExe, bootstrapPath)
	cmd.Stdin = pts
	cmd.Stdout = pts
	cmd.Stderr = pts
	cmd.ExtraFiles = []*os.File{childConn}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		Ctty:    0,
	}

	if err := cmd.Start(); err != nil {
		parentConn.Close()
		ptmx.Close()
		return nil, fmt.Errorf("interp: spawn: starting interpreter: %w", err)
	}

	return &Handle{
		ID:        ChildID{Seq: seq, PID: cmd.Process.Pid},
		Control:   parentConn,
		PTYMaster: ptmx,
		cmd:       cmd,
	}, nil
}

func socketpair() (parent, child *os.File, err error) {
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, err
	}
	parent = os.NewFile(uintptr(fds[0]), "py-hotstart-control-parent")
	child = os.NewFile(uintptr(fds[1]), "py-hotstart-control-child")
	return parent, child, nil
}

// WriteControlLine writes one quoted-literal line to f, the protocol the
// bootstrap script's supervised loop and the composed instructions payload
// both travel over.
func WriteControlLine(f *os.File, s string) error {
	_, err := f.Write([]byte(quotePythonLiteral(s) + "\n"))
	return err
}

// Unsupervise sends the first control-channel line, releasing the
// interpreter's bootstrap loop from its waiting state.
func (h *Handle) Unsupervise() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unsupervised {
		return nil
	}
	if err := WriteControlLine(h.Control, ""); err != nil {
		return fmt.Errorf("interp: unsupervise %s: %w", h.ID, err)
	}
	h.unsupervised = true
	return nil
}

// RunInstructions sends the full instructions payload and shuts the control
// channel down, per its one-way-used, two-write contract.
func (h *Handle) RunInstructions(instructions string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.unsupervised {
		return fmt.Errorf("interp: run instructions %s: not yet unsupervised", h.ID)
	}
	if err := WriteControlLine(h.Control, instructions); err != nil {
		return fmt.Errorf("interp: run instructions %s: %w", h.ID, err)
	}
	return h.Control.Close()
}

// Signal delivers sig to the interpreter process.
func (h *Handle) Signal(sig syscall.Signal) error {
	return h.cmd.Process.Signal(sig)
}

// Close releases the handle's file descriptors without affecting the
// process itself.
func (h *Handle) Close() error {
	var firstErr error
	if err := h.Control.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := h.PTYMaster.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
