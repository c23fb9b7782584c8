package client

import (
	"os"

	"github.com/maxdjohnson/py-hotstart/internal/interp"
)

// Handle is an interpreter the client has taken from the daemon: it now
// owns the control channel and PTY master directly.
type Handle struct {
	ID        interp.ChildID
	Control   *os.File
	PTYMaster *os.File
}

// Unsupervise releases the interpreter's bootstrap loop from its waiting
// state.
func (h *Handle) Unsupervise() error {
	return interp.WriteControlLine(h.Control, "")
}

// RunInstructions delivers the instructions payload and shuts the control
// channel down.
func (h *Handle) RunInstructions(instructions string) error {
	if err := interp.WriteControlLine(h.Control, instructions); err != nil {
		return err
	}
	return h.Control.Close()
}

// Close releases the handle's file descriptors.
func (h *Handle) Close() error {
	var firstErr error
	if h.Control != nil {
		if err := h.Control.Close(); err != nil {
			firstErr = err
		}
	}
	if h.PTYMaster != nil {
		if err := h.PTYMaster.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
