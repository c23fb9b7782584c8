package server

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/maxdjohnson/py-hotstart/internal/interp"
)

// Request is one parsed line of the wire protocol: INIT <prelude>, TAKE,
// EXITCODE <id>, SHUTDOWN, or VERSION.
type Request struct {
	Verb string
	Arg  string
}

func ParseRequest(line string) (Request, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Request{}, fmt.Errorf("protocol: empty request")
	}
	verb, rest, _ := strings.Cut(line, " ")
	switch verb {
	case "INIT", "EXITCODE":
		return Request{Verb: verb, Arg: rest}, nil
	case "TAKE", "SHUTDOWN", "VERSION":
		if rest != "" {
			return Request{}, fmt.Errorf("protocol: %s takes no argument", verb)
		}
		return Request{Verb: verb}, nil
	default:
		return Request{}, fmt.Errorf("protocol: unknown command %q", verb)
	}
}

func WriteOK(w *bufio.Writer, suffix string) error {
	var err error
	if suffix == "" {
		_, err = w.WriteString("OK\n")
	} else {
		_, err = fmt.Fprintf(w, "OK %s\n", suffix)
	}
	if err != nil {
		return err
	}
	return w.Flush()
}

func WriteError(w *bufio.Writer, requestErr error) error {
	if _, err := fmt.Fprintf(w, "ERROR: %s\n", requestErr.Error()); err != nil {
		return err
	}
	return w.Flush()
}

// SendHandle responds to a TAKE by writing the handle's ChildId as the
// message payload with the PTY master and control-channel fds attached as
// SCM_RIGHTS ancillary data, in that order.
func SendHandle(conn *net.UnixConn, h *interp.Handle) error {
	rights := syscall.UnixRights(int(h.PTYMaster.Fd()), int(h.Control.Fd()))
	payload := []byte(h.ID.String() + "\n")
	n, oobn, err := conn.WriteMsgUnix(payload, rights, nil)
	if err != nil {
		return fmt.Errorf("protocol: sending handle: %w", err)
	}
	if n != len(payload) || oobn != len(rights) {
		return fmt.Errorf("protocol: short write sending handle")
	}
	return nil
}

// ReceiveHandle reads the ChildId payload and the two passed fds (PTY
// master, control channel) SendHandle writes, in that order.
func ReceiveHandle(conn *net.UnixConn) (interp.ChildID, *os.File, *os.File, error) {
	buf := make([]byte, 256)
	oob := make([]byte, syscall.CmsgSpace(2*4))

	n, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return interp.ChildID{}, nil, nil, fmt.Errorf("protocol: receiving handle: %w", err)
	}

	scms, err := syscall.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return interp.ChildID{}, nil, nil, fmt.Errorf("protocol: parsing control message: %w", err)
	}
	if len(scms) != 1 {
		return interp.ChildID{}, nil, nil, fmt.Errorf("protocol: expected one control message, got %d", len(scms))
	}
	fds, err := syscall.ParseUnixRights(&scms[0])
	if err != nil {
		return interp.ChildID{}, nil, nil, fmt.Errorf("protocol: parsing passed fds: %w", err)
	}
	if len(fds) != 2 {
		return interp.ChildID{}, nil, nil, fmt.Errorf("protocol: expected 2 passed fds, got %d", len(fds))
	}

	id, err := interp.ParseChildID(strings.TrimSpace(string(buf[:n])))
	if err != nil {
		return interp.ChildID{}, nil, nil, err
	}

	ptyMaster := os.NewFile(uintptr(fds[0]), "pty-master")
	control := os.NewFile(uintptr(fds[1]), "control")
	return id, ptyMaster, control, nil
}
