package cmd

import (
	"fmt"
	"os"

	"github.com/maxdjohnson/py-hotstart/internal/client"
)

// BuildRunRequest maps the driver's flags and positional arguments onto one
// of the four run modes spec'd for the client: code snippet, module,
// script path, or REPL when none of the others were requested.
func BuildRunRequest(code, module string, args []string, hasCode, hasModule bool) (client.RunRequest, error) {
	switch {
	case hasCode && hasModule:
		return client.RunRequest{}, fmt.Errorf("cannot combine --code and --module")
	case hasCode:
		return client.RunRequest{Mode: client.RunCode, Code: code}, nil
	case hasModule:
		return client.RunRequest{Mode: client.RunModule, Module: module, Args: args}, nil
	case len(args) > 0:
		return client.RunRequest{Mode: client.RunScript, Path: args[0], Args: args[1:]}, nil
	default:
		return client.RunRequest{Mode: client.RunREPL}, nil
	}
}

// Dispatch takes the daemon's current hot spare, hands it the composed
// instructions, proxies the caller's terminal to it, and returns the
// payload's exit code once the interpreter reports it.
func Dispatch(req client.RunRequest) (int, error) {
	// Captured before anything touches the caller's terminal (RunProxy
	// switches it to raw mode below), so BuildInstructions can have the
	// interpreter restore these attributes on its own side of the pty.
	termios, err := client.CaptureTermios()
	if err != nil {
		return 0, fmt.Errorf("capture terminal attributes: %w", err)
	}
	req.Termios = termios

	h, err := client.TakeInterpreter()
	if err != nil {
		return 0, fmt.Errorf("take: %w", err)
	}
	defer h.Close()

	if err := h.Unsupervise(); err != nil {
		return 0, fmt.Errorf("unsupervise: %w", err)
	}

	instructions, err := client.BuildInstructions(req)
	if err != nil {
		return 0, err
	}
	if err := h.RunInstructions(instructions); err != nil {
		return 0, fmt.Errorf("run instructions: %w", err)
	}

	if err := client.RunProxy(h.PTYMaster); err != nil {
		fmt.Fprintln(os.Stderr, "py-hotstart: proxy:", err)
	}

	code, err := client.GetExitCode(h.ID)
	if err != nil {
		return 0, fmt.Errorf("exitcode: %w", err)
	}
	return code, nil
}
