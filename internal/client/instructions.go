package client

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// pyNCCS is the length of the cc special-characters array glibc's (and
// CPython's) struct termios carries. The kernel's struct termios captured
// via TCGETS only fills the first len(unix.Termios{}.Cc) of these; the
// remaining slots are padding reserved for characters Linux doesn't define.
const pyNCCS = 32

// RunMode selects which of the four payload shapes the instructions script
// executes.
type RunMode int

const (
	RunCode RunMode = iota
	RunModule
	RunScript
	RunREPL
)

// RunRequest describes what the driver asked for.
type RunRequest struct {
	Mode   RunMode
	Code   string
	Module string
	Path   string
	Args   []string

	// Termios is the caller's terminal attributes captured (via
	// client.CaptureTermios) before the proxy switched the caller's real
	// terminal to raw mode. Nil when stdin isn't a terminal, in which case
	// the generated instructions skip the restore step.
	Termios *unix.Termios
}

// BuildInstructions composes the Python source delivered as the second
// control-channel write. Mirroring spec step order, it: (1) clears and
// replaces the process environment with the caller's, (2) changes to the
// caller's working directory, (3) replaces argv with the computed one, (4)
// restores the caller's pre-raw-mode terminal attributes onto the
// interpreter's own stdin (the pty slave), then (5) executes the requested
// payload and exits with its result, so the interpreter process's own exit
// status mirrors the payload's.
func BuildInstructions(req RunRequest) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("instructions: getting cwd: %w", err)
	}

	var argv, payload string
	switch req.Mode {
	case RunCode:
		argv = argvAssignment("-c", nil)
		payload = fmt.Sprintf("_code = %s\n", quotePythonString(req.Code)) +
			wrapWithExitHandling("exec(compile(_code, '<string>', 'exec'), {'__name__': '__main__'})")
	case RunModule:
		argv = argvAssignment(req.Module, req.Args)
		payload = wrapWithExitHandling(fmt.Sprintf(
			"runpy.run_module(%s, run_name='__main__', alter_sys=True)", quotePythonString(req.Module)))
	case RunScript:
		argv = argvAssignment(req.Path, req.Args)
		payload = wrapWithExitHandling(fmt.Sprintf(
			"runpy.run_path(%s, run_name='__main__')", quotePythonString(req.Path)))
	case RunREPL:
		argv = argvAssignment("", nil)
		payload = "import code\n" +
			"code.InteractiveConsole(locals={}).interact()\n" +
			"os._exit(0)\n"
	default:
		return "", fmt.Errorf("instructions: unknown run mode %d", req.Mode)
	}

	var b strings.Builder
	b.WriteString("import os, sys, runpy\n\n")
	b.WriteString("os.environ.clear()\n")
	for _, line := range generateEnvLines(os.Environ()) {
		b.WriteString(line)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "os.chdir(%s)\n\n", quotePythonString(cwd))
	b.WriteString(argv)
	b.WriteString("\n")
	b.WriteString(termiosRestoreStatement(req.Termios))
	b.WriteString(payload)

	return b.String(), nil
}

// termiosRestoreStatement emits the Python statement that puts the
// interpreter's own stdin (the pty slave inherited from spawn) back into
// the shape the caller's real terminal was in before the proxy put it in
// raw mode, so a REPL or any tty-sensitive payload sees ordinary echo and
// line-editing behavior despite running behind a pty the proxy forwards
// raw bytes over.
func termiosRestoreStatement(t *unix.Termios) string {
	if t == nil {
		return ""
	}
	cc := make([]string, pyNCCS)
	for i := range cc {
		if i < len(t.Cc) {
			cc[i] = strconv.Itoa(int(t.Cc[i]))
		} else {
			cc[i] = "0"
		}
	}
	return fmt.Sprintf(
		"import termios\ntermios.tcsetattr(0, termios.TCSANOW, [%d, %d, %d, %d, %d, %d, [%s]])\n\n",
		t.Iflag, t.Oflag, t.Cflag, t.Lflag, t.Ispeed, t.Ospeed, strings.Join(cc, ", "),
	)
}

func wrapWithExitHandling(call string) string {
	var b strings.Builder
	b.WriteString("_exit_code = 0\n")
	b.WriteString("try:\n")
	fmt.Fprintf(&b, "    %s\n", call)
	b.WriteString("except SystemExit as _e:\n")
	b.WriteString("    _exit_code = _e.code if isinstance(_e.code, int) else (0 if _e.code is None else 1)\n")
	b.WriteString("os._exit(_exit_code)\n")
	return b.String()
}

func argvAssignment(lead string, args []string) string {
	argv := append([]string{lead}, args...)
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = quotePythonString(a)
	}
	return fmt.Sprintf("sys.argv = [%s]\n", strings.Join(quoted, ", "))
}

func generateEnvLines(environ []string) []string {
	lines := make([]string, 0, len(environ))
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("os.environ[%s] = %s", quotePythonString(key), quotePythonString(value)))
	}
	return lines
}

func quotePythonString(s string) string {
	return strconv.Quote(s)
}
