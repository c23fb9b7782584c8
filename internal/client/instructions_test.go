package client

import (
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func TestBuildInstructionsCodeMode(t *testing.T) {
	src, err := BuildInstructions(RunRequest{Mode: RunCode, Code: "print('hi')"})
	if err != nil {
		t.Fatalf("BuildInstructions() error: %v", err)
	}
	if !strings.Contains(src, `"print('hi')"`) {
		t.Errorf("expected quoted code snippet in instructions, got:\n%s", src)
	}
	if !strings.Contains(src, "os.environ.clear()") {
		t.Error("expected instructions to clear the interpreter's inherited environment")
	}
	if !strings.Contains(src, "os._exit(_exit_code)") {
		t.Error("expected instructions to propagate exit code via os._exit")
	}
}

func TestBuildInstructionsModuleMode(t *testing.T) {
	src, err := BuildInstructions(RunRequest{Mode: RunModule, Module: "http.server", Args: []string{"8000"}})
	if err != nil {
		t.Fatalf("BuildInstructions() error: %v", err)
	}
	if !strings.Contains(src, `runpy.run_module("http.server"`) {
		t.Errorf("expected run_module call for module mode, got:\n%s", src)
	}
	if !strings.Contains(src, `sys.argv = ["http.server", "8000"]`) {
		t.Errorf("expected argv to lead with the module name, got:\n%s", src)
	}
}

func TestBuildInstructionsScriptMode(t *testing.T) {
	src, err := BuildInstructions(RunRequest{Mode: RunScript, Path: "/tmp/a.py", Args: []string{"x"}})
	if err != nil {
		t.Fatalf("BuildInstructions() error: %v", err)
	}
	if !strings.Contains(src, `runpy.run_path("/tmp/a.py"`) {
		t.Errorf("expected run_path call for script mode, got:\n%s", src)
	}
}

func TestBuildInstructionsREPLMode(t *testing.T) {
	src, err := BuildInstructions(RunRequest{Mode: RunREPL})
	if err != nil {
		t.Fatalf("BuildInstructions() error: %v", err)
	}
	if !strings.Contains(src, "InteractiveConsole") {
		t.Errorf("expected REPL mode to start an interactive console, got:\n%s", src)
	}
}

func TestBuildInstructionsOmitsTermiosRestoreWhenNil(t *testing.T) {
	src, err := BuildInstructions(RunRequest{Mode: RunREPL})
	if err != nil {
		t.Fatalf("BuildInstructions() error: %v", err)
	}
	if strings.Contains(src, "tcsetattr") {
		t.Errorf("expected no termios restore statement without captured termios, got:\n%s", src)
	}
}

func TestBuildInstructionsIncludesTermiosRestore(t *testing.T) {
	tios := &unix.Termios{
		Iflag:  1,
		Oflag:  2,
		Cflag:  3,
		Lflag:  4,
		Ispeed: 38400,
		Ospeed: 38400,
	}
	tios.Cc[unix.VINTR] = 3

	src, err := BuildInstructions(RunRequest{Mode: RunREPL, Termios: tios})
	if err != nil {
		t.Fatalf("BuildInstructions() error: %v", err)
	}
	if !strings.Contains(src, "import termios") {
		t.Errorf("expected termios import, got:\n%s", src)
	}
	if !strings.Contains(src, "termios.tcsetattr(0, termios.TCSANOW, [1, 2, 3, 4, 38400, 38400, [3, ") {
		t.Errorf("expected tcsetattr call built from captured attributes, got:\n%s", src)
	}
	// The cc list must be padded out to glibc's NCCS (32), not the kernel
	// struct termios's 19, or CPython's termios module rejects the call.
	if strings.Count(src, ",") < pyNCCS {
		t.Errorf("expected cc list padded to %d elements, got:\n%s", pyNCCS, src)
	}
}

func TestGenerateEnvLinesSkipsMalformedEntries(t *testing.T) {
	lines := generateEnvLines([]string{"FOO=bar", "NOEQUALSSIGN", "BAZ="})
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], `os.environ["FOO"] = "bar"`) {
		t.Errorf("unexpected first line: %s", lines[0])
	}
}
