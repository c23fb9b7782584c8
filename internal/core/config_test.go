package core

import (
	"path/filepath"
	"testing"
	"time"
)

func TestGetSocketPath(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = GetDefaultConfig()
	Config.Set("config_path", "/tmp/test-py-hotstart")

	got := GetSocketPath()
	want := filepath.Join("/tmp/test-py-hotstart", SocketName)
	if got != want {
		t.Errorf("GetSocketPath() = %q, want %q", got, want)
	}
}

func TestGetPIDFilePath(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = GetDefaultConfig()
	Config.Set("config_path", "/tmp/test-py-hotstart")

	got := GetPIDFilePath()
	want := filepath.Join("/tmp/test-py-hotstart", PidFileName)
	if got != want {
		t.Errorf("GetPIDFilePath() = %q, want %q", got, want)
	}
}

func TestGetHistoryPath(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = GetDefaultConfig()
	Config.Set("config_path", "/tmp/test-py-hotstart")

	got := GetHistoryPath()
	want := filepath.Join("/tmp/test-py-hotstart", HistoryName)
	if got != want {
		t.Errorf("GetHistoryPath() = %q, want %q", got, want)
	}
}

func TestConstants(t *testing.T) {
	if BaseDirName != ".config/py-hotstart" {
		t.Errorf("BaseDirName = %q, want %q", BaseDirName, ".config/py-hotstart")
	}
	if PidFileName != "daemon.pid" {
		t.Errorf("PidFileName = %q, want %q", PidFileName, "daemon.pid")
	}
	if SocketName != "daemon.sock" {
		t.Errorf("SocketName = %q, want %q", SocketName, "daemon.sock")
	}
	if ScriptName != "bootstrap.py" {
		t.Errorf("ScriptName = %q, want %q", ScriptName, "bootstrap.py")
	}
}

func TestGetDefaultConfigDurations(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = GetDefaultConfig()

	if got := GetGracefulTimeout(); got != 2*time.Second {
		t.Errorf("GetGracefulTimeout() = %v, want %v", got, 2*time.Second)
	}
	if got := GetKillPollInterval(); got != 20*time.Millisecond {
		t.Errorf("GetKillPollInterval() = %v, want %v", got, 20*time.Millisecond)
	}
	if got := GetDaemonReadyTimeout(); got != 1*time.Second {
		t.Errorf("GetDaemonReadyTimeout() = %v, want %v", got, 1*time.Second)
	}
	if got := GetSocketWaitTimeout(); got != 60*time.Second {
		t.Errorf("GetSocketWaitTimeout() = %v, want %v", got, 60*time.Second)
	}
	if got := GetRingCapacity(); got != 128 {
		t.Errorf("GetRingCapacity() = %d, want %d", got, 128)
	}
	if got := GetPythonExecutable(); got != "python3" {
		t.Errorf("GetPythonExecutable() = %q, want %q", got, "python3")
	}
}
