package server

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPIDFileGuardAcquireRelease(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.pid")

	g := NewPIDFileGuard(path)
	if err := g.Acquire(); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	pid, err := ReadPID(path)
	if err != nil {
		t.Fatalf("ReadPID() error: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("ReadPID() = %d, want %d", pid, os.Getpid())
	}

	if err := g.Release(); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected pid file to be removed after Release(), stat err = %v", err)
	}
}

func TestPIDFileGuardRejectsSecondAcquireByLiveProcess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.pid")

	first := NewPIDFileGuard(path)
	if err := first.Acquire(); err != nil {
		t.Fatalf("first Acquire() error: %v", err)
	}
	defer first.Release()

	second := NewPIDFileGuard(path)
	if err := second.Acquire(); err == nil {
		t.Error("expected second Acquire() to fail while first process is alive")
	}
}

func TestPIDFileGuardReclaimsStalePID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.pid")

	// A pid that is vanishingly unlikely to be alive.
	if err := os.WriteFile(path, []byte("999999\n"), 0o644); err != nil {
		t.Fatalf("seeding stale pid file: %v", err)
	}

	g := NewPIDFileGuard(path)
	if err := g.Acquire(); err != nil {
		t.Fatalf("Acquire() over stale pid file error: %v", err)
	}
	defer g.Release()

	pid, err := ReadPID(path)
	if err != nil {
		t.Fatalf("ReadPID() error: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("ReadPID() = %d, want %d", pid, os.Getpid())
	}
}
