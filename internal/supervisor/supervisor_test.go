package supervisor

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/maxdjohnson/py-hotstart/internal/interp"
)

// spawning "cat <bootstrap path>" in place of a real interpreter exercises
// the same PTY/control-socket/exec path as a real spawn, while producing a
// deterministic, fast exit (cat prints the file and returns 0) that the
// reap/ring machinery below can be tested against without requiring python.
func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	dir := t.TempDir()
	bootstrapPath := filepath.Join(dir, "bootstrap.py")
	return New("cat", bootstrapPath, 8, 200*time.Millisecond, 5*time.Millisecond, nil)
}

func TestSpawnAndReapRecordsExitCode(t *testing.T) {
	s := newTestSupervisor(t)

	h, err := s.Spawn()
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	defer h.PTYMaster.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.Reap()
		if _, ok := s.GetExitCode(h.ID); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	code, ok := s.GetExitCode(h.ID)
	if !ok {
		t.Fatal("expected exit code to be recorded after child exits")
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

func TestSpawnAssignsMonotonicSequence(t *testing.T) {
	s := newTestSupervisor(t)

	h1, err := s.Spawn()
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	defer h1.PTYMaster.Close()

	h2, err := s.Spawn()
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	defer h2.PTYMaster.Close()

	if h2.ID.Seq <= h1.ID.Seq {
		t.Errorf("second spawn seq %d not greater than first %d", h2.ID.Seq, h1.ID.Seq)
	}
}

// TestConcurrentSpawnAssignsDistinctSequences exercises the same race the
// server's goroutine-per-connection dispatch can trigger: multiple INIT/TAKE
// requests calling Spawn at once. Every spawned child must get a distinct
// seq; spawnMu is what prevents two callers from reading nextSeq before
// either commits.
func TestConcurrentSpawnAssignsDistinctSequences(t *testing.T) {
	s := newTestSupervisor(t)

	const n = 8
	handles := make([]*interp.Handle, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = s.Spawn()
		}(i)
	}
	wg.Wait()

	seen := make(map[uint32]bool, n)
	for i, h := range handles {
		if errs[i] != nil {
			t.Fatalf("Spawn() error: %v", errs[i])
		}
		defer h.PTYMaster.Close()
		if seen[h.ID.Seq] {
			t.Fatalf("seq %d assigned to more than one concurrent spawn", h.ID.Seq)
		}
		seen[h.ID.Seq] = true
	}
}

func TestWaitExitCodeUnwatchedChildErrors(t *testing.T) {
	s := newTestSupervisor(t)
	if _, err := s.WaitExitCode(interp.ChildID{Seq: 999, PID: 999999}); err == nil {
		t.Error("expected error for a child the supervisor never spawned")
	}
}

func TestWaitExitCodeUnblocksOnReap(t *testing.T) {
	s := newTestSupervisor(t)

	h, err := s.Spawn()
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	defer h.PTYMaster.Close()

	result := make(chan int, 1)
	errc := make(chan error, 1)
	go func() {
		code, err := s.WaitExitCode(h.ID)
		if err != nil {
			errc <- err
			return
		}
		result <- code
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case code := <-result:
			if code != 0 {
				t.Errorf("exit code = %d, want 0", code)
			}
			return
		case err := <-errc:
			t.Fatalf("WaitExitCode error: %v", err)
		default:
			s.Reap()
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatal("WaitExitCode did not unblock within deadline")
}
