package cluster

import (
	"os/exec"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ollamad/internal/config"
)

// sleepCommand is a stand-in subprocess that stays alive until killed.
func sleepCommand() *exec.Cmd { return exec.Command("sleep", "60") }

func newTestWorker(t *testing.T) *Worker {
	t.Helper()
	w, err := NewWorker("test-model", 4, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	w.newCommand = sleepCommand
	t.Cleanup(func() {
		w.Kill()
		w.close()
	})
	return w
}

func newTestSupervisor(t *testing.T, cfg config.Config) *Supervisor {
	t.Helper()
	sup := NewSupervisor(config.NewStore(config.Normalize(cfg)), zerolog.Nop())
	sup.workerCommand = func(port int) *exec.Cmd { return sleepCommand() }
	t.Cleanup(sup.Stop)
	return sup
}

// stubWorker builds a pool entry without a real subprocess. alive fakes a
// running pid so eligibility checks pass.
func stubWorker(port int, alive bool) *Worker {
	w := &Worker{
		Port:           port,
		model:          "test-model",
		maxConcurrency: 4,
		log:            zerolog.Nop(),
		stopCh:         make(chan struct{}),
	}
	if alive {
		w.pid.Store(1)
	}
	w.lastUsed.Store(time.Now().UnixNano())
	return w
}

func insertWorker(sup *Supervisor, w *Worker) {
	sup.mu.Lock()
	sup.workers[w.Port] = w
	sup.mu.Unlock()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
