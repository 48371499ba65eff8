package cluster

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

const (
	// Smoothing factor shared by the per-worker load EMA and the cluster rate EMA.
	emaAlpha = 0.2

	metricsInterval = 2 * time.Second
)

// atomicFloat64 is a float64 with atomic load/store via bit conversion.
// Single-writer fields (EMA load, CPU sample) use it so concurrent readers
// never observe a torn value.
type atomicFloat64 struct{ bits atomic.Uint64 }

func (f *atomicFloat64) Load() float64   { return math.Float64frombits(f.bits.Load()) }
func (f *atomicFloat64) Store(v float64) { f.bits.Store(math.Float64bits(v)) }

// Worker owns one inference subprocess bound to a loopback port. The port is
// allocated at construction and stays the worker's identity for life.
//
// Start and Kill are serialized by procMu and idempotent. Request-side
// counters are atomics; the smoothed load is written only from Execute's
// finalizer and the CPU/memory samples only from the metrics ticker.
type Worker struct {
	Port           int
	model          string
	maxConcurrency int

	procMu sync.Mutex
	cmd    *exec.Cmd
	pid    atomic.Int64
	exited atomic.Bool
	waitCh chan struct{}

	disabled         atomic.Bool
	inflight         atomic.Int64
	requestsInWindow atomic.Int64
	lastUsed         atomic.Int64 // unix nanos
	movingAvgLoad    atomicFloat64
	cpuPercent       atomicFloat64
	memoryBytes      atomic.Uint64

	// newCommand builds the subprocess command. Swapped in tests for a stub.
	newCommand func() *exec.Cmd

	log      zerolog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWorker allocates a port and schedules the background metrics ticker.
// The subprocess is not started yet.
func NewWorker(model string, maxConcurrency int, log zerolog.Logger) (*Worker, error) {
	port, err := AllocatePort()
	if err != nil {
		return nil, err
	}
	w := &Worker{
		Port:           port,
		model:          model,
		maxConcurrency: maxConcurrency,
		log:            log.With().Int("port", port).Logger(),
		stopCh:         make(chan struct{}),
	}
	w.newCommand = func() *exec.Cmd {
		cmd := exec.Command("ollama", "serve")
		cmd.Env = append(os.Environ(), fmt.Sprintf("OLLAMA_HOST=127.0.0.1:%d", port))
		return cmd
	}
	w.lastUsed.Store(time.Now().UnixNano())
	go w.metricsLoop()
	return w, nil
}

// Start spawns the inference subprocess. Idempotent: a second call while the
// process is running returns nil without side effects. A spawn failure leaves
// the worker not-alive; the control loop reaps it on the next tick.
func (w *Worker) Start() error {
	w.procMu.Lock()
	defer w.procMu.Unlock()
	if w.cmd != nil && !w.exited.Load() {
		return nil
	}
	cmd := w.newCommand()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		w.log.Error().Err(err).Str("model", w.model).Msg("worker spawn failed")
		return err
	}
	w.cmd = cmd
	w.pid.Store(int64(cmd.Process.Pid))
	w.exited.Store(false)
	w.waitCh = make(chan struct{})
	go w.forwardLines(stdout, "stdout")
	go w.forwardLines(stderr, "stderr")
	waitCh := w.waitCh
	go func() {
		err := cmd.Wait()
		w.exited.Store(true)
		close(waitCh)
		if err != nil {
			w.log.Warn().Err(err).Msg("worker process exited")
		} else {
			w.log.Info().Msg("worker process exited")
		}
	}()
	w.log.Info().Str("model", w.model).Int("pid", cmd.Process.Pid).Msg("worker started")
	return nil
}

// Kill terminates the subprocess and its children and waits for exit.
// Idempotent and never returns an error.
func (w *Worker) Kill() {
	w.procMu.Lock()
	defer w.procMu.Unlock()
	if w.cmd == nil {
		return
	}
	if !w.exited.Load() {
		pid := int(w.pid.Load())
		// Negative pid signals the whole process group.
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		if w.cmd.Process != nil {
			_ = w.cmd.Process.Kill()
		}
		select {
		case <-w.waitCh:
		case <-time.After(5 * time.Second):
			w.log.Warn().Msg("timed out waiting for worker process exit")
		}
	}
	w.cmd = nil
}

// close stops the metrics ticker. Called by the supervisor when the worker
// leaves the pool.
func (w *Worker) close() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// IsAlive reports whether the subprocess exists and has not exited.
func (w *Worker) IsAlive() bool {
	return w.pid.Load() != 0 && !w.exited.Load()
}

// IsDisabled reports the operator override flag.
func (w *Worker) IsDisabled() bool { return w.disabled.Load() }

// SetDisabled toggles the operator override. A disabled worker stays in the
// pool but is skipped by the dispatcher and never restarted after a crash.
func (w *Worker) SetDisabled(v bool) { w.disabled.Store(v) }

// Eligible reports whether the dispatcher may select this worker.
func (w *Worker) Eligible() bool { return w.IsAlive() && !w.disabled.Load() }

// Execute brackets a proxied call: inflight and the rate window are bumped
// before the call, and the finalizer unwinds inflight, stamps lastUsed, and
// folds the post-call saturation into the smoothed load. The call's outcome is
// returned unchanged.
func (w *Worker) Execute(call func() error) error {
	w.inflight.Add(1)
	w.requestsInWindow.Add(1)
	defer func() {
		in := w.inflight.Add(-1)
		w.lastUsed.Store(time.Now().UnixNano())
		sample := float64(in) / float64(w.maxConcurrency)
		w.movingAvgLoad.Store((1-emaAlpha)*w.movingAvgLoad.Load() + emaAlpha*sample)
	}()
	return call()
}

func (w *Worker) forwardLines(r io.Reader, stream string) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		w.log.Debug().Str("stream", stream).Msg(sc.Text())
	}
}

// Model returns the model identifier this worker serves.
func (w *Worker) Model() string { return w.model }

// Inflight returns the number of outstanding Execute calls.
func (w *Worker) Inflight() int64 { return w.inflight.Load() }

// Rps is the request rate over the current 2 s window.
func (w *Worker) Rps() float64 {
	return float64(w.requestsInWindow.Load()) / metricsInterval.Seconds()
}

// CPUPercent returns the last sampled process CPU usage.
func (w *Worker) CPUPercent() float64 { return w.cpuPercent.Load() }

// MemoryMB returns the last sampled resident set size in megabytes.
func (w *Worker) MemoryMB() float64 {
	return float64(w.memoryBytes.Load()) / (1024 * 1024)
}

// MovingAvgLoad returns the smoothed inflight saturation.
func (w *Worker) MovingAvgLoad() float64 { return w.movingAvgLoad.Load() }

// CompositeLoad blends inflight saturation with CPU usage for ranking.
func (w *Worker) CompositeLoad() float64 {
	sat := float64(w.inflight.Load()) / float64(w.maxConcurrency)
	return (sat + w.cpuPercent.Load()/100) / 2
}

// LastUsed returns the completion time of the most recent proxied request,
// or the construction time if none completed yet.
func (w *Worker) LastUsed() time.Time { return time.Unix(0, w.lastUsed.Load()) }
