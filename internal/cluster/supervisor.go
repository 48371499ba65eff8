package cluster

import (
	"os/exec"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"ollamad/internal/config"
)

// Supervisor owns the port→Worker pool. Reads (dispatcher, HTTP plane) take
// snapshots under RLock; writes (control loop, operator endpoints) take the
// write lock only around map mutation, never around subprocess I/O.
type Supervisor struct {
	cfg *config.Store
	log zerolog.Logger

	mu      sync.RWMutex
	workers map[int]*Worker

	clusterRps atomicFloat64

	// rpsHistory is written only by the control loop; histMu lets status
	// readers take a consistent copy.
	histMu     sync.RWMutex
	rpsHistory []float64

	users *userCounters

	// workerCommand overrides the subprocess command for new workers.
	// Tests swap in a stub; nil means the real inference binary.
	workerCommand func(port int) *exec.Cmd
}

func NewSupervisor(cfg *config.Store, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		log:     log,
		workers: make(map[int]*Worker),
		users:   newUserCounters(),
	}
}

// StartInstance adds one worker to the pool and starts its subprocess. A
// no-op when the pool is already at max_instances. The map entry is inserted
// before the subprocess starts so a concurrent control-loop scan observes the
// new worker immediately.
func (s *Supervisor) StartInstance() {
	cfg := s.cfg.Current()
	s.mu.RLock()
	n := len(s.workers)
	s.mu.RUnlock()
	if n >= cfg.MaxInstances {
		return
	}
	w, err := NewWorker(cfg.Model, cfg.MaxConcurrency, s.log)
	if err != nil {
		s.log.Error().Err(err).Msg("worker construction failed")
		return
	}
	if s.workerCommand != nil {
		port := w.Port
		w.newCommand = func() *exec.Cmd { return s.workerCommand(port) }
	}
	s.mu.Lock()
	if len(s.workers) >= cfg.MaxInstances {
		s.mu.Unlock()
		w.close()
		return
	}
	s.workers[w.Port] = w
	s.mu.Unlock()
	if err := w.Start(); err != nil {
		// Stays in the pool not-alive; the next tick reaps and replaces it.
		s.log.Warn().Int("port", w.Port).Err(err).Msg("worker start failed")
	}
}

// KillInstance terminates the worker's subprocess and removes it from the pool.
func (s *Supervisor) KillInstance(w *Worker) {
	w.Kill()
	s.remove(w)
	s.log.Info().Int("port", w.Port).Msg("worker removed")
}

// remove drops the worker from the map and stops its metrics ticker.
func (s *Supervisor) remove(w *Worker) {
	s.mu.Lock()
	delete(s.workers, w.Port)
	s.mu.Unlock()
	w.close()
}

// Enumerate returns a snapshot of the pool ordered by port.
func (s *Supervisor) Enumerate() []*Worker {
	s.mu.RLock()
	out := make([]*Worker, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}

// Get returns the worker on port, or nil.
func (s *Supervisor) Get(port int) *Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workers[port]
}

// Len returns the current pool size.
func (s *Supervisor) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workers)
}

// InitialFill brings the pool up to min_instances on startup.
func (s *Supervisor) InitialFill() {
	cfg := s.cfg.Current()
	for i := 0; i < cfg.MinInstances; i++ {
		s.StartInstance()
	}
}

// Stop kills every worker. Best effort; used on shutdown so no inference
// subprocess outlives the daemon.
func (s *Supervisor) Stop() {
	for _, w := range s.Enumerate() {
		s.KillInstance(w)
	}
}

// ClusterRps returns the smoothed cluster-wide request rate.
func (s *Supervisor) ClusterRps() float64 { return s.clusterRps.Load() }

// RpsHistory returns a copy of the smoothed-rate window.
func (s *Supervisor) RpsHistory() []float64 {
	s.histMu.RLock()
	defer s.histMu.RUnlock()
	return append([]float64(nil), s.rpsHistory...)
}

// Trend is the first-order slope across the history window: newest minus
// oldest smoothed sample, zero until two samples exist.
func (s *Supervisor) Trend() float64 {
	s.histMu.RLock()
	defer s.histMu.RUnlock()
	if len(s.rpsHistory) < 2 {
		return 0
	}
	return s.rpsHistory[len(s.rpsHistory)-1] - s.rpsHistory[0]
}

// Users exposes the per-user request counters.
func (s *Supervisor) Users() *userCounters { return s.users }

// Config returns the current configuration snapshot.
func (s *Supervisor) Config() config.Config { return s.cfg.Current() }
