package cluster

import (
	"context"

	"ollamad/pkg/types"
)

// Service bundles the supervisor and dispatcher behind the surface the HTTP
// layer consumes.
type Service struct {
	sup  *Supervisor
	disp *Dispatcher
}

func NewService(sup *Supervisor, disp *Dispatcher) *Service {
	return &Service{sup: sup, disp: disp}
}

func snapshotOf(w *Worker) types.InstanceSnapshot {
	return types.InstanceSnapshot{
		Port:          w.Port,
		Model:         w.Model(),
		Alive:         w.IsAlive(),
		Disabled:      w.IsDisabled(),
		Inflight:      w.Inflight(),
		CPUPercent:    w.CPUPercent(),
		MemoryMB:      w.MemoryMB(),
		Load:          w.MovingAvgLoad(),
		CompositeLoad: w.CompositeLoad(),
		Rps:           w.Rps(),
		LastUsed:      w.LastUsed(),
	}
}

// Instances returns per-worker snapshots ordered by port.
func (s *Service) Instances() []types.InstanceSnapshot {
	workers := s.sup.Enumerate()
	out := make([]types.InstanceSnapshot, 0, len(workers))
	for _, w := range workers {
		out = append(out, snapshotOf(w))
	}
	return out
}

// Status aggregates the pool. ok is false when the pool is empty.
func (s *Service) Status() (types.ClusterStatus, bool) {
	cfg := s.sup.Config()
	workers := s.sup.Enumerate()
	if len(workers) == 0 {
		return types.ClusterStatus{}, false
	}
	st := types.ClusterStatus{
		Size:         len(workers),
		ClusterRps:   s.sup.ClusterRps(),
		RpsTrend:     s.sup.Trend(),
		Model:        cfg.Model,
		MinInstances: cfg.MinInstances,
		MaxInstances: cfg.MaxInstances,
		Instances:    make([]types.InstanceSnapshot, 0, len(workers)),
	}
	var loadSum float64
	for _, w := range workers {
		snap := snapshotOf(w)
		st.Instances = append(st.Instances, snap)
		st.Inflight += snap.Inflight
		if snap.Alive {
			st.Alive++
			loadSum += snap.CompositeLoad
		}
		if snap.Disabled {
			st.Disabled++
		}
	}
	if st.Alive > 0 {
		st.AvgCompositeLoad = loadSum / float64(st.Alive)
	}
	return st, true
}

// SetDisabled toggles the operator flag on the worker at port. Returns false
// for an unknown port.
func (s *Service) SetDisabled(port int, disabled bool) bool {
	w := s.sup.Get(port)
	if w == nil {
		return false
	}
	w.SetDisabled(disabled)
	return true
}

// ScaleUp starts count workers, clamped by max_instances.
func (s *Service) ScaleUp(count int) {
	for i := 0; i < count; i++ {
		s.sup.StartInstance()
	}
}

// ScaleDown kills the first count workers in enumeration order. Best effort.
func (s *Service) ScaleDown(count int) {
	workers := s.sup.Enumerate()
	if count > len(workers) {
		count = len(workers)
	}
	for _, w := range workers[:count] {
		s.sup.KillInstance(w)
	}
}

// Healthy reports whether any worker is alive.
func (s *Service) Healthy() bool {
	for _, w := range s.sup.Enumerate() {
		if w.IsAlive() {
			return true
		}
	}
	return false
}

// Route proxies a request via the dispatcher.
func (s *Service) Route(ctx context.Context, user string, body []byte) ([]byte, error) {
	return s.disp.Route(ctx, user, body)
}

// UserCounts returns a copy of the per-user request counters.
func (s *Service) UserCounts() map[string]int64 {
	return s.sup.Users().Snapshot()
}

// ResetUsers clears the per-user request counters.
func (s *Service) ResetUsers() {
	s.sup.Users().Reset()
}
