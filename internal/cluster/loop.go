package cluster

import (
	"context"
	"time"
)

const tickInterval = 1 * time.Second

// RunControlLoop drives reap/replace and scaling until ctx is cancelled.
// Each tick swallows its own panics so a transient failure never kills the
// loop.
func (s *Supervisor) RunControlLoop(ctx context.Context) {
	s.log.Info().Msg("control loop started")
	for {
		s.tick(time.Now())
		select {
		case <-ctx.Done():
			s.log.Info().Msg("control loop stopped")
			return
		case <-time.After(tickInterval):
		}
	}
}

func (s *Supervisor) tick(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("control loop tick recovered")
		}
	}()

	cfg := s.cfg.Current()
	snapshot := s.Enumerate()

	// Reap dead workers and replace them. A disabled dead worker stays out:
	// the operator turned it off on purpose.
	for _, w := range snapshot {
		if !w.IsAlive() && !w.IsDisabled() {
			s.remove(w)
			s.log.Warn().Int("port", w.Port).Msg("reaping dead worker")
			s.StartInstance()
		}
	}

	// Cluster rate: EMA over the raw per-tick sum, disabled workers included
	// since they may still be draining inflight. The history stores the
	// smoothed value, so the trend below is a slope of smoothed samples.
	var raw float64
	for _, w := range s.Enumerate() {
		raw += w.Rps()
	}
	smoothed := emaAlpha*raw + (1-emaAlpha)*s.clusterRps.Load()
	s.clusterRps.Store(smoothed)
	s.histMu.Lock()
	s.rpsHistory = append(s.rpsHistory, smoothed)
	if len(s.rpsHistory) > cfg.PredictiveRpsWindow {
		s.rpsHistory = s.rpsHistory[len(s.rpsHistory)-cfg.PredictiveRpsWindow:]
	}
	s.histMu.Unlock()
	trend := s.Trend()

	// Scale up. The reactive and predictive rules fire independently, so one
	// tick can add at most two workers; StartInstance clamps at max.
	eligible := make([]*Worker, 0, len(snapshot))
	for _, w := range s.Enumerate() {
		if w.Eligible() {
			eligible = append(eligible, w)
		}
	}
	if len(eligible) > 0 && s.Len() < cfg.MaxInstances {
		var maxLoad float64
		for _, w := range eligible {
			if l := w.CompositeLoad(); l > maxLoad {
				maxLoad = l
			}
		}
		if maxLoad >= cfg.ScaleUpLoadThreshold || smoothed >= cfg.ScaleUpRps {
			s.log.Info().Float64("max_load", maxLoad).Float64("cluster_rps", smoothed).Msg("reactive scale up")
			s.StartInstance()
		}
		if trend > cfg.PredictiveRpsTrendThreshold {
			s.log.Info().Float64("trend", trend).Msg("predictive scale up")
			s.StartInstance()
		}
	}

	// Scale down idle workers. The pool-size guard is re-checked per worker
	// so a single tick cannot breach min_instances.
	idle := time.Duration(cfg.IdleTimeoutSeconds) * time.Second
	for _, w := range snapshot {
		if now.Sub(w.LastUsed()) > idle &&
			w.CompositeLoad() <= cfg.ScaleDownLoadThreshold &&
			s.Len() > cfg.MinInstances {
			s.log.Info().Int("port", w.Port).Msg("scaling down idle worker")
			s.KillInstance(w)
		}
	}
}
