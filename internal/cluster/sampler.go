package cluster

import (
	"math"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// cpuSampleGap separates the two CPU-time readings a usage estimate is
// derived from.
const cpuSampleGap = 100 * time.Millisecond

// metricsLoop refreshes CPU and memory samples every 2 s and resets the rate
// window at the end of each tick, after sampling. The first tick fires 2 s
// after construction, so requests in the first window are counted like those
// in any later window.
func (w *Worker) metricsLoop() {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			if w.IsAlive() {
				w.cpuPercent.Store(w.sampleCPU())
				w.memoryBytes.Store(w.sampleMemory())
			}
			w.requestsInWindow.Store(0)
		}
	}
}

// sampleCPU estimates process CPU usage from two CPU-time readings 100 ms
// apart, normalized over all cores and rounded to two decimals. Any failure
// (process gone, unreadable stats) yields 0.
func (w *Worker) sampleCPU() float64 {
	pid := w.pid.Load()
	if pid == 0 {
		return 0
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	before, err := proc.Times()
	if err != nil {
		return 0
	}
	start := time.Now()
	time.Sleep(cpuSampleGap)
	after, err := proc.Times()
	if err != nil {
		return 0
	}
	wall := time.Since(start).Seconds()
	if wall <= 0 {
		return 0
	}
	delta := (after.User + after.System) - (before.User + before.System)
	pct := delta / (wall * float64(runtime.NumCPU())) * 100
	if pct < 0 {
		pct = 0
	}
	return math.Round(pct*100) / 100
}

func (w *Worker) sampleMemory() uint64 {
	pid := w.pid.Load()
	if pid == 0 {
		return 0
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return 0
	}
	return mem.RSS
}
