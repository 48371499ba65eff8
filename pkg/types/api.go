package types

import "time"

// InstanceSnapshot is the wire-level view of a single worker, as returned by
// GET /instances and embedded in GET /cluster/status.
type InstanceSnapshot struct {
	// Loopback port the worker's inference server listens on. Doubles as the
	// worker's identity within the pool.
	// example: 43117
	Port int `json:"port" example:"43117"`
	// Model identifier the worker was started with.
	// example: llama3
	Model string `json:"model" example:"llama3"`
	// True while the subprocess exists and has not exited.
	Alive bool `json:"alive"`
	// Operator override excluding the worker from dispatch.
	Disabled bool `json:"disabled"`
	// Number of requests currently being proxied to this worker.
	Inflight int64 `json:"inflight"`
	// Last sampled process CPU usage, percent of all cores.
	CPUPercent float64 `json:"cpu_percent"`
	// Last sampled resident set size in megabytes.
	MemoryMB float64 `json:"memory_mb"`
	// Exponentially smoothed inflight saturation.
	Load float64 `json:"load"`
	// Blend of inflight saturation and CPU usage used for ranking.
	CompositeLoad float64 `json:"composite_load"`
	// Requests per second over the current 2 s window.
	Rps float64 `json:"rps"`
	// Completion time of the most recent proxied request.
	LastUsed time.Time `json:"last_used"`
}

// ClusterStatus aggregates the pool for GET /cluster/status.
type ClusterStatus struct {
	// Total workers in the pool, including dead and disabled ones.
	Size     int `json:"size"`
	Alive    int `json:"alive"`
	Disabled int `json:"disabled"`
	// Sum of inflight across all workers.
	Inflight int64 `json:"inflight"`
	// Smoothed cluster-wide requests per second.
	ClusterRps float64 `json:"cluster_rps"`
	// First-order slope of the smoothed rate across the history window.
	RpsTrend float64 `json:"rps_trend"`
	// Mean composite load across alive workers.
	AvgCompositeLoad float64 `json:"avg_composite_load"`
	Model            string  `json:"model"`
	MinInstances     int     `json:"min_instances"`
	MaxInstances     int     `json:"max_instances"`

	Instances []InstanceSnapshot `json:"instances"`
}

// ScaleRequest is the body of POST /cluster/scale.
type ScaleRequest struct {
	// "up" or "down".
	// example: up
	Action string `json:"action" example:"up"`
	// Number of workers to add or remove. Defaults to 1.
	// example: 2
	Count int `json:"count,omitempty" example:"2"`
}

// ErrorResponse is the uniform JSON error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
