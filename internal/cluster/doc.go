// Package cluster manages a local pool of inference worker subprocesses: a
// supervisor that spawns, monitors, and terminates them; a control loop that
// scales the pool on observed load and a short-horizon rate trend; and a
// dispatcher that proxies requests to the least-loaded live worker.
package cluster
