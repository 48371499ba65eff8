package cluster

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// upstreamTimeout bounds a proxied call so a hung worker cannot leak handler
// goroutines.
const upstreamTimeout = 2 * time.Minute

// Dispatcher selects a worker per request and proxies the call to its local
// inference server. It holds only transient worker references.
type Dispatcher struct {
	sup    *Supervisor
	client *http.Client
	log    zerolog.Logger
}

func NewDispatcher(sup *Supervisor, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sup:    sup,
		client: &http.Client{Timeout: upstreamTimeout},
		log:    log,
	}
}

// pick returns the eligible worker with the lowest composite load. Enumerate
// orders by port, so equal loads break toward the lowest port.
func (d *Dispatcher) pick() (*Worker, error) {
	var best *Worker
	for _, w := range d.sup.Enumerate() {
		if !w.Eligible() {
			continue
		}
		if best == nil || w.CompositeLoad() < best.CompositeLoad() {
			best = w
		}
	}
	if best == nil {
		return nil, ErrNoEligibleWorker()
	}
	return best, nil
}

// Route forwards the caller's JSON body to the least-loaded worker and
// returns the upstream response body. A non-empty user id bumps that user's
// counter; the counter never influences selection. No retry on upstream
// failure: the client may retry and will likely land elsewhere.
func (d *Dispatcher) Route(ctx context.Context, user string, body []byte) ([]byte, error) {
	w, err := d.pick()
	if err != nil {
		return nil, err
	}
	if user != "" {
		d.sup.Users().Bump(user)
	}
	var out []byte
	err = w.Execute(func() error {
		url := fmt.Sprintf("http://127.0.0.1:%d/api/prompt", w.Port)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return ErrUpstream(w.Port, 0, err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := d.client.Do(req)
		if err != nil {
			return ErrUpstream(w.Port, 0, err)
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return ErrUpstream(w.Port, 0, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return ErrUpstream(w.Port, resp.StatusCode, nil)
		}
		out = b
		return nil
	})
	if err != nil {
		d.log.Warn().Int("port", w.Port).Err(err).Msg("route failed")
		return nil, err
	}
	return out, nil
}

// Close releases idle upstream connections. Called on shutdown.
func (d *Dispatcher) Close() {
	d.client.CloseIdleConnections()
}
