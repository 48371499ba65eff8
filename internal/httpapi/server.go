package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ollamad/internal/cluster"
	"ollamad/pkg/types"
)

// Service defines the methods required by the HTTP control plane.
type Service interface {
	Instances() []types.InstanceSnapshot
	Status() (types.ClusterStatus, bool)
	SetDisabled(port int, disabled bool) bool
	ScaleUp(count int)
	ScaleDown(count int)
	Healthy() bool
	Route(ctx context.Context, user string, body []byte) ([]byte, error)
	UserCounts() map[string]int64
	ResetUsers()
}

// NewMux builds the control-plane router.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs/index.html", http.StatusFound)
	})
	MountSwagger(r)

	// listInstances godoc
	// @Summary  List workers
	// @Produce  json
	// @Success  200 {array} types.InstanceSnapshot
	// @Router   /instances [get]
	r.Get("/instances", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Instances()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	setDisabled := func(disabled bool, verb string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			port, err := strconv.Atoi(chi.URLParam(r, "port"))
			if err != nil || !svc.SetDisabled(port, disabled) {
				writeJSONError(w, http.StatusNotFound, "no worker on port "+chi.URLParam(r, "port"))
				return
			}
			w.Write([]byte("Instance on port " + strconv.Itoa(port) + " " + verb))
		}
	}

	// disableInstance godoc
	// @Summary  Exclude a worker from dispatch
	// @Param    port path int true "Worker port"
	// @Success  200 {string} string
	// @Failure  404 {object} types.ErrorResponse
	// @Router   /instances/{port}/disable [post]
	r.Post("/instances/{port}/disable", setDisabled(true, "disabled"))

	// enableInstance godoc
	// @Summary  Return a worker to dispatch
	// @Param    port path int true "Worker port"
	// @Success  200 {string} string
	// @Failure  404 {object} types.ErrorResponse
	// @Router   /instances/{port}/enable [post]
	r.Post("/instances/{port}/enable", setDisabled(false, "enabled"))

	// clusterStatus godoc
	// @Summary  Aggregate cluster state
	// @Produce  json
	// @Success  200 {object} types.ClusterStatus
	// @Failure  503 {object} types.ErrorResponse
	// @Router   /cluster/status [get]
	r.Get("/cluster/status", func(w http.ResponseWriter, r *http.Request) {
		st, ok := svc.Status()
		if !ok {
			writeJSONError(w, http.StatusServiceUnavailable, "no workers in pool")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(st); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	// scaleCluster godoc
	// @Summary  Manually scale the pool
	// @Accept   json
	// @Param    request body types.ScaleRequest true "Scale action"
	// @Success  200 {string} string
	// @Failure  400 {object} types.ErrorResponse
	// @Router   /cluster/scale [post]
	r.Post("/cluster/scale", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.ScaleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Count == 0 {
			req.Count = 1
		}
		if req.Count < 0 {
			writeJSONError(w, http.StatusBadRequest, "count must be positive")
			return
		}
		switch req.Action {
		case "up":
			svc.ScaleUp(req.Count)
			w.Write([]byte("Scaled up by " + strconv.Itoa(req.Count)))
		case "down":
			svc.ScaleDown(req.Count)
			w.Write([]byte("Scaled down by " + strconv.Itoa(req.Count)))
		default:
			writeJSONError(w, http.StatusBadRequest, `action must be "up" or "down"`)
		}
	})

	// route godoc
	// @Summary  Dispatch an inference request to the least-loaded worker
	// @Accept   json
	// @Produce  json
	// @Param    X-User header string false "User counter bucket"
	// @Success  200 {object} object
	// @Failure  400 {object} types.ErrorResponse
	// @Failure  502 {object} types.ErrorResponse
	// @Failure  503 {object} types.ErrorResponse
	// @Router   /route [post]
	r.Post("/route", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		if !json.Valid(body) {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		user := strings.TrimSpace(r.Header.Get("X-User"))
		if user == "" {
			user = "anonymous"
		}
		// Join server base context with request context so shutdown cancels work too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		out, err := svc.Route(ctx, user, body)
		if err != nil {
			switch {
			case cluster.IsNoEligibleWorker(err):
				writeJSONError(w, http.StatusServiceUnavailable, err.Error())
			case cluster.IsUpstream(err):
				writeJSONError(w, http.StatusBadGateway, err.Error())
			default:
				if he, ok := err.(HTTPError); ok {
					writeJSONError(w, he.StatusCode(), he.Error())
					return
				}
				writeJSONError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(out)
	})

	// health godoc
	// @Summary  Liveness of the pool
	// @Success  200 {string} string
	// @Failure  503 {string} string
	// @Router   /health [get]
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if svc.Healthy() {
			w.Write([]byte("Cluster healthy"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("No live workers"))
	})

	// resetUsers godoc
	// @Summary  Clear the per-user request counters
	// @Success  200 {string} string
	// @Router   /users/reset [post]
	r.Post("/users/reset", func(w http.ResponseWriter, r *http.Request) {
		svc.ResetUsers()
		w.Write([]byte("User counters reset"))
	})

	// Prometheus exposition: process-wide metrics plus the per-worker and
	// per-user cluster gauges collected at scrape time.
	reg := prometheus.NewRegistry()
	reg.MustRegister(newClusterCollector(svc))
	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer, reg}
	r.Get("/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}).ServeHTTP)

	return r
}
