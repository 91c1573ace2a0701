// Package httpapi exposes the tracking service over JSON/HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"sitetrack.io/internal/auth"
	"sitetrack.io/internal/model"
	"sitetrack.io/internal/obs"
	"sitetrack.io/internal/projects"
	"sitetrack.io/internal/stream"
)

const serviceName = "sitetrack-api"

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks the store before the server reports ready.
type ReadyProbe struct {
	Store Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rp.Store.Ping(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	svc        *projects.Service
	verifier   *auth.Verifier
	stream     *stream.Stream

	rateBurst    int
	ratePerSec   float64
	maxBodyBytes int64
	corsOrigins  []string
}

// Option customises the API.
type Option func(*API)

// WithStream enables the map event stream.
func WithStream(s *stream.Stream) Option {
	return func(a *API) { a.stream = s }
}

// WithRateLimit sets the per-client token bucket.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(a *API) {
		if perSecond > 0 && burst > 0 {
			a.ratePerSec, a.rateBurst = perSecond, burst
		}
	}
}

// WithCORSOrigins lists browser origins allowed to call the API.
func WithCORSOrigins(origins ...string) Option {
	return func(a *API) { a.corsOrigins = append(a.corsOrigins, origins...) }
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

func New(rp ReadyProbe, version string, svc *projects.Service, verifier *auth.Verifier, opts ...Option) *API {
	a := &API{
		mux:          http.NewServeMux(),
		readyProbe:   rp,
		version:      version,
		svc:          svc,
		verifier:     verifier,
		rateBurst:    40,
		ratePerSec:   20,
		maxBodyBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/projects", a.handleProjectsCollection)
	a.mux.HandleFunc("/v1/projects/", a.handleProjectResource)
	a.mux.HandleFunc("/v1/tasks", a.handleTasksCollection)
	a.mux.HandleFunc("/v1/tasks/", a.handleTaskResource)
	a.mux.Handle("/v1/users", RequireRole(model.RoleAdmin)(http.HandlerFunc(a.handleUsers)))
	a.mux.HandleFunc("/v1/map/markers", a.handleMapMarkers)
	a.mux.HandleFunc("/v1/map/stream", a.Stream)
	a.mux.HandleFunc("/v1/dashboard", a.handleDashboard)
	a.mux.HandleFunc("/v1/geo/parse", a.handleGeoParse)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler returns the routed mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h, a.corsOrigins...)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	b := obs.CurrentBuild()
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       serviceName,
		"time":       time.Now().UTC().Format(time.RFC3339),
		"version":    a.version,
		"commit":     b.Commit,
		"go_version": b.GoVersion,
	})
}
