package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/teemow/gmailvault/internal/google"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"

	credentialsStatusMissing = "missing"
	credentialsStatusInvalid = "invalid"

	gmailStatusAuthorized   = "authorized"
	gmailStatusTokenStored  = "token stored"
	gmailStatusUnauthorized = "authorization required"
)

// healthCheck is one named readiness check. A non-fatal check is reported
// but never fails readiness.
type healthCheck struct {
	name  string
	fatal bool
	run   func() (status string, ok bool)
}

// HealthChecker serves liveness and readiness for the HTTP endpoints.
// Readiness fails while the server is not serving, is shutting down, or
// cannot read its OAuth client credentials. The Gmail authorization state
// is reported alongside: tools answer "authorization required" on their own
// until `gmailvault auth` has been run.
type HealthChecker struct {
	ready         atomic.Bool
	serverContext *ServerContext
	startTime     time.Time
}

// NewHealthChecker creates a HealthChecker. sc may be nil, in which case
// only the serving flag is checked.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{
		serverContext: sc,
		startTime:     time.Now(),
	}
	h.ready.Store(true)
	return h
}

// SetReady sets the serving flag.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns the serving flag.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks"`
}

func (h *HealthChecker) checks() []healthCheck {
	checks := []healthCheck{{
		name:  "ready",
		fatal: true,
		run: func() (string, bool) {
			if h.ready.Load() {
				return healthStatusOK, true
			}
			return healthStatusNotReady, false
		},
	}}
	sc := h.serverContext
	if sc == nil {
		return checks
	}
	return append(checks,
		healthCheck{
			name:  "shutdown",
			fatal: true,
			run: func() (string, bool) {
				if sc.IsShutdown() {
					return healthStatusShuttingDown, false
				}
				return healthStatusOK, true
			},
		},
		healthCheck{
			name:  "credentials",
			fatal: true,
			run: func() (string, bool) {
				_, err := google.LoadClientConfig(sc.Config().CredentialsFile, google.DefaultScopes...)
				switch {
				case err == nil:
					return healthStatusOK, true
				case errors.Is(err, google.ErrCredentialsSourceMissing):
					return credentialsStatusMissing, false
				default:
					return credentialsStatusInvalid, false
				}
			},
		},
		healthCheck{
			name: "gmail",
			run: func() (string, bool) {
				switch {
				case sc.Authorized():
					return gmailStatusAuthorized, true
				case google.NewTokenStore(sc.Config().TokenFile).Exists():
					return gmailStatusTokenStored, true
				default:
					return gmailStatusUnauthorized, false
				}
			},
		},
	)
}

// evaluate runs every check and reports whether all fatal ones passed.
func (h *HealthChecker) evaluate() (map[string]string, bool) {
	results := make(map[string]string)
	allOK := true
	for _, c := range h.checks() {
		status, ok := c.run()
		results[c.name] = status
		if c.fatal && !ok {
			allOK = false
		}
	}
	return results, allOK
}

// LivenessHandler serves /healthz. It only reports that the process answers.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler serves /readyz.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks, ok := h.evaluate()
		if !ok {
			writeHealth(w, http.StatusServiceUnavailable, HealthResponse{Status: healthStatusNotReady, Checks: checks})
			return
		}
		writeHealth(w, http.StatusOK, HealthResponse{Status: healthStatusOK, Checks: checks})
	})
}

// DetailedHealthHandler serves /healthz/detailed: readiness plus uptime.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks, ok := h.evaluate()
		resp := DetailedHealthResponse{
			Status: healthStatusOK,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
			Checks: checks,
		}
		code := http.StatusOK
		if !ok {
			resp.Status = healthStatusNotReady
			code = http.StatusServiceUnavailable
		}
		writeHealth(w, code, resp)
	})
}

// RegisterHealthEndpoints registers the health endpoints on mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}

func writeHealth(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
