// Package admin provides the runtime control surface for a pipeline:
// breaker inspection and manual trip/reset, window statistics, the last
// call's timing report, and the active configuration. All endpoints are
// protected by IP allowlist.
package admin

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"

	"github.com/dskow/resilience-core/internal/circuitbreaker"
	"github.com/dskow/resilience-core/internal/config"
	"github.com/dskow/resilience-core/internal/pipeline"
)

// Handler serves the admin endpoints for one pipeline.
type Handler struct {
	pipe        *pipeline.Pipeline
	reloader    ConfigProvider
	allowedNets []*net.IPNet
	logger      *slog.Logger
}

// ConfigProvider abstracts config access for testability.
type ConfigProvider interface {
	Current() *config.Config
}

// New creates an admin Handler. The allowlist CIDRs must be pre-validated
// (config validation ensures this).
func New(pipe *pipeline.Pipeline, reloader ConfigProvider, allowlist []string, logger *slog.Logger) *Handler {
	nets := make([]*net.IPNet, 0, len(allowlist))
	for _, cidr := range allowlist {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue // already validated by config
		}
		nets = append(nets, ipNet)
	}
	return &Handler{
		pipe:        pipe,
		reloader:    reloader,
		allowedNets: nets,
		logger:      logger,
	}
}

// RegisterRoutes adds admin routes to the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/admin/breaker", h.guard(http.MethodGet, h.breakerHandler))
	mux.HandleFunc("/admin/breaker/trip", h.guard(http.MethodPost, h.tripHandler))
	mux.HandleFunc("/admin/breaker/reset", h.guard(http.MethodPost, h.resetHandler))
	mux.HandleFunc("/admin/stats", h.guard(http.MethodGet, h.statsHandler))
	mux.HandleFunc("/admin/report", h.guard(http.MethodGet, h.reportHandler))
	mux.HandleFunc("/admin/config", h.guard(http.MethodGet, h.configHandler))
}

// guard wraps a handler with method and IP allowlist checking.
func (h *Handler) guard(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
				"error": "Method Not Allowed",
			})
			return
		}

		ip := extractIP(r.RemoteAddr)
		if !h.isAllowed(ip) {
			h.logger.Warn("admin access denied", "client_ip", ip, "path", r.URL.Path)
			writeJSON(w, http.StatusForbidden, map[string]string{
				"error": "Forbidden",
			})
			return
		}
		next(w, r)
	}
}

func (h *Handler) isAllowed(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, n := range h.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func extractIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// breakerStatus is the response type for /admin/breaker and the trip/reset
// endpoints.
type breakerStatus struct {
	Pipeline string `json:"pipeline"`
	State    string `json:"state"`
}

func (h *Handler) currentStatus() breakerStatus {
	state := "closed"
	if h.pipe.BreakerState() == circuitbreaker.StateOpen {
		state = "open"
	}
	return breakerStatus{Pipeline: h.pipe.Name(), State: state}
}

func (h *Handler) breakerHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.currentStatus())
}

func (h *Handler) tripHandler(w http.ResponseWriter, r *http.Request) {
	h.pipe.TripBreaker()
	h.logger.Info("breaker tripped via admin API", "client_ip", extractIP(r.RemoteAddr))
	writeJSON(w, http.StatusOK, h.currentStatus())
}

func (h *Handler) resetHandler(w http.ResponseWriter, r *http.Request) {
	h.pipe.ResetBreaker()
	h.logger.Info("breaker reset via admin API", "client_ip", extractIP(r.RemoteAddr))
	writeJSON(w, http.StatusOK, h.currentStatus())
}

// pipelineStats is the response type for /admin/stats.
type pipelineStats struct {
	Pipeline    string  `json:"pipeline"`
	Successes   int     `json:"successes"`
	Failures    int     `json:"failures"`
	RequestRate float64 `json:"request_rate"`
	ErrorRate   float64 `json:"error_rate"`
	InFlight    int     `json:"in_flight"`
	Capacity    int     `json:"capacity"`
	Breaker     string  `json:"breaker"`
}

func (h *Handler) statsHandler(w http.ResponseWriter, r *http.Request) {
	snap := h.pipe.Stats()
	writeJSON(w, http.StatusOK, pipelineStats{
		Pipeline:    h.pipe.Name(),
		Successes:   snap.Successes,
		Failures:    snap.Failures,
		RequestRate: snap.RequestRate,
		ErrorRate:   snap.ErrorRate,
		InFlight:    h.pipe.InFlight(),
		Capacity:    h.pipe.Capacity(),
		Breaker:     h.currentStatus().State,
	})
}

// reportHandler returns the timing report of the most recently completed
// call as plain text. 204 when no call has completed yet.
func (h *Handler) reportHandler(w http.ResponseWriter, r *http.Request) {
	report := h.pipe.LastReport()
	if report == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(report + "\n")) //nolint:errcheck
}

func (h *Handler) configHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reloader.Current())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
