package health

import (
	"context"
	"net/http"
	"time"

	"schooladmin/internal/httputil"
	"schooladmin/internal/metrics"

	"github.com/go-chi/chi/v5"
)

// Pinger is satisfied by *bun.DB and *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	platform Pinger
	metrics  *metrics.Metrics
}

func NewHandler(platform Pinger, m *metrics.Metrics) *Handler {
	return &Handler{platform: platform, metrics: m}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.Health)
	router.Get("/ready", h.Ready)
}

type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.RespondWithJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready reports whether the platform store answers. Tenant stores are
// checked per request by the resolver.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	start := time.Now()
	err := h.platform.PingContext(ctx)
	h.metrics.Checks().RecordDependencyCheck(r.Context(), "platform_db", time.Since(start), err)
	if err != nil {
		httputil.RespondWithJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "not ready", Error: "platform database unreachable"})
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, HealthResponse{Status: "ready"})
}
