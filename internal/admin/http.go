package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"schooladmin/internal/account"
	"schooladmin/internal/httputil"
	"schooladmin/internal/provisioning"
	"schooladmin/internal/tenant"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/tenants", h.ListTenants)
	router.Route("/tenants/{tenantID}", func(r chi.Router) {
		r.Get("/stats", h.GetStats)
		r.Get("/classes", h.ListClasses)
		r.Get("/parents", h.ListParents)
		r.Get("/students", h.ListStudents)
		r.Post("/users/{kind}", h.CreateUser)
	})
}

func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, overview)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	stats, err := h.service.Stats(r.Context(), tenantID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, stats)
}

func (h *Handler) ListClasses(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	classes, err := h.service.Classes(r.Context(), tenantID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, classes)
}

func (h *Handler) ListParents(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	parents, err := h.service.Parents(r.Context(), tenantID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, parents)
}

func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	students, err := h.service.Students(r.Context(), tenantID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, students)
}

// CreateUser provisions one user from a form-encoded body.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	kind, ok := account.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		httputil.RespondWithError(w, http.StatusNotFound, "Unknown user type")
		return
	}

	if err := r.ParseForm(); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid form submission")
		return
	}

	h.logger.InfoContext(r.Context(), "provisioning user", "tenant_id", tenantID, "kind", kind)
	result, err := h.service.Provision(r.Context(), tenantID, kind, r.PostForm)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusCreated, result)
}

func (h *Handler) tenantID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	if err != nil || id <= 0 {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid tenant ID")
		return 0, false
	}
	return id, true
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *provisioning.ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.RespondWithErrors(w, http.StatusUnprocessableEntity, string(provisioning.RolledBack), verr.Messages)
	case errors.Is(err, tenant.ErrNotFound):
		h.logger.InfoContext(r.Context(), "tenant not found")
		httputil.RespondWithError(w, http.StatusNotFound, "School not found")
	case errors.Is(err, tenant.ErrSuspended):
		httputil.RespondWithError(w, http.StatusServiceUnavailable, "School is suspended")
	case errors.Is(err, tenant.ErrStoreUnavailable):
		httputil.RespondWithError(w, http.StatusServiceUnavailable, "School database is not available")
	case errors.Is(err, provisioning.ErrUnknownKind):
		httputil.RespondWithError(w, http.StatusNotFound, "Unknown user type")
	case errors.Is(err, provisioning.ErrWriteFailure):
		httputil.RespondWithErrors(w, http.StatusInternalServerError, string(provisioning.RolledBack), []string{provisioning.WriteFailureMessage})
	default:
		h.logger.ErrorContext(r.Context(), "internal error", "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
