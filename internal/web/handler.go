// Package web renders the super-admin HTML pages.
package web

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"schooladmin/internal/account"
	"schooladmin/internal/admin"
	"schooladmin/internal/credential"
	"schooladmin/internal/intake"
	"schooladmin/internal/metrics"
	"schooladmin/internal/provisioning"
	"schooladmin/internal/tenant"

	"github.com/go-chi/chi/v5"
)

//go:embed templates/*.html
var templateFS embed.FS

var tabs = []account.Kind{account.KindStudent, account.KindTeacher, account.KindParent}

var funcs = template.FuncMap{
	"label": func(k account.Kind) string {
		s := string(k)
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
	"id":            func(id int64) string { return strconv.FormatInt(id, 10) },
	"relationships": func() []string { return intake.Relationships },
}

type Handler struct {
	service *admin.Service
	vault   credential.Vault
	logger  *slog.Logger
	metrics *metrics.Metrics
	pages   map[string]*template.Template
}

func NewHandler(service *admin.Service, vault credential.Vault, logger *slog.Logger, m *metrics.Metrics) (*Handler, error) {
	pages := make(map[string]*template.Template)
	for _, name := range []string{"dashboard.html", "user_form.html", "credentials.html", "message.html"} {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = tmpl
	}

	return &Handler{
		service: service,
		vault:   vault,
		logger:  logger,
		metrics: m,
		pages:   pages,
	}, nil
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/", h.Dashboard)
	router.Get("/tenants/{tenantID}/users/new", h.NewUser)
	router.Post("/tenants/{tenantID}/users/{kind}", h.CreateUser)
	router.Get("/credentials/{token}", h.Credentials)
}

type tenantCard struct {
	Tenant tenant.Tenant
	Stats  *account.Stats
	Note   string
}

type dashboardPage struct {
	Title    string
	ByStatus map[tenant.Status]int
	Cards    []tenantCard
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to load dashboard", "error", err)
		h.message(w, http.StatusInternalServerError, "Something went wrong", "The dashboard could not be loaded.")
		return
	}

	page := dashboardPage{Title: "Schools", ByStatus: overview.ByStatus}
	for _, t := range overview.Tenants {
		card := tenantCard{Tenant: t}
		if t.Status == tenant.StatusSuspended {
			card.Note = "Suspended"
		} else if stats, err := h.service.Stats(r.Context(), t.ID); err != nil {
			h.logger.WarnContext(r.Context(), "tenant statistics unavailable", "tenant_id", t.ID, "error", err)
			card.Note = "Database unavailable"
		} else {
			card.Stats = stats.Stats
		}
		page.Cards = append(page.Cards, card)
	}

	h.render(w, http.StatusOK, "dashboard.html", page)
}

type formPage struct {
	Title  string
	Tenant *tenant.Tenant
	Tab    account.Kind
	Tabs   []account.Kind
	Lists  *admin.SelectionLists
	Form   url.Values
	Errors []string
}

// Value returns the submitted value for key so the form keeps its input.
func (p formPage) Value(key string) string { return p.Form.Get(key) }

// Selected reports whether id was among the submitted values for key.
func (p formPage) Selected(key string, id int64) bool {
	want := strconv.FormatInt(id, 10)
	for _, v := range p.Form[key] {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == want {
				return true
			}
		}
	}
	return false
}

// Checked reports whether a checkbox was ticked on the previous submission.
func (p formPage) Checked(key string) bool {
	_, ok := p.Form[key]
	return ok
}

func (h *Handler) NewUser(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	tab, ok := account.ParseKind(r.URL.Query().Get("tab"))
	if !ok {
		tab = account.KindStudent
	}
	h.renderForm(w, r, http.StatusOK, tenantID, tab, url.Values{}, nil)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	kind, ok := account.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		h.message(w, http.StatusNotFound, "Not found", "Unknown user type.")
		return
	}
	if err := r.ParseForm(); err != nil {
		h.message(w, http.StatusBadRequest, "Invalid request", "The form could not be read.")
		return
	}

	result, err := h.service.Provision(r.Context(), tenantID, kind, r.PostForm)
	var verr *provisioning.ValidationError
	switch {
	case errors.As(err, &verr):
		h.renderForm(w, r, http.StatusUnprocessableEntity, tenantID, kind, r.PostForm, verr.Messages)
		return
	case errors.Is(err, provisioning.ErrWriteFailure):
		h.logger.ErrorContext(r.Context(), "user not created", "tenant_id", tenantID, "kind", kind, "error", err)
		h.renderForm(w, r, http.StatusInternalServerError, tenantID, kind, r.PostForm, []string{provisioning.WriteFailureMessage})
		return
	case err != nil:
		h.handleResolveError(w, r, err)
		return
	}

	token, err := h.vault.Put(r.Context(), &credential.Summary{
		TenantID:    tenantID,
		TenantName:  result.Tenant.Name,
		Kind:        string(result.Kind),
		Credentials: result.Credentials,
		Warnings:    result.Warnings,
	})
	if err != nil {
		// The accounts exist; only the summary page is lost.
		h.logger.ErrorContext(r.Context(), "failed to store credentials summary", "tenant_id", tenantID, "error", err)
		h.message(w, http.StatusInternalServerError, "User created",
			"The user was created but the credentials could not be displayed. Reset the password to issue new ones.")
		return
	}

	http.Redirect(w, r, "/admin/credentials/"+token, http.StatusSeeOther)
}

type credentialsPage struct {
	Title   string
	Summary *credential.Summary
}

// Export is the plain text block copied to the clipboard.
func (p credentialsPage) Export() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", p.Summary.TenantName)
	for _, c := range p.Summary.Credentials {
		fmt.Fprintf(&b, "%s: %s / login %s / password %s\n", c.Kind, c.Name, c.Login(), c.Password)
	}
	return b.String()
}

func (h *Handler) Credentials(w http.ResponseWriter, r *http.Request) {
	summary, err := h.vault.Take(r.Context(), chi.URLParam(r, "token"))
	if errors.Is(err, credential.ErrNotFound) {
		h.message(w, http.StatusNotFound, "Credentials unavailable",
			"These credentials were already viewed or have expired.")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to read credentials summary", "error", err)
		h.message(w, http.StatusInternalServerError, "Something went wrong", "The credentials could not be loaded.")
		return
	}

	h.metrics.RecordCredentialsRedeemed(r.Context())
	w.Header().Set("Cache-Control", "no-store")
	h.render(w, http.StatusOK, "credentials.html", credentialsPage{Title: "New credentials", Summary: summary})
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, status int, tenantID int64, tab account.Kind, form url.Values, msgs []string) {
	t, lists, err := h.service.Selections(r.Context(), tenantID)
	if err != nil {
		h.handleResolveError(w, r, err)
		return
	}

	h.render(w, status, "user_form.html", formPage{
		Title:  "Add user",
		Tenant: t,
		Tab:    tab,
		Tabs:   tabs,
		Lists:  lists,
		Form:   form,
		Errors: msgs,
	})
}

func (h *Handler) handleResolveError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tenant.ErrNotFound):
		h.message(w, http.StatusNotFound, "School not found", "No school with this ID is registered.")
	case errors.Is(err, tenant.ErrSuspended):
		h.message(w, http.StatusServiceUnavailable, "School suspended", "This school is suspended.")
	case errors.Is(err, tenant.ErrStoreUnavailable):
		h.message(w, http.StatusServiceUnavailable, "School unavailable", "The school database is not available. Try again later.")
	default:
		h.logger.ErrorContext(r.Context(), "internal error", "error", err)
		h.message(w, http.StatusInternalServerError, "Something went wrong", "The request could not be completed.")
	}
}

func (h *Handler) tenantID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	if err != nil || id <= 0 {
		h.message(w, http.StatusNotFound, "School not found", "No school with this ID is registered.")
		return 0, false
	}
	return id, true
}

type messagePage struct {
	Title   string
	Message string
}

func (h *Handler) message(w http.ResponseWriter, status int, title, msg string) {
	h.render(w, status, "message.html", messagePage{Title: title, Message: msg})
}

func (h *Handler) render(w http.ResponseWriter, status int, page string, data interface{}) {
	var buf bytes.Buffer
	if err := h.pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		h.logger.Error("failed to render page", "page", page, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
