package web_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"schooladmin/internal/account"
	"schooladmin/internal/admin"
	"schooladmin/internal/credential"
	"schooladmin/internal/intake"
	"schooladmin/internal/logger"
	"schooladmin/internal/metrics"
	"schooladmin/internal/notify"
	"schooladmin/internal/provisioning"
	"schooladmin/internal/tenant"
	"schooladmin/internal/web"
	"schooladmin/testing/testdb"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type silentNotifier struct{}

func (silentNotifier) Dispatch(ctx context.Context, n notify.Notice) bool { return true }

type env struct {
	router    chi.Router
	active    int64
	suspended int64
}

func setup(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	platform := testdb.NewSQLite(t, tenant.PlatformModels()...)
	tenants := tenant.NewRepository(platform, metrics.NewMock())
	active, err := tenants.Create(ctx, &tenant.Tenant{Name: "Northside Academy", Slug: "northside", Status: tenant.StatusActive, DatabaseName: "school_northside"})
	require.NoError(t, err)
	suspended, err := tenants.Create(ctx, &tenant.Tenant{Name: "Eastgate School", Slug: "eastgate", Status: tenant.StatusSuspended, DatabaseName: "school_eastgate"})
	require.NoError(t, err)

	store := testdb.OpenSQLite(t)
	require.NoError(t, account.Migrate(ctx, store))
	_, err = store.NewInsert().Model(&[]account.Class{
		{Name: "Grade 1", Section: "A", IsActive: true},
		{Name: "Grade 2", Section: "B", IsActive: true},
	}).Exec(ctx)
	require.NoError(t, err)

	opener := func(ctx context.Context, locator string) (*bun.DB, error) { return store, nil }
	registry := tenant.NewRegistry(tenants, opener, time.Second, logger.Discard(), metrics.NewMock())
	prov := provisioning.NewService(registry, intake.New(nil), silentNotifier{}, logger.Discard(), metrics.NewMock())

	handler, err := web.NewHandler(
		admin.NewService(tenants, registry, prov, metrics.NewMock()),
		credential.NewMemoryVault(time.Minute),
		logger.Discard(),
		metrics.NewMock(),
	)
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Route("/admin", handler.RegisterRoutes)
	return &env{router: router, active: active.ID, suspended: suspended.ID}
}

func (e *env) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (e *env) post(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func usersPath(id int64, rest string) string {
	return "/admin/tenants/" + strconv.FormatInt(id, 10) + "/users/" + rest
}

func TestDashboard(t *testing.T) {
	e := setup(t)

	rec := e.get(t, "/admin")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Northside Academy")
	assert.Contains(t, body, "Active classes: 2")
	assert.Contains(t, body, "Eastgate School")
	assert.Contains(t, body, "Suspended")
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestNewUserForm(t *testing.T) {
	e := setup(t)

	tests := []struct {
		name    string
		tab     string
		want    []string
		notWant string
	}{
		{"default tab is student", "", []string{`name="admission_number"`, "Grade 1 A", `name="parent_relationship"`}, `name="employee_id"`},
		{"teacher tab", "teacher", []string{`name="employee_id"`, `name="joining_date"`}, `name="admission_number"`},
		{"parent tab", "parent", []string{`name="student_ids"`, `name="relationship"`}, `name="class_id"`},
		{"unknown tab falls back", "admin", []string{`name="admission_number"`}, `name="employee_id"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.get(t, usersPath(e.active, "new?tab="+tt.tab))
			require.Equal(t, http.StatusOK, rec.Code)
			for _, w := range tt.want {
				assert.Contains(t, rec.Body.String(), w)
			}
			assert.NotContains(t, rec.Body.String(), tt.notWant)
		})
	}

	t.Run("unknown tenant", func(t *testing.T) {
		rec := e.get(t, usersPath(999, "new"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "School not found")
	})

	t.Run("suspended tenant", func(t *testing.T) {
		rec := e.get(t, usersPath(e.suspended, "new"))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestCreateUser(t *testing.T) {
	student := url.Values{
		"name":             {"Jane Doe"},
		"first_name":       {"Jane"},
		"last_name":        {"Doe"},
		"admission_number": {"STU1"},
		"date_of_birth":    {"2010-01-01"},
		"class_id":         {"2"},
		"parent_name":      {"John Doe"},
		"parent_email":     {"john@example.com"},
	}

	t.Run("redirects to a single-read credentials page", func(t *testing.T) {
		e := setup(t)

		rec := e.post(t, usersPath(e.active, "student"), student)
		require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
		location := rec.Header().Get("Location")
		require.True(t, strings.HasPrefix(location, "/admin/credentials/"), location)

		rec = e.get(t, location)
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "Northside Academy")
		assert.Contains(t, body, "Jane Doe")
		assert.Contains(t, body, "john@example.com")
		assert.Contains(t, body, "Copy to clipboard")
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

		rec = e.get(t, location)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "already viewed or have expired")
	})

	t.Run("validation errors re-render the form", func(t *testing.T) {
		e := setup(t)
		form := url.Values{"name": {"Jane Doe"}, "class_id": {"2"}}

		rec := e.post(t, usersPath(e.active, "student"), form)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "First name is required")
		assert.Contains(t, body, "Admission number is required")
		assert.Contains(t, body, `value="Jane Doe"`)
		assert.Contains(t, body, `<option value="2" selected>`)
	})

	t.Run("teacher form keeps the teacher tab", func(t *testing.T) {
		e := setup(t)

		rec := e.post(t, usersPath(e.active, "teacher"), url.Values{"name": {"Ms Smith"}})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "Employee ID is required")
		assert.Contains(t, rec.Body.String(), `name="employee_id"`)
	})

	t.Run("unknown credentials token", func(t *testing.T) {
		e := setup(t)
		rec := e.get(t, "/admin/credentials/nope")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown kind", func(t *testing.T) {
		e := setup(t)
		rec := e.post(t, usersPath(e.active, "admin"), student)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
