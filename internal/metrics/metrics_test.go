package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"schooladmin/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	m, err := NewWithMeter(provider.Meter("test"), logger.Discard())
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordUserProvisioned(ctx, "student")
	m.RecordUserProvisioned(ctx, "parent")
	m.RecordProvisioningOutcome(ctx, "student", "committed")
	m.RecordNotification(ctx, false)
	m.Database.RecordQuery(ctx, "insert", "users", 3*time.Millisecond, errors.New("boom"))
	m.Broker().RecordPublish(ctx, "nats", "notifications.email.welcome", time.Millisecond, nil)
	m.Broker().RecordPublish(ctx, "nats", "notifications.email.welcome", time.Millisecond, errors.New("timeout"))
	m.Checks().RecordDependencyCheck(ctx, "platform_db", time.Millisecond, errors.New("down"))

	data := collect(t, reader)

	provisioned, ok := data["school_admin.users.provisioned"].(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range provisioned.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)

	dbErrors, ok := data["db.query.errors"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, dbErrors.DataPoints, 1)
	assert.Equal(t, int64(1), dbErrors.DataPoints[0].Value)

	_, ok = data["db.query.duration"].(metricdata.Histogram[float64])
	assert.True(t, ok)

	published, ok := data["messaging.messages.published"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, published.DataPoints, 1)
	assert.Equal(t, int64(2), published.DataPoints[0].Value)

	publishErrors, ok := data["messaging.message.errors"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, publishErrors.DataPoints, 1)
	assert.Equal(t, int64(1), publishErrors.DataPoints[0].Value)

	up, ok := data["dependency.up"].(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, up.DataPoints, 1)
	assert.Equal(t, int64(0), up.DataPoints[0].Value)

	_, ok = data["runtime.go.goroutines"].(metricdata.Gauge[int64])
	assert.True(t, ok)
}

func TestNewMock_IgnoresCalls(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordUserProvisioned(ctx, "teacher")
		m.RecordProvisioningOutcome(ctx, "teacher", "rolled_back")
		m.RecordNotification(ctx, true)
		m.RecordCredentialsRedeemed(ctx)
		m.RecordTenantResolveFailure(ctx, "not_found")
		m.DB().RecordQuery(ctx, "select", "users", time.Millisecond, nil)
		m.Broker().RecordPublish(ctx, "kafka", "welcome", time.Millisecond, nil)
		m.Broker().RecordConnectionChange(ctx, "kafka", 1)
		m.Checks().RecordDependencyCheck(ctx, "platform_db", time.Millisecond, nil)
	})

	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		nilMetrics.RecordUserProvisioned(ctx, "teacher")
		nilMetrics.DB().RecordQuery(ctx, "select", "users", time.Millisecond, nil)
		nilMetrics.Broker().RecordPublish(ctx, "nats", "welcome", time.Millisecond, nil)
	})
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	m, err := NewWithMeter(provider.Meter("test"), logger.Discard())
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Use(m.Server().Middleware)
	router.Get("/tenants/{tenantID}/stats", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for _, path := range []string{"/tenants/1/stats", "/tenants/2/stats"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	data := collect(t, reader)

	requests, ok := data["http.server.requests_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, requests.DataPoints, 1, "tenant ids are not label values")
	assert.Equal(t, int64(2), requests.DataPoints[0].Value)
	route, _ := requests.DataPoints[0].Attributes.Value("http_route")
	assert.Equal(t, "/tenants/{tenantID}/stats", route.AsString())

	serverErrors, ok := data["http.server.errors_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(2), serverErrors.DataPoints[0].Value)
}
