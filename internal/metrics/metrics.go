package metrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	Database  *DatabaseMetrics
	Messaging *MessagingMetrics
	Health    *HealthMetrics
	HTTP      *HTTPMetrics

	usersProvisioned      metric.Int64Counter
	provisioningOutcomes  metric.Int64Counter
	notificationsSent     metric.Int64Counter
	credentialsRedeemed   metric.Int64Counter
	tenantResolveFailures metric.Int64Counter
}

func New(serviceName string, logger *slog.Logger) (*Metrics, error) {
	return NewWithMeter(otel.Meter(serviceName), logger)
}

func NewWithMeter(meter metric.Meter, logger *slog.Logger) (*Metrics, error) {
	database, err := NewDatabaseMetrics(meter)
	if err != nil {
		return nil, err
	}

	messaging, err := NewMessagingMetrics(meter)
	if err != nil {
		return nil, err
	}

	health, err := NewHealthMetrics(meter)
	if err != nil {
		return nil, err
	}

	httpMetrics, err := NewHTTPMetrics(meter)
	if err != nil {
		return nil, err
	}

	if err := RegisterRuntime(meter); err != nil {
		return nil, err
	}

	m := &Metrics{Database: database, Messaging: messaging, Health: health, HTTP: httpMetrics}

	m.usersProvisioned, err = meter.Int64Counter(
		"school_admin.users.provisioned",
		metric.WithDescription("Accounts created, by kind"),
		metric.WithUnit("{account}"),
	)
	if err != nil {
		return nil, err
	}

	m.provisioningOutcomes, err = meter.Int64Counter(
		"school_admin.provisioning.outcomes",
		metric.WithDescription("Provisioning requests, by kind and outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.notificationsSent, err = meter.Int64Counter(
		"school_admin.notifications.sent",
		metric.WithDescription("Guardian welcome notifications, by result"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, err
	}

	m.credentialsRedeemed, err = meter.Int64Counter(
		"school_admin.credentials.redeemed",
		metric.WithDescription("One-time credential summaries viewed"),
		metric.WithUnit("{view}"),
	)
	if err != nil {
		return nil, err
	}

	m.tenantResolveFailures, err = meter.Int64Counter(
		"school_admin.tenants.resolve_failures",
		metric.WithDescription("Tenant store resolution failures, by reason"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("metrics collectors initialized successfully")
	return m, nil
}

// NewMock creates a no-op Metrics instance for testing
// The returned Metrics will safely ignore all Record* calls
func NewMock() *Metrics {
	return &Metrics{Database: &DatabaseMetrics{}, Messaging: &MessagingMetrics{}, Health: &HealthMetrics{}, HTTP: &HTTPMetrics{}}
}

func (m *Metrics) RecordUserProvisioned(ctx context.Context, kind string) {
	if m != nil && m.usersProvisioned != nil {
		m.usersProvisioned.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

func (m *Metrics) RecordProvisioningOutcome(ctx context.Context, kind, outcome string) {
	if m != nil && m.provisioningOutcomes != nil {
		m.provisioningOutcomes.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("outcome", outcome),
		))
	}
}

func (m *Metrics) RecordNotification(ctx context.Context, delivered bool) {
	if m == nil || m.notificationsSent == nil {
		return
	}
	result := "delivered"
	if !delivered {
		result = "failed"
	}
	m.notificationsSent.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) RecordCredentialsRedeemed(ctx context.Context) {
	if m != nil && m.credentialsRedeemed != nil {
		m.credentialsRedeemed.Add(ctx, 1)
	}
}

func (m *Metrics) RecordTenantResolveFailure(ctx context.Context, reason string) {
	if m != nil && m.tenantResolveFailures != nil {
		m.tenantResolveFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

// DB returns the database collectors, tolerating a nil receiver.
func (m *Metrics) DB() *DatabaseMetrics {
	if m == nil {
		return nil
	}
	return m.Database
}

// Broker returns the messaging collectors, tolerating a nil receiver.
func (m *Metrics) Broker() *MessagingMetrics {
	if m == nil {
		return nil
	}
	return m.Messaging
}

// Checks returns the readiness collectors, tolerating a nil receiver.
func (m *Metrics) Checks() *HealthMetrics {
	if m == nil {
		return nil
	}
	return m.Health
}

// Server returns the HTTP collectors, tolerating a nil receiver.
func (m *Metrics) Server() *HTTPMetrics {
	if m == nil {
		return nil
	}
	return m.HTTP
}
