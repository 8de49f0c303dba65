package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"schooladmin/internal/account"
	"schooladmin/internal/credential"
	"schooladmin/internal/intake"
	"schooladmin/internal/metrics"
	"schooladmin/internal/notify"
	"schooladmin/internal/tenant"

	"github.com/uptrace/bun"
)

type Outcome string

const (
	Committed      Outcome = "committed"
	RolledBack     Outcome = "rolled_back"
	PartialWarning Outcome = "partial_warning"
)

// WriteFailureMessage is shown to the operator for any failed write.
// The cause is only logged.
const WriteFailureMessage = "A database error occurred while creating the user. No changes were saved."

var (
	ErrWriteFailure = errors.New("provisioning write failed")
	ErrUnknownKind  = errors.New("unknown user kind")
)

// ValidationError carries operator-correctable messages. Nothing was written.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

func invalid(msg string) *ValidationError {
	return &ValidationError{Messages: []string{msg}}
}

type Result struct {
	Outcome     Outcome                 `json:"outcome"`
	Kind        account.Kind            `json:"kind"`
	AccountID   int64                   `json:"accountId,omitempty"`
	Errors      []string                `json:"errors,omitempty"`
	Warnings    []string                `json:"warnings,omitempty"`
	Credentials []credential.Credential `json:"credentials,omitempty"`
	Tenant      *tenant.Tenant          `json:"-"`
}

type Notifier interface {
	Dispatch(ctx context.Context, n notify.Notice) bool
}

type Service struct {
	resolver  tenant.Resolver
	validator *intake.Validator
	notifier  Notifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewService(resolver tenant.Resolver, validator *intake.Validator, notifier Notifier, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		resolver:  resolver,
		validator: validator,
		notifier:  notifier,
		logger:    logger,
		metrics:   m,
	}
}

// Provision creates one user of kind in the tenant's store from a raw form.
//
// Tenant resolution errors (tenant.ErrNotFound, tenant.ErrSuspended,
// tenant.ErrStoreUnavailable) are returned with a nil Result before the form
// is looked at. Otherwise a Result is always returned: a *ValidationError or
// ErrWriteFailure accompanies RolledBack, nil accompanies Committed and
// PartialWarning.
func (s *Service) Provision(ctx context.Context, tenantID int64, kind account.Kind, form url.Values) (*Result, error) {
	if _, ok := account.ParseKind(string(kind)); !ok {
		return nil, ErrUnknownKind
	}

	handle, err := s.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	w := &unitOfWork{kind: kind, logger: s.logger.With("tenant_id", tenantID, "kind", kind), metrics: s.metrics}

	var run func(ctx context.Context) error
	var msgs []string
	switch kind {
	case account.KindStudent:
		var rec *intake.StudentRecord
		rec, msgs = s.validator.Student(form)
		run = func(ctx context.Context) error { return w.student(ctx, rec) }
	case account.KindTeacher:
		var rec *intake.TeacherRecord
		rec, msgs = s.validator.Teacher(form)
		run = func(ctx context.Context) error { return w.teacher(ctx, rec) }
	case account.KindParent:
		var rec *intake.ParentRecord
		rec, msgs = s.validator.Parent(form)
		run = func(ctx context.Context) error { return w.parent(ctx, rec) }
	}

	if len(msgs) > 0 {
		s.metrics.RecordProvisioningOutcome(ctx, string(kind), string(RolledBack))
		return &Result{Outcome: RolledBack, Kind: kind, Errors: msgs, Tenant: handle.Tenant}, &ValidationError{Messages: msgs}
	}

	err = handle.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		w.tx = tx
		w.repo = account.NewRepository(tx, s.metrics)
		return run(ctx)
	})
	if err != nil {
		s.metrics.RecordProvisioningOutcome(ctx, string(kind), string(RolledBack))

		var verr *ValidationError
		if errors.As(err, &verr) {
			w.logger.InfoContext(ctx, "provisioning rejected", "errors", verr.Messages)
			return &Result{Outcome: RolledBack, Kind: kind, Errors: verr.Messages, Tenant: handle.Tenant}, verr
		}

		w.logger.ErrorContext(ctx, "provisioning rolled back", "error", err)
		return &Result{
			Outcome: RolledBack,
			Kind:    kind,
			Errors:  []string{WriteFailureMessage},
			Tenant:  handle.Tenant,
		}, fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}

	for _, c := range w.credentials {
		s.metrics.RecordUserProvisioned(ctx, c.Kind)
	}

	// Committed. Notifications can no longer affect the stored state.
	for _, n := range w.notices {
		n.TenantName = handle.Tenant.Name
		n.TenantSlug = handle.Tenant.Slug
		if !s.notifier.Dispatch(ctx, n) {
			w.warnings = append(w.warnings, fmt.Sprintf("Welcome email to %s could not be sent", n.Email))
		}
	}

	result := &Result{
		Outcome:     Committed,
		Kind:        kind,
		AccountID:   w.accountID,
		Warnings:    w.warnings,
		Credentials: w.credentials,
		Tenant:      handle.Tenant,
	}
	if len(w.warnings) > 0 {
		result.Outcome = PartialWarning
	}

	s.metrics.RecordProvisioningOutcome(ctx, string(kind), string(result.Outcome))
	w.logger.InfoContext(ctx, "user provisioned",
		"account_id", w.accountID,
		"outcome", result.Outcome,
		"accounts_created", len(w.credentials),
	)
	return result, nil
}
