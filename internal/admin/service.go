package admin

import (
	"context"
	"fmt"
	"net/url"

	"schooladmin/internal/account"
	"schooladmin/internal/metrics"
	"schooladmin/internal/provisioning"
	"schooladmin/internal/tenant"
)

type Provisioner interface {
	Provision(ctx context.Context, tenantID int64, kind account.Kind, form url.Values) (*provisioning.Result, error)
}

// Overview is the platform dashboard.
type Overview struct {
	Tenants  []tenant.Tenant       `json:"tenants"`
	ByStatus map[tenant.Status]int `json:"byStatus"`
}

// TenantStats is one tenant's dashboard card.
type TenantStats struct {
	Tenant *tenant.Tenant `json:"tenant"`
	Stats  *account.Stats `json:"stats"`
}

// SelectionLists feed the pickers of the user form.
type SelectionLists struct {
	Classes  []account.Class          `json:"classes"`
	Parents  []account.Account        `json:"parents"`
	Students []account.StudentProfile `json:"students"`
}

// Service answers the read side of the admin panel and forwards writes to
// the provisioning workflow.
type Service struct {
	tenants     tenant.Repository
	resolver    tenant.Resolver
	provisioner Provisioner
	metrics     *metrics.Metrics
}

func NewService(tenants tenant.Repository, resolver tenant.Resolver, provisioner Provisioner, m *metrics.Metrics) *Service {
	return &Service{
		tenants:     tenants,
		resolver:    resolver,
		provisioner: provisioner,
		metrics:     m,
	}
}

func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	tenants, err := s.tenants.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	counts, err := s.tenants.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count tenants: %w", err)
	}
	return &Overview{Tenants: tenants, ByStatus: counts}, nil
}

func (s *Service) Stats(ctx context.Context, tenantID int64) (*TenantStats, error) {
	h, err := s.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	stats, err := account.NewRepository(h.DB, s.metrics).Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats for tenant %d: %w", tenantID, err)
	}
	return &TenantStats{Tenant: h.Tenant, Stats: stats}, nil
}

// Selections loads every picker list. The tenant is returned for display.
func (s *Service) Selections(ctx context.Context, tenantID int64) (*tenant.Tenant, *SelectionLists, error) {
	h, err := s.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	repo := account.NewRepository(h.DB, s.metrics)

	lists := &SelectionLists{}
	if lists.Classes, err = repo.ListClasses(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to list classes: %w", err)
	}
	if lists.Parents, err = repo.ListParents(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to list parents: %w", err)
	}
	if lists.Students, err = repo.ListStudents(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to list students: %w", err)
	}
	return h.Tenant, lists, nil
}

func (s *Service) Classes(ctx context.Context, tenantID int64) ([]account.Class, error) {
	repo, err := s.accounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	classes, err := repo.ListClasses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}
	return classes, nil
}

func (s *Service) Parents(ctx context.Context, tenantID int64) ([]account.Account, error) {
	repo, err := s.accounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	parents, err := repo.ListParents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list parents: %w", err)
	}
	return parents, nil
}

func (s *Service) Students(ctx context.Context, tenantID int64) ([]account.StudentProfile, error) {
	repo, err := s.accounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	students, err := repo.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	return students, nil
}

func (s *Service) accounts(ctx context.Context, tenantID int64) (account.Repository, error) {
	h, err := s.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return account.NewRepository(h.DB, s.metrics), nil
}

func (s *Service) Provision(ctx context.Context, tenantID int64, kind account.Kind, form url.Values) (*provisioning.Result, error) {
	return s.provisioner.Provision(ctx, tenantID, kind, form)
}
