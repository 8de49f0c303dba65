package tenant

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"schooladmin/internal/metrics"

	"github.com/uptrace/bun"
)

var ErrTenantNotFound = errors.New("tenant not found")

type Repository interface {
	Create(ctx context.Context, tenant *Tenant) (*Tenant, error)
	GetByID(ctx context.Context, id int64) (*Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

type repository struct {
	db      bun.IDB
	metrics *metrics.Metrics
}

func NewRepository(db bun.IDB, m *metrics.Metrics) Repository {
	return &repository{
		db:      db,
		metrics: m,
	}
}

func (r *repository) Create(ctx context.Context, tenant *Tenant) (*Tenant, error) {
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = time.Now().UTC()
	}

	start := time.Now()
	_, err := r.db.NewInsert().Model(tenant).Exec(ctx)

	r.metrics.DB().RecordQuery(ctx, "insert", "tenants", time.Since(start), err)

	if err != nil {
		return nil, err
	}
	return tenant, nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Tenant, error) {
	start := time.Now()
	tenant := new(Tenant)
	err := r.db.NewSelect().Model(tenant).Where("id = ?", id).Scan(ctx)

	r.metrics.DB().RecordQuery(ctx, "select", "tenants", time.Since(start), err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return tenant, nil
}

func (r *repository) List(ctx context.Context) ([]Tenant, error) {
	start := time.Now()
	var tenants []Tenant
	err := r.db.NewSelect().Model(&tenants).Order("name ASC").Scan(ctx)

	r.metrics.DB().RecordQuery(ctx, "select", "tenants", time.Since(start), err)

	return tenants, err
}

func (r *repository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	var rows []struct {
		Status Status `bun:"status"`
		Count  int    `bun:"count"`
	}

	start := time.Now()
	err := r.db.NewSelect().
		Model((*Tenant)(nil)).
		Column("status").
		ColumnExpr("count(*) AS count").
		Group("status").
		Scan(ctx, &rows)

	r.metrics.DB().RecordQuery(ctx, "select", "tenants", time.Since(start), err)

	if err != nil {
		return nil, err
	}

	counts := make(map[Status]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
