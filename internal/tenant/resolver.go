package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"schooladmin/internal/config"
	"schooladmin/internal/db"
	"schooladmin/internal/metrics"

	"github.com/uptrace/bun"
)

var (
	ErrNotFound         = errors.New("tenant not found")
	ErrSuspended        = errors.New("tenant is suspended")
	ErrStoreUnavailable = errors.New("tenant store unavailable")
)

// Handle is a store scoped to exactly one tenant. It must not be used for
// any other tenant.
type Handle struct {
	Tenant *Tenant
	DB     *bun.DB
}

type Resolver interface {
	Resolve(ctx context.Context, tenantID int64) (*Handle, error)
}

// Opener creates a pool for the store named by locator.
type Opener func(ctx context.Context, locator string) (*bun.DB, error)

// PostgresOpener opens tenant stores on the shared tenant database server.
func PostgresOpener(cfg config.TenantDatabaseConfig) Opener {
	return func(ctx context.Context, locator string) (*bun.DB, error) {
		return db.OpenTenant(cfg, locator), nil
	}
}

// retireGrace is how long a dropped pool stays open for requests that
// already hold it.
const retireGrace = 30 * time.Second

type pool struct {
	locator string
	db      *bun.DB
}

// Registry resolves tenants to cached per-tenant pools and checks liveness
// on every call.
type Registry struct {
	repo        Repository
	open        Opener
	pingTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics

	mu      sync.Mutex
	pools   map[int64]*pool
	retired map[*bun.DB]*retiredPool
}

type retiredPool struct {
	tenantID int64
	timer    *time.Timer
}

func NewRegistry(repo Repository, open Opener, pingTimeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Registry {
	if pingTimeout <= 0 {
		pingTimeout = 3 * time.Second
	}
	return &Registry{
		repo:        repo,
		open:        open,
		pingTimeout: pingTimeout,
		logger:      logger,
		metrics:     m,
		pools:       make(map[int64]*pool),
		retired:     make(map[*bun.DB]*retiredPool),
	}
}

func (r *Registry) Resolve(ctx context.Context, tenantID int64) (*Handle, error) {
	t, err := r.repo.GetByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			r.metrics.RecordTenantResolveFailure(ctx, "not_found")
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load tenant %d: %w", tenantID, err)
	}

	if t.Status == StatusSuspended {
		r.metrics.RecordTenantResolveFailure(ctx, "suspended")
		return nil, ErrSuspended
	}
	if t.DatabaseName == "" {
		r.metrics.RecordTenantResolveFailure(ctx, "not_provisioned")
		r.logger.WarnContext(ctx, "tenant has no store", "tenant_id", t.ID)
		return nil, fmt.Errorf("%w: tenant %d has no database", ErrStoreUnavailable, t.ID)
	}

	p, err := r.acquire(ctx, t)
	if err != nil {
		r.metrics.RecordTenantResolveFailure(ctx, "open_failed")
		r.logger.ErrorContext(ctx, "failed to open tenant store", "tenant_id", t.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, r.pingTimeout)
	defer cancel()
	if err := p.db.PingContext(pingCtx); err != nil {
		r.evict(t.ID, p)
		r.metrics.RecordTenantResolveFailure(ctx, "unreachable")
		r.logger.ErrorContext(ctx, "tenant store unreachable", "tenant_id", t.ID, "database", t.DatabaseName, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &Handle{Tenant: t, DB: p.db}, nil
}

func (r *Registry) acquire(ctx context.Context, t *Tenant) (*pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pools[t.ID]; ok {
		if p.locator == t.DatabaseName {
			return p, nil
		}
		// Store moved; drop the stale pool.
		delete(r.pools, t.ID)
		r.retireLocked(t.ID, p)
	}

	conn, err := r.open(ctx, t.DatabaseName)
	if err != nil {
		return nil, err
	}

	p := &pool{locator: t.DatabaseName, db: conn}
	r.pools[t.ID] = p
	r.logger.InfoContext(ctx, "opened tenant store", "tenant_id", t.ID, "database", t.DatabaseName)
	return p, nil
}

func (r *Registry) evict(tenantID int64, p *pool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.pools[tenantID]; ok && current == p {
		delete(r.pools, tenantID)
		r.retireLocked(tenantID, p)
	}
}

// retireLocked closes p after retireGrace. Handles resolved before the pool
// was dropped keep working until then. r.mu must be held.
func (r *Registry) retireLocked(tenantID int64, p *pool) {
	if _, ok := r.retired[p.db]; ok {
		return
	}
	rp := &retiredPool{tenantID: tenantID}
	rp.timer = time.AfterFunc(retireGrace, func() {
		r.mu.Lock()
		pending := r.retired[p.db] == rp
		if pending {
			delete(r.retired, p.db)
		}
		r.mu.Unlock()

		if pending {
			r.closePool(tenantID, p.db)
		}
	})
	r.retired[p.db] = rp
}

func (r *Registry) closePool(tenantID int64, conn *bun.DB) {
	if err := conn.Close(); err != nil {
		r.logger.Warn("failed to close tenant store", "tenant_id", tenantID, "error", err)
	}
}

// Close releases every cached and retired tenant pool.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, p := range r.pools {
		r.closePool(id, p.db)
		delete(r.pools, id)
	}
	for conn, rp := range r.retired {
		rp.timer.Stop()
		r.closePool(rp.tenantID, conn)
		delete(r.retired, conn)
	}
}
