package provisioning_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"schooladmin/internal/account"
	"schooladmin/internal/intake"
	"schooladmin/internal/logger"
	"schooladmin/internal/metrics"
	"schooladmin/internal/provisioning"
	"schooladmin/internal/tenant"
	"schooladmin/testing/testdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func TestProvision_Postgres(t *testing.T) {
	ctx := context.Background()
	pg := testdb.SetupSharedPostgres(t)
	defer pg.Cleanup(t)

	pg.RunMigrations(t, tenant.PlatformModels()...)
	require.NoError(t, account.Migrate(ctx, pg.DB))

	tenants := tenant.NewRepository(pg.DB, metrics.NewMock())
	school, err := tenants.Create(ctx, &tenant.Tenant{Name: "Riverside", Slug: "riverside", Status: tenant.StatusActive, DatabaseName: "same"})
	require.NoError(t, err)

	opener := func(ctx context.Context, locator string) (*bun.DB, error) { return pg.DB, nil }
	registry := tenant.NewRegistry(tenants, opener, time.Second, logger.Discard(), metrics.NewMock())
	notifier := &fakeNotifier{}
	svc := provisioning.NewService(registry, intake.New(nil), notifier, logger.Discard(), metrics.NewMock())

	reset := func(t *testing.T) {
		testdb.CleanupTables(t, pg.DB, "student_parents", "students", "teachers", "user_roles", "users", "classes")
		_, err := pg.DB.NewInsert().Model(&[]account.Class{
			{Name: "Grade 1", IsActive: true},
			{Name: "Grade 2", IsActive: true},
			{Name: "Grade 3", IsActive: true},
		}).Exec(ctx)
		require.NoError(t, err)
		notifier.notices = nil
	}

	count := func(t *testing.T, model interface{}) int {
		n, err := pg.DB.NewSelect().Model(model).Count(ctx)
		require.NoError(t, err)
		return n
	}

	student := func() url.Values {
		return url.Values{
			"name":             {"Jane Doe"},
			"first_name":       {"Jane"},
			"last_name":        {"Doe"},
			"admission_number": {"STU1"},
			"date_of_birth":    {"2010-01-01"},
			"class_id":         {"3"},
			"parent_name":      {"John Doe"},
			"parent_email":     {"john@example.com"},
		}
	}

	t.Run("student with parent commits", func(t *testing.T) {
		reset(t)

		res, err := svc.Provision(ctx, school.ID, account.KindStudent, student())
		require.NoError(t, err)
		assert.Equal(t, provisioning.Committed, res.Outcome)
		assert.Len(t, res.Credentials, 2)
		assert.Equal(t, 2, count(t, (*account.Account)(nil)))
		assert.Equal(t, 2, count(t, (*account.RoleGrant)(nil)))
		assert.Equal(t, 1, count(t, (*account.GuardianLink)(nil)))
		assert.Len(t, notifier.notices, 1)
	})

	t.Run("guardian upsert keeps one row", func(t *testing.T) {
		reset(t)
		res, err := svc.Provision(ctx, school.ID, account.KindStudent, student())
		require.NoError(t, err)

		var link account.GuardianLink
		require.NoError(t, pg.DB.NewSelect().Model(&link).Scan(ctx))

		repo := account.NewRepository(pg.DB, metrics.NewMock())
		for i := 0; i < 2; i++ {
			require.NoError(t, repo.UpsertGuardianLink(ctx, &account.GuardianLink{
				ParentID:     link.ParentID,
				StudentID:    link.StudentID,
				Relationship: "guardian",
				CanPickup:    true,
			}))
		}

		var links []account.GuardianLink
		require.NoError(t, pg.DB.NewSelect().Model(&links).Scan(ctx))
		require.Len(t, links, 1)
		assert.Equal(t, "guardian", links[0].Relationship)
		assert.True(t, links[0].CanPickup)
		assert.NotZero(t, res.AccountID)
	})

	t.Run("duplicate admission rolls back", func(t *testing.T) {
		reset(t)
		_, err := svc.Provision(ctx, school.ID, account.KindStudent, student())
		require.NoError(t, err)

		res, err := svc.Provision(ctx, school.ID, account.KindStudent, student())
		var verr *provisioning.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, provisioning.RolledBack, res.Outcome)
		assert.Equal(t, 2, count(t, (*account.Account)(nil)), "second request left nothing behind")
	})

	t.Run("role grant failure does not abort the transaction", func(t *testing.T) {
		reset(t)
		_, err := pg.DB.NewDropTable().Model((*account.RoleGrant)(nil)).Exec(ctx)
		require.NoError(t, err)
		defer func() {
			_, err := pg.DB.NewCreateTable().Model((*account.RoleGrant)(nil)).IfNotExists().Exec(ctx)
			require.NoError(t, err)
		}()

		res, err := svc.Provision(ctx, school.ID, account.KindStudent, student())
		require.NoError(t, err)
		assert.Equal(t, provisioning.PartialWarning, res.Outcome)
		assert.Len(t, res.Warnings, 2)
		assert.Equal(t, 2, count(t, (*account.Account)(nil)))
		assert.Equal(t, 1, count(t, (*account.StudentProfile)(nil)))
		assert.Equal(t, 1, count(t, (*account.GuardianLink)(nil)))
	})
}
