package account

import (
	"context"
	"fmt"

	"schooladmin/internal/db"

	"github.com/uptrace/bun"
)

var defaultRoles = []Role{
	{ID: RoleAdmin, Name: string(KindAdmin)},
	{ID: RoleTeacher, Name: string(KindTeacher)},
	{ID: RoleStudent, Name: string(KindStudent)},
	{ID: RoleParent, Name: string(KindParent)},
}

// Migrate creates the tenant schema and seeds the fixed roles. It is safe to
// run repeatedly.
func Migrate(ctx context.Context, conn bun.IDB) error {
	if err := db.RunMigrations(ctx, conn, TenantModels()...); err != nil {
		return err
	}

	roles := make([]Role, len(defaultRoles))
	copy(roles, defaultRoles)
	_, err := conn.NewInsert().
		Model(&roles).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed roles: %w", err)
	}
	return nil
}
