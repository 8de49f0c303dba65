package main

import (
	"fmt"
	"strconv"

	"schooladmin/internal/app"
	"schooladmin/internal/db"
	"schooladmin/internal/metrics"
	"schooladmin/internal/tenant"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables",
	}
	cmd.AddCommand(migratePlatformCmd(), migrateTenantCmd())
	return cmd
}

func migratePlatformCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "platform",
		Short: "Create the tenant registry tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			platform, err := db.New(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close(platform)

			if err := db.RunMigrations(cmd.Context(), platform, tenant.PlatformModels()...); err != nil {
				return err
			}
			logger.Info("platform store migrated")
			return nil
		},
	}
}

func migrateTenantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tenant <tenant-id>",
		Short: "Create the schema of one tenant store and seed its roles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid tenant id %q", args[0])
			}

			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			platform, err := db.New(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close(platform)

			m, err := metrics.New(app.ServiceName, logger)
			if err != nil {
				return err
			}
			return app.MigrateTenant(cmd.Context(), cfg, platform, tenantID, logger, m)
		},
	}
}
