package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"schooladmin/internal/app"
	"schooladmin/internal/db"
	"schooladmin/internal/metrics"
	"schooladmin/internal/tenant"

	"github.com/spf13/cobra"
)

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage registered schools",
	}
	cmd.AddCommand(tenantRegisterCmd(), tenantListCmd())
	return cmd
}

func tenantRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a school and its database",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			slug, _ := cmd.Flags().GetString("slug")
			database, _ := cmd.Flags().GetString("database")
			status, _ := cmd.Flags().GetString("status")

			if !tenant.Status(status).Valid() {
				return fmt.Errorf("invalid status %q", status)
			}
			if database == "" {
				database = "school_" + slug
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

			t, err := tenant.NewRepository(platform, m).Create(cmd.Context(), &tenant.Tenant{
				Name:         name,
				Slug:         slug,
				Status:       tenant.Status(status),
				DatabaseName: database,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Registered %s (id %d, database %s)\n", t.Name, t.ID, t.DatabaseName)
			fmt.Printf("Run `schooladmin migrate tenant %d` to create its schema.\n", t.ID)
			return nil
		},
	}

	cmd.Flags().String("name", "", "School name")
	cmd.Flags().String("slug", "", "URL slug used in the parent portal address")
	cmd.Flags().String("database", "", "Database name (default school_<slug>)")
	cmd.Flags().String("status", string(tenant.StatusActive), "active, trial, suspended or pending")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("slug")
	return cmd
}

func tenantListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered schools",
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

			m, err := metrics.New(app.ServiceName, logger)
			if err != nil {
				return err
			}

			tenants, err := tenant.NewRepository(platform, m).List(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSLUG\tSTATUS\tDATABASE")
			for _, t := range tenants {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Slug, t.Status, t.DatabaseName)
			}
			return w.Flush()
		},
	}
}
