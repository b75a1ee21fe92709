package main

import (
	"fmt"

	"github.com/dropDatabas3/hellodoc/docstore"
	"github.com/dropDatabas3/hellodoc/docstore/postgres"
	"github.com/spf13/cobra"
)

func migrateCmd(c *cli) *cobra.Command {
	var statusOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones del driver postgres (goose)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Driver != "postgres" {
				return fmt.Errorf("migrate: store.driver es %q, sólo postgres tiene migraciones", cfg.Store.Driver)
			}
			s, err := postgres.Open(cmd.Context(), docstore.Config{
				DSN:      cfg.Store.DSN,
				MaxConns: 2,
				Table:    cfg.Store.Postgres.Table,
				Migrate:  !statusOnly,
			})
			if err != nil {
				return err
			}
			defer s.Close()
			v, err := postgres.MigrationStatus(cmd.Context(), s.Pool())
			if err != nil {
				return err
			}
			return c.print(map[string]any{"version": v, "applied": !statusOnly})
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "Sólo muestra la versión aplicada")
	return cmd
}
