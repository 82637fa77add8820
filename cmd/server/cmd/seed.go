package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/civicsquare/server/internal/storage/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the role and permission reference rows",
	Long: `Write the named role rows (Residents, Government Authority) and their
permission sets. Safe to run repeatedly; existing rows are left alone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer pool.Close()

		if err := postgres.SeedRoles(ctx, pool); err != nil {
			return fmt.Errorf("seed roles: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "roles seeded")
		return nil
	},
}
