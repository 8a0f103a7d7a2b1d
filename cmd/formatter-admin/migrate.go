package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ourresearch/openalex-formatter/internal/bootstrap"
	"github.com/ourresearch/openalex-formatter/internal/migrate"
)

const defaultMigrationTimeout = 5 * time.Minute

var migrateFlags struct {
	timeout time.Duration
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDB(cmd.Context(), migrateFlags.timeout, func(ctx context.Context, db *sql.DB) error {
			return bootstrap.RunMigrations(ctx, db, admin.Logger)
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List embedded migrations and whether each is applied",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDB(cmd.Context(), migrateFlags.timeout, func(ctx context.Context, db *sql.DB) error {
			statuses, err := migrate.List(ctx, db)
			if err != nil {
				return fmt.Errorf("list migrations: %w", err)
			}
			return printMigrations(cmd.OutOrStdout(), statuses)
		})
	},
}

func printMigrations(w io.Writer, statuses []migrate.Status) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writef(tw, "VERSION\tAPPLIED\n"); err != nil {
		return err
	}
	for _, s := range statuses {
		if err := writef(tw, "%s\t%t\n", s.Version, s.Applied); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	migrateCmd.PersistentFlags().DurationVar(&migrateFlags.timeout, "timeout", defaultMigrationTimeout, "maximum time to wait for migrations")
}
