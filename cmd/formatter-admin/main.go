package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ourresearch/openalex-formatter/config"
	"github.com/ourresearch/openalex-formatter/internal/bootstrap"
)

// adminContext carries loaded configuration into subcommands.
type adminContext struct {
	Logger *slog.Logger
	Config config.AppConfig
}

var admin adminContext

var rootCmd = &cobra.Command{
	Use:   "formatter-admin",
	Short: "Operational commands for the export formatter",
	Long: `Inspect and maintain the export formatter database.

Examples:
  # Apply schema migrations
  formatter-admin migrate

  # Show one export
  formatter-admin export get works-csv-2b1c0e

  # Fail stuck exports now instead of waiting for the reaper schedule
  formatter-admin reap`,
	SilenceUsage: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		cfg, err := bootstrap.LoadConfig()
		if err != nil {
			return err
		}
		admin = adminContext{
			Logger: bootstrap.InitLogger(cfg.Observability.Logging),
			Config: cfg,
		}
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

// withDB opens the database for the duration of fn under the given timeout.
func withDB(ctx context.Context, timeout time.Duration, fn func(context.Context, *sql.DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{
		DBConfig: admin.Config.Postgres,
		Logger:   admin.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			admin.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	return fn(ctx, db)
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
