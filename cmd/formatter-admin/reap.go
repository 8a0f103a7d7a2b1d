package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/spf13/cobra"

	"github.com/ourresearch/openalex-formatter/internal/data"
	"github.com/ourresearch/openalex-formatter/internal/service"
)

var reapFlags struct {
	timeout time.Duration
}

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Run one reaper sweep",
	Long: `Fail running exports whose progress stalled longer than REAPER_RUNNING_MAX_AGE,
and submitted exports older than REAPER_SUBMITTED_MAX_AGE when that is set.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDB(cmd.Context(), reapFlags.timeout, func(ctx context.Context, db *sql.DB) error {
			reaper, err := service.NewReaperService(service.ReaperServiceOptions{
				Repo:   data.NewExportRepo(db, data.RepoConfig{Logger: admin.Logger}),
				Config: admin.Config.Reaper,
				Logger: admin.Logger,
			})
			if err != nil {
				return err
			}
			return reaper.RunOnce(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(reapCmd)
	reapCmd.Flags().DurationVar(&reapFlags.timeout, "timeout", 2*time.Minute, "maximum time for the sweep")
}
