package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ourresearch/openalex-formatter/internal/data"
	"github.com/ourresearch/openalex-formatter/internal/domain/model"
)

var exportFlags struct {
	timeout time.Duration
	rawJSON bool
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Inspect exports",
}

var exportGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), exportFlags.timeout, func(ctx context.Context, db *sql.DB) error {
			exp, err := data.NewExportRepo(db, data.RepoConfig{Logger: admin.Logger}).GetByID(ctx, args[0])
			if err != nil {
				return err
			}
			if exportFlags.rawJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(exp)
			}
			return printExport(cmd.OutOrStdout(), exp)
		})
	},
}

var exportStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count exports by status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDB(cmd.Context(), exportFlags.timeout, func(ctx context.Context, db *sql.DB) error {
			stats, err := data.NewExportRepo(db, data.RepoConfig{Logger: admin.Logger}).Stats(ctx)
			if err != nil {
				return err
			}
			return printStats(cmd.OutOrStdout(), stats)
		})
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportGetCmd, exportStatsCmd)

	exportCmd.PersistentFlags().DurationVar(&exportFlags.timeout, "timeout", 30*time.Second, "query timeout")
	exportGetCmd.Flags().BoolVar(&exportFlags.rawJSON, "json", false, "print the raw export record as JSON")
}

func printExport(w io.Writer, exp *model.Export) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"ID", exp.ID},
		{"Status", string(exp.Status)},
		{"Format", string(exp.Format)},
		{"Progress", fmt.Sprintf("%.1f%%", exp.Progress*100)},
		{"Query", exp.QueryURL},
		{"Submitted", exp.Submitted.UTC().Format(time.RFC3339)},
		{"Updated", exp.ProgressUpdated.UTC().Format(time.RFC3339)},
	}
	if exp.ResultURL != nil {
		rows = append(rows, [2]string{"Result", *exp.ResultURL})
	}
	if exp.LastError != nil {
		rows = append(rows, [2]string{"Error", *exp.LastError})
	}
	for _, row := range rows {
		if err := writef(tw, "%s:\t%s\n", row[0], row[1]); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printStats(w io.Writer, stats *model.ExportStats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "STATUS\tCOUNT\n"); err != nil {
		return err
	}
	for _, row := range []struct {
		status model.ExportStatus
		count  int
	}{
		{model.ExportStatusSubmitted, stats.Submitted},
		{model.ExportStatusRunning, stats.Running},
		{model.ExportStatusFinished, stats.Finished},
		{model.ExportStatusFailed, stats.Failed},
	} {
		if err := writef(tw, "%s\t%d\n", row.status, row.count); err != nil {
			return err
		}
	}
	return tw.Flush()
}
