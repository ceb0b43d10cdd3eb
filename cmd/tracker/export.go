package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/antoniostano/tracker/internal/app"
	"github.com/antoniostano/tracker/internal/config"
	"github.com/antoniostano/tracker/internal/tasks"
)

func exportCmd() *cobra.Command {
	var (
		dataFile    string
		databaseURL string
		format      string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the stored schedule in priority order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, "", dataFile, databaseURL)
			if err != nil {
				return err
			}
			return runExport(cmd.Context(), cmd.OutOrStdout(), cfg, format)
		},
	}
	cmd.Flags().StringVar(&dataFile, "data-file", "", "CSV data file (overrides TRACKER_DATA_FILE)")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "postgres URL (overrides DATABASE_URL)")
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "output format: csv or json")
	return cmd
}

type exportRow struct {
	ID        int    `json:"id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	StartTime string `json:"start_time"`
	Duration  int64  `json:"duration"`
	EndTime   string `json:"end_time"`
	EpicID    int    `json:"epic_id,omitempty"`
}

func runExport(ctx context.Context, out io.Writer, cfg config.Config, format string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "csv" && format != "json" {
		return fmt.Errorf("unknown format %q (expected csv|json)", format)
	}

	manager, store, _, err := app.OpenManager(ctx, cfg, nil)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	list := manager.PrioritizedTasks()
	if format == "csv" {
		return tasks.WriteRows(out, list)
	}

	rows := make([]exportRow, 0, len(list))
	for _, t := range list {
		row := exportRow{
			ID:        t.ID,
			Type:      string(t.Kind),
			Name:      t.Name,
			Status:    string(t.Status),
			StartTime: tasks.FormatTime(t.StartTime),
			Duration:  int64(t.Duration / time.Minute),
			EpicID:    t.EpicID,
		}
		if end, err := t.EndTime(); err == nil {
			row.EndTime = tasks.FormatTime(end)
		}
		rows = append(rows, row)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
