package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/expeditorhq/expeditor/config"
	"github.com/expeditorhq/expeditor/core/adjustlog"
	"github.com/expeditorhq/expeditor/core/fairness"
	"github.com/expeditorhq/expeditor/pkg/export"
)

var (
	fairnessQueue  string
	fairnessSince  time.Duration
	fairnessFormat string
)

var fairnessCmd = &cobra.Command{
	Use:   "fairness",
	Short: "Summarize queue fairness from the adjustment log",
	RunE:  runFairness,
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List adjustment log entries",
	RunE:  runLogs,
}

func init() {
	fairnessCmd.Flags().StringVar(&fairnessQueue, "queue", "", "queue identifier")
	fairnessCmd.Flags().DurationVar(&fairnessSince, "since", time.Hour, "period to summarize")
	fairnessCmd.Flags().StringVar(&fairnessFormat, "format", "json", "output format: json or csv")
	logsCmd.Flags().StringVar(&fairnessQueue, "queue", "", "queue identifier")
	logsCmd.Flags().DurationVar(&fairnessSince, "since", time.Hour, "period to list")
	logsCmd.Flags().StringVar(&fairnessFormat, "format", "text", "output format: text, json or csv")
	rootCmd.AddCommand(fairnessCmd)
	rootCmd.AddCommand(logsCmd)
}

func openStore() (adjustlog.Store, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	switch cfg.AdjustmentLog.Backend {
	case "sqlite":
		return adjustlog.NewSQLiteStore(cfg.AdjustmentLog.Path)
	case "jsonl":
		return adjustlog.NewJSONLStore(cfg.AdjustmentLog.Path)
	default:
		return nil, fmt.Errorf("adjustment log backend %q holds no history", cfg.AdjustmentLog.Backend)
	}
}

func runFairness(cmd *cobra.Command, args []string) error {
	if fairnessQueue == "" {
		return fmt.Errorf("--queue is required")
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "store close: %v\n", cerr)
		}
	}()

	collector := fairness.NewCollector(store, nil, nil, nil, nil, nil)
	end := time.Now()
	summary, err := collector.Collect(context.Background(), fairnessQueue, end.Add(-fairnessSince), end)
	if err != nil {
		return err
	}
	switch fairnessFormat {
	case "csv":
		return export.WriteSummaryCSV(cmd.OutOrStdout(), summary)
	case "json":
		return export.WriteSummaryJSON(cmd.OutOrStdout(), summary)
	default:
		return fmt.Errorf("unknown format %q", fairnessFormat)
	}
}

func runLogs(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "store close: %v\n", cerr)
		}
	}()

	end := time.Now()
	entries, err := store.Query(context.Background(), adjustlog.Query{
		QueueID: fairnessQueue,
		Start:   end.Add(-fairnessSince),
		End:     end,
	})
	if err != nil {
		return err
	}
	switch fairnessFormat {
	case "csv":
		return export.WriteAdjustmentsCSV(cmd.OutOrStdout(), entries)
	case "json":
		return export.WriteAdjustmentsJSON(cmd.OutOrStdout(), entries)
	case "text":
		for _, e := range entries {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %-12s %s pos %d -> %d score %.2f -> %.2f (%s)\n",
				e.Timestamp.Format(time.RFC3339), e.Reason, e.ItemID,
				e.OldPosition, e.NewPosition, e.OldScore, e.NewScore, e.Actor)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", fairnessFormat)
	}
}
