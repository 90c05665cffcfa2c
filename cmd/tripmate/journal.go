package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tripmate-ai/tripmate/pkg/journal"
	"github.com/tripmate-ai/tripmate/pkg/models"
)

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Query and manage the gateway reply journal",
	}

	cmd.AddCommand(
		newJournalListCmd(),
		newJournalStatsCmd(),
		newJournalCleanupCmd(),
	)
	return cmd
}

func newJournalListCmd() *cobra.Command {
	var (
		configPath string
		shape      string
		endpoint   string
		since      string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, cleanup, err := openJournal(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := models.JournalQueryOpts{
				Shape:    models.Shape(shape),
				Endpoint: endpoint,
				Limit:    limit,
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			entries, err := j.Query(context.Background(), opts)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatJournalEntries(entries, time.Now()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "tripmate.yaml", "path to config file")
	cmd.Flags().StringVar(&shape, "shape", "", "filter by reply shape (e.g. FreeformDayText)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "filter by endpoint (/api/ask or /api/itinerary)")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")

	return cmd
}

func newJournalStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show reply counts by shape and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, cleanup, err := openJournal(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := j.Stats(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatJournalStats(stats))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "tripmate.yaml", "path to config file")
	return cmd
}

func newJournalCleanupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete journal entries older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, cleanup, err := openJournal(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := j.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d journal entries.\n", deleted)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "tripmate.yaml", "path to config file")
	return cmd
}

func openJournal(configPath string) (*journal.Journal, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	j, err := journal.New(cfg.DBPath, cfg.Journal)
	if err != nil {
		return nil, nil, fmt.Errorf("open journal db: %w", err)
	}
	return j, func() { _ = j.Close() }, nil
}

func formatJournalEntries(entries []models.JournalEntry, now time.Time) string {
	if len(entries) == 0 {
		return "No journal entries found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s %-15s %-18s %6s %9s %6s %8s %-16s\n",
		"REQUEST ID", "ENDPOINT", "SHAPE", "STATUS", "DAYS", "CACHE", "LATENCY", "WHEN")
	b.WriteString(strings.Repeat("-", 124) + "\n")
	for _, e := range entries {
		days := fmt.Sprintf("%d", e.DayCount)
		if e.ExpectedDays > 0 {
			days = fmt.Sprintf("%d/%d", e.DayCount, e.ExpectedDays)
		}
		hit := "miss"
		if e.CacheHit {
			hit = "hit"
		}
		fmt.Fprintf(&b, "%-36s %-15s %-18s %6d %9s %6s %6dms %-16s\n",
			e.RequestID, e.Endpoint, e.Shape, e.StatusCode, days, hit,
			e.LatencyMs, humanize.RelTime(e.CreatedAt, now, "ago", "from now"))
	}
	return b.String()
}

func formatJournalStats(stats []models.JournalStat) string {
	if len(stats) == 0 {
		return "No journal stats found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-12s %8s\n", "SHAPE", "DAY", "COUNT")
	b.WriteString(strings.Repeat("-", 42) + "\n")
	for _, s := range stats {
		shape := string(s.Shape)
		if shape == "" {
			shape = "(failed)"
		}
		fmt.Fprintf(&b, "%-20s %-12s %8d\n", shape, s.Day, s.Count)
	}
	return b.String()
}
