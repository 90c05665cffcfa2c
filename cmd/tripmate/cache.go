package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tripmate-ai/tripmate/pkg/cache/sqlite"
	"github.com/tripmate-ai/tripmate/pkg/logger"
	"github.com/tripmate-ai/tripmate/pkg/models"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the itinerary cache",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the cached itinerary entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cfg, logger.NewNop())
			if err != nil {
				return err
			}
			defer closeStore()

			entry, ok := store.Read(context.Background())
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No itinerary cached.")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), formatCacheEntry(entry, store.TTL(), time.Now()))
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the cached itinerary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cfg, logger.NewNop())
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.Clear(context.Background()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Itinerary cache cleared.")
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "tripmate.yaml", "path to config file")
	cmd.AddCommand(statusCmd, clearCmd, newPromptCacheCmd(&configPath))
	return cmd
}

func newPromptCacheCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Manage the gateway prompt cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show prompt cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			c, err := sqlite.NewPromptCache(cfg.DBPath, cfg.Gateway.PromptCacheTTL)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			stats, err := c.Stats()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Entries: %s\n", humanize.Comma(stats.Entries))
			return nil
		},
	}

	var expiredOnly bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear prompt cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			c, err := sqlite.NewPromptCache(cfg.DBPath, cfg.Gateway.PromptCacheTTL)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			if err := c.Clear(expiredOnly); err != nil {
				return err
			}
			if expiredOnly {
				fmt.Fprintln(cmd.OutOrStdout(), "Expired prompt cache entries cleared.")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "All prompt cache entries cleared.")
			}
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only clear expired entries")

	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}

func formatCacheEntry(entry models.CacheEntry, ttl time.Duration, now time.Time) string {
	expires := entry.WrittenAt.Add(ttl)
	s := fmt.Sprintf("Written:  %s (%s)\nExpires:  %s\n",
		entry.WrittenAt.Local().Format("2006-01-02 15:04:05"),
		humanize.RelTime(entry.WrittenAt, now, "ago", "from now"),
		humanize.RelTime(expires, now, "ago", "from now"),
	)
	if it := entry.Itinerary; it != nil {
		s += fmt.Sprintf("Shape:    %s\nDays:     %d\n", it.SourceShape, len(it.Days))
	} else {
		s += "Itinerary: none\n"
	}
	if entry.RawFallbackText != nil {
		s += fmt.Sprintf("Raw text: %s\n", humanize.Bytes(uint64(len(*entry.RawFallbackText))))
	}
	return s
}
