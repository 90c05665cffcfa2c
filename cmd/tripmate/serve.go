package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tripmate-ai/tripmate/pkg/cache/sqlite"
	"github.com/tripmate-ai/tripmate/pkg/gateway"
	"github.com/tripmate-ai/tripmate/pkg/journal"
	"github.com/tripmate-ai/tripmate/pkg/upstream"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		listen     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the itinerary gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			llm, err := upstream.New(cfg.Providers, cfg.Gateway.UpstreamTimeout, log)
			if err != nil {
				return fmt.Errorf("init upstream: %w", err)
			}

			var cache *sqlite.PromptCache
			if cfg.Gateway.PromptCache {
				cache, err = sqlite.NewPromptCache(cfg.DBPath, cfg.Gateway.PromptCacheTTL)
				if err != nil {
					return fmt.Errorf("init prompt cache: %w", err)
				}
				defer func() { _ = cache.Close() }()
			}

			var j *journal.Journal
			if cfg.Journal.Enabled {
				j, err = journal.New(cfg.DBPath, cfg.Journal)
				if err != nil {
					return fmt.Errorf("init journal: %w", err)
				}
				defer func() { _ = j.Close() }()
			}

			srv := gateway.New(cfg, llm, cache, j, log)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info("starting tripmate gateway", "config", configPath, "providers", len(cfg.Providers))
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "tripmate.yaml", "path to config file")
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	return cmd
}
