package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tripmate-ai/tripmate/pkg/cache/sqlite"
	"github.com/tripmate-ai/tripmate/pkg/journal"
	"github.com/tripmate-ai/tripmate/pkg/mcp"
	"github.com/tripmate-ai/tripmate/pkg/pipeline"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the cached itinerary and reply journal as an MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			store, closeStore, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()

			opts := []mcp.Option{mcp.WithLogger(log)}
			if cfg.Journal.Enabled {
				j, err := journal.New(cfg.DBPath, cfg.Journal)
				if err != nil {
					return err
				}
				defer func() { _ = j.Close() }()
				opts = append(opts, mcp.WithJournal(j))
			}
			if cfg.Gateway.PromptCache {
				pc, err := sqlite.NewPromptCache(cfg.DBPath, cfg.Gateway.PromptCacheTTL)
				if err != nil {
					return err
				}
				defer func() { _ = pc.Close() }()
				opts = append(opts, mcp.WithPromptCache(pc))
			}

			p := pipeline.New(nil, store, pipeline.WithLogger(log), pipeline.WithParserOptions(parserOptions(cfg)))
			srv := mcp.New(p, version, opts...)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info("mcp server started", "db", cfg.DBPath)
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "tripmate.yaml", "path to config file")
	return cmd
}
