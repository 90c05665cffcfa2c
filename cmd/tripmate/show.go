package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tripmate-ai/tripmate/pkg/logger"
	"github.com/tripmate-ai/tripmate/pkg/pipeline"
)

func newShowCmd() *cobra.Command {
	var (
		configPath string
		plain      bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Render the cached itinerary",
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

			p := pipeline.New(nil, store, pipeline.WithParserOptions(parserOptions(cfg)))
			it, ok := p.Current(context.Background())
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No itinerary cached.")
				return nil
			}
			return render(cmd.OutOrStdout(), it, plain || !isTerminal(os.Stdout))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "tripmate.yaml", "path to config file")
	cmd.Flags().BoolVar(&plain, "plain", false, "print markdown without terminal styling")
	return cmd
}
