package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tripmate-ai/tripmate/pkg/models"
	"github.com/tripmate-ai/tripmate/pkg/pipeline"
	"github.com/tripmate-ai/tripmate/pkg/transport"
)

func newAskCmd() *cobra.Command {
	var (
		configPath string
		days       int
		stream     bool
		plain      bool
	)

	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Ask for an itinerary and cache the result",
		Args:  cobra.MinimumNArgs(1),
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

			endpoint := cfg.Client.Endpoint
			if stream {
				endpoint = cfg.Client.StreamEndpoint
			}
			p := pipeline.New(
				transport.New(endpoint, cfg.Client.Timeout),
				store,
				pipeline.WithLogger(log),
				pipeline.WithParserOptions(parserOptions(cfg)),
			)

			out := cmd.OutOrStdout()
			printed := 0
			p.Subscribe(pipeline.Handlers{
				OnPartialUpdate: func(text string) {
					// The partial is the whole reply so far; print only what is new.
					fmt.Fprint(out, text[printed:])
					printed = len(text)
				},
				OnCompletenessWarning: func(w models.CompletenessWarning) {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: only %d of %d requested days came back\n", w.Returned, w.Expected)
				},
			})

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := p.Submit(ctx, strings.Join(args, " "), days)
			if printed > 0 {
				fmt.Fprintln(out)
			}
			if err != nil {
				var terr *transport.Error
				if errors.As(err, &terr) && terr.Partial != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "reply interrupted after %d bytes\n", len(terr.Partial))
				}
				return err
			}
			if res.Empty {
				fmt.Fprintln(out, "The assistant returned an empty reply.")
				return nil
			}
			return render(out, res.Itinerary, plain || !isTerminal(os.Stdout))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "tripmate.yaml", "path to config file")
	cmd.Flags().IntVarP(&days, "days", "d", 0, "expected number of days (0 for no expectation)")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream the reply as text instead of requesting JSON")
	cmd.Flags().BoolVar(&plain, "plain", false, "print markdown without terminal styling")
	return cmd
}
