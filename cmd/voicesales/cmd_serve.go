package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server and the campaign pump",
	Long: `Start the long-running agent process: the webhook server answers the
telephony provider's callbacks while the pump admits CRM leads, honors
retry tickets and calling hours, and places calls.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.initRecords(ctx); err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.server.Start(ctx)
	}()
	pumpErr := make(chan error, 1)
	go func() {
		pumpErr <- a.engine.Pump(ctx)
	}()

	select {
	case err := <-serverErr:
		return err
	case err := <-pumpErr:
		if ctx.Err() != nil {
			break
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	a.engine.StopAll(context.Background(), true)
	return <-serverErr
}
