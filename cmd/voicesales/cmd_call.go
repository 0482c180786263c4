package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vaani-ai/voice-sales-agent/agent/gateway"
)

var callCmd = &cobra.Command{
	Use:   "call <lead-id>",
	Short: "Place one qualification call to a specific CRM lead",
	Args:  cobra.ExactArgs(1),
	RunE:  runCall,
}

var (
	campaignMaxCalls int
	campaignDelay    time.Duration
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Run a sequential calling campaign over queued leads",
	Long: `Fetch leads from the CRM and call them one at a time, waiting for each
call to settle before dialing the next. Stops when the queue runs dry or
the call budget is spent.`,
	RunE: runCampaign,
}

func init() {
	campaignCmd.Flags().IntVar(&campaignMaxCalls, "max-calls", 10, "maximum calls to place")
	campaignCmd.Flags().DurationVar(&campaignDelay, "delay", 10*time.Second, "pause between settled calls")
}

func runCall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	leadID := args[0]

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.initRecords(ctx); err != nil {
		return err
	}

	rec, err := a.crm.GetLead(ctx, leadID)
	if err != nil {
		return fmt.Errorf("fetch lead %s: %w", leadID, err)
	}
	lead := gateway.LeadFromRecord(rec)
	if lead.Phone == "" {
		return fmt.Errorf("lead %s has no phone number", leadID)
	}
	a.engine.Admit(lead)

	// The webhook server must be up before the provider calls back.
	go func() {
		if err := a.server.Start(ctx); err != nil {
			log.Error().Err(err).Msg("webhook server failed")
		}
	}()

	if err := a.engine.CallAndWait(ctx, leadID); err != nil {
		return err
	}
	fmt.Printf("call to lead %s settled\n", leadID)
	return nil
}

func runCampaign(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.initRecords(ctx); err != nil {
		return err
	}

	go func() {
		if err := a.server.Start(ctx); err != nil {
			log.Error().Err(err).Msg("webhook server failed")
		}
	}()

	placed, err := a.engine.RunCampaign(ctx, campaignMaxCalls, campaignDelay)
	if err != nil {
		return err
	}
	fmt.Printf("campaign finished, %d call(s) placed\n", placed)
	return nil
}
