package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaani-ai/voice-sales-agent/agent/gateway"
	configx "github.com/vaani-ai/voice-sales-agent/pkg/config"
)

var fetchLeadsLimit int

var fetchLeadsCmd = &cobra.Command{
	Use:   "fetch-leads",
	Short: "List the CRM leads that would enter the calling queue",
	RunE:  runFetchLeads,
}

func init() {
	fetchLeadsCmd.Flags().IntVar(&fetchLeadsLimit, "limit", 10, "maximum leads to fetch")
}

func runFetchLeads(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	crmCfg, err := configx.New[gateway.Config]("CRM")
	if err != nil {
		return fmt.Errorf("load crm gateway config: %w", err)
	}
	recs, err := a.crm.SearchLeads(ctx, crmCfg.FetchStatus, fetchLeadsLimit)
	if err != nil {
		return fmt.Errorf("search leads: %w", err)
	}

	if len(recs) == 0 {
		fmt.Println("no leads found")
		return nil
	}
	for _, rec := range recs {
		fmt.Printf("%-22s %-24s %-16s %s\n", rec.ID, rec.FullName(), rec.Phone, rec.Company)
	}
	return nil
}
