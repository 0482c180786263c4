package main

import (
	"fmt"

	"github.com/spf13/cobra"

	openaix "github.com/vaani-ai/voice-sales-agent/pkg/openai"
)

var checkCmd = &cobra.Command{
	Use:   "test",
	Short: "Verify connectivity to every configured service",
	Long: `Check each external dependency with its credentials: the CRM, the
telephony provider, the language model API, and, when configured, the
Facebook Graph API and the call record database. Exits non-zero if any
check fails.`,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	failed := 0
	report := func(name string, err error) {
		if err != nil {
			failed++
			fmt.Printf("FAIL  %-10s %v\n", name, err)
			return
		}
		fmt.Printf("OK    %s\n", name)
	}

	report("zoho", a.crm.TestConnection(ctx))
	report("twilio", a.phone.TestConnection(ctx))

	openaiErr := fmt.Errorf("no api key configured")
	if client := openaix.NewClient(*a.openaiCfg); client != nil {
		_, openaiErr = client.Models.List(ctx)
	}
	report("openai", openaiErr)

	if a.fb != nil {
		report("facebook", a.fb.TestConnection(ctx))
	}
	if a.records != nil {
		report("postgres", a.records.Ping(ctx))
	}

	if failed > 0 {
		return fmt.Errorf("%d service check(s) failed", failed)
	}
	return nil
}
