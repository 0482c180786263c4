package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var callsSID string

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "List recent calls from the telephony provider",
	Long: `Print the provider's recent call log, or a single call resource when
--sid is given. Reads directly from the provider API, not the local engine.`,
	RunE: runCalls,
}

func init() {
	callsCmd.Flags().StringVar(&callsSID, "sid", "", "fetch a single call by SID")
	callsCmd.Flags().Int("limit", 20, "number of recent calls to list")
}

func runCalls(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if callsSID != "" {
		call, err := a.phone.GetCall(ctx, callsSID)
		if err != nil {
			return fmt.Errorf("fetch call: %w", err)
		}
		fmt.Printf("%s  %-11s  to=%s  duration=%ss\n", call.SID, call.Status, call.To, call.Duration)
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	calls, err := a.phone.ListCalls(ctx, limit)
	if err != nil {
		return fmt.Errorf("list calls: %w", err)
	}
	if len(calls) == 0 {
		fmt.Println("no calls on record")
		return nil
	}
	for _, call := range calls {
		fmt.Printf("%s  %-11s  to=%s  duration=%ss\n", call.SID, call.Status, call.To, call.Duration)
	}
	return nil
}
