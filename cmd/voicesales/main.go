// voicesales is the outbound qualification agent: it pulls leads from the
// CRM, places calls through the telephony provider, runs the Hindi BANT
// dialogue, and writes outcomes back.
package main

import (
	"os"

	"github.com/spf13/cobra"

	_ "github.com/vaani-ai/voice-sales-agent/pkg/logger/autoload"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:           "voicesales",
	Short:         "Outbound AI voice agent for sales lead qualification",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "base URL of a running voicesales server")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(campaignCmd)
	rootCmd.AddCommand(fetchLeadsCmd)
	rootCmd.AddCommand(callsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
