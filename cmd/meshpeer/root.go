package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "meshpeer",
	Short: "Headless call participant for the cohort relay",
	Long: `meshpeer joins a call room on a cohort relay and keeps a full mesh of
WebRTC links to the other participants. It receives media only and logs how
the mesh evolves, which makes it handy for smoke-testing TURN setups and the
relay's signaling path.`,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
