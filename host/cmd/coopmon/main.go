// Command coopmon talks to boards running the cooperative runtime: it
// follows their diagnostic reports, explains timer period selection and
// generates board constants.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "coopmon",
	Short:         "Monitor and configure cooperative runtime boards",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.AddCommand(monitorCmd, timingCmd, genCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
