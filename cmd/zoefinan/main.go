// Command zoefinan serves the personal finance API and offers a few offline
// tools over the same configuration.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/zoeplatform/zoefinan/internal/cli"
)

var configFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "zoefinan",
		Short: "Personal finance ledger and health diagnosis",
		Long: `zoefinan keeps a monthly ledger of income, expenses and debts per user
and scores each month's financial health.

Configuration comes from zoefinan.yaml and ZOEFINAN_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cli.LoadEnvFile()
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ./zoefinan.yaml)")

	root.AddCommand(
		newServeCmd(),
		newMonthsCmd(),
		newHealthCmd(),
		newReportCmd(),
		newRolloverCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
