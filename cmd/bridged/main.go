// Command bridged runs a bridge node serving the home and foreign ledgers,
// plus the offline helpers validators and operators use around it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bridged",
		Short:         "Two-chain validator bridge node",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringP("config", "c", "", "config file (default config.yaml, or config.local.yaml when present)")

	root.AddCommand(
		serveCommand(),
		keygenCommand(),
		messageCommand(),
		signCommand(),
		depositCommand(),
		totpCommand(),
		watchCommand(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
