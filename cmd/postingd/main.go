// postingd runs the treasury transfer posting engine.
//
// Usage:
//
//	postingd serve                 # HTTP API, SSE feed, gRPC health, reconciler
//	postingd migrate               # apply migrations/*.up.sql
//	postingd reconcile             # one-shot consistency scan
//	postingd token --subject alice # issue an operator session token
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "postingd",
	Short: "Treasury transfer posting engine",
	Long: `postingd moves liquidity transfer requests from intake through
validation and posting to the destination ledger, keeping a hash-chained
audit trail and a live change feed.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cfgFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default configs/postingd.yaml or ./postingd.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(tokenCmd)
}
