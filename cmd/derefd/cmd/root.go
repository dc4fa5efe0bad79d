package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "derefd",
	Short: "Entity dereferencing service",
	Long: `derefd publishes dereference enhancement engines backed by entity sites.

Engines are configured in the engines file (DEREFD_ENGINES_FILE), sites in the
sites file (DEREFD_SITES_FILE) or announced over NATS. Running derefd without
a subcommand starts the server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func Execute() error {
	return rootCmd.Execute()
}
