package cmd

import (
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/derefd/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and the engine registrars",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	return app.New().Run()
}
