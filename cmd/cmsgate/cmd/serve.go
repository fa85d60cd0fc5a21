package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ideamans/cmsgate/cmd/cmsgate/cmd/server"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long: `Start the cmsgate server with the specified configuration.

The server will:
- Load the configuration file, environment overrides and flags
- Build the CMS proxies, the local API extensions and the app server
- Start the public listener (and the metrics listener when configured)
- Drain and shut down gracefully on SIGTERM/SIGINT`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := server.Run(context.Background(), server.Config{
		Load:    loadOptions(cmd),
		Version: version,
	}); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
