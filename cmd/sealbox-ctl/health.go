package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// healthCmd checks service availability
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check service availability",
	Long:  `Check that the sealbox server is reachable and healthy.`,
	Example: `  # Check the configured server
  sealbox-ctl health

  # Check a specific server
  sealbox-ctl health --server secrets.example.com:8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		resp, err := apiClient.Healthcheck(ctx)
		if err != nil {
			return fmt.Errorf("healthcheck failed: %w", err)
		}

		if outputFormat == "json" {
			return printJSON(resp)
		}

		Success(fmt.Sprintf("Server is %s (version %s)", resp.Status, resp.Version))

		return nil
	},
}
