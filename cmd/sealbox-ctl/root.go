package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Build information (set from main.go)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Global flags
var (
	serverAddr   string
	botToken     string
	outputFormat string
	noColor      bool
	configFile   string
)

// Global client instance
var apiClient *Client

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sealbox-ctl",
	Short: "CLI tool for the sealbox one-time secret service",
	Long: `sealbox-ctl is a command-line interface for the sealbox one-time
secret exchange service.

It provides commands for:
  - create:   Encrypt and store a secret, returning a one-time retrieval handle
  - retrieve: Fetch and destroy a secret by handle
  - check:    Inspect a secret's metadata without consuming it
  - health:   Check service availability

Environment variables:
  SEALBOX_SERVER     Server address (default: localhost:8080)
  SEALBOX_BOT_TOKEN  Bot-protection token for deployments with bot checks
  SEALBOX_OUTPUT     Output format: json, text (default: text)
  SEALBOX_CONFIG     Config file path (default: ~/.sealbox/config.yaml)`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip client initialization for completion and config commands
		if cmd.Name() == "completion" || cmd.Name() == "version" ||
			(cmd.Parent() != nil && cmd.Parent().Name() == "completion") ||
			(cmd.Parent() != nil && cmd.Parent().Name() == "config") {
			return nil
		}

		// Initialize color output
		InitColor(!noColor)

		// Load configuration
		cfg, err := LoadConfig(configFile)
		if err != nil {
			// Config file not found is OK, we'll use defaults/flags
			cfg = &Config{}
		}

		// Resolve server address (flag > env > config > default)
		server := serverAddr
		if server == "" {
			server = os.Getenv("SEALBOX_SERVER")
		}
		if server == "" && cfg.Server != "" {
			server = cfg.Server
		}
		if server == "" {
			server = "localhost:8080"
		}

		// Resolve bot-protection token (flag > env > config)
		token := botToken
		if token == "" {
			token = os.Getenv("SEALBOX_BOT_TOKEN")
		}
		if token == "" && cfg.BotToken != "" {
			token = cfg.BotToken
		}

		// Resolve output format (flag > env > config > default)
		output := outputFormat
		if output == "" {
			output = os.Getenv("SEALBOX_OUTPUT")
		}
		if output == "" && cfg.OutputFormat != "" {
			output = cfg.OutputFormat
		}
		if output == "" {
			output = "text"
		}
		outputFormat = output

		// Initialize API client
		apiClient = NewClient(server, token)

		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version, commit hash, and build time of sealbox-ctl.`,
	Run: func(cmd *cobra.Command, args []string) {
		InitColor(!noColor)

		if outputFormat == "json" {
			info := map[string]string{
				"version":    Version,
				"commit":     Commit,
				"build_time": BuildTime,
				"go_version": runtime.Version(),
				"platform":   runtime.GOOS + "/" + runtime.GOARCH,
			}
			_ = printJSON(info)
			return
		}

		fmt.Printf("%s\n", Bold("sealbox-ctl"))
		fmt.Printf("  Version:    %s\n", Version)
		fmt.Printf("  Commit:     %s\n", Commit)
		fmt.Printf("  Built:      %s\n", BuildTime)
		fmt.Printf("  Go version: %s\n", runtime.Version())
		fmt.Printf("  Platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "", "Sealbox server address (default: localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&botToken, "bot-token", "", "Bot-protection token")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "Output format: json, text (default: text)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ~/.sealbox/config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(completionCmd)
}
