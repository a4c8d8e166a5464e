package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// createCmd stores a new secret
var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a one-time secret",
	Long: `Encrypt and store a secret, returning a handle that can be used
to retrieve it exactly once.

The secret value is read from --secret, --file, or standard input,
in that order of precedence.`,
	Example: `  # Create from a flag
  sealbox-ctl create --secret "database password"

  # Create from a file, expiring in 24 hours
  sealbox-ctl create --file credentials.txt --ttl 24h

  # Create with an additional password layer
  echo -n "top secret" | sealbox-ctl create --password hunter2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		secretValue, _ := cmd.Flags().GetString("secret")
		file, _ := cmd.Flags().GetString("file")
		password, _ := cmd.Flags().GetString("password")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		expiresAt, _ := cmd.Flags().GetString("expires-at")

		if secretValue == "" && file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read secret file: %w", err)
			}
			secretValue = string(data)
		}
		if secretValue == "" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read secret from stdin: %w", err)
			}
			secretValue = strings.TrimRight(string(data), "\n")
		}
		if secretValue == "" {
			return fmt.Errorf("no secret provided: use --secret, --file, or stdin")
		}

		if ttl > 0 && expiresAt != "" {
			return fmt.Errorf("--ttl and --expires-at are mutually exclusive")
		}
		if ttl > 0 {
			expiresAt = strconv.FormatInt(time.Now().Add(ttl).Unix(), 10)
		}

		ShowSpinner("Creating secret...")
		resp, err := apiClient.CreateSecret(ctx, secretValue, password, expiresAt)
		HideSpinner()

		if err != nil {
			return fmt.Errorf("failed to create secret: %w", err)
		}

		if outputFormat == "json" {
			return printJSON(resp)
		}

		Success("Secret created")
		fmt.Printf("  Handle:  %s\n", Bold(resp.Handle))
		fmt.Printf("  Expires: %s\n", formatExpiry(resp.ExpiresAt))
		if password != "" {
			fmt.Printf("  %s\n", Dim("The recipient will need the password to decrypt it."))
		}
		fmt.Printf("\n%s\n", Dim("The secret can be retrieved exactly once."))

		return nil
	},
}

// retrieveCmd fetches and destroys a secret
var retrieveCmd = &cobra.Command{
	Use:   "retrieve <handle>",
	Short: "Retrieve and destroy a secret",
	Long: `Fetch a secret by its handle. The secret is deleted on successful
retrieval and cannot be fetched again.

Only the plaintext is written to stdout, so the output can be piped
directly into other tools.`,
	Example: `  # Retrieve a secret
  sealbox-ctl retrieve 4f9f9c2e-8a7b-4c1d-9e3f-2b5a6c7d8e9f

  # Retrieve a password-protected secret
  sealbox-ctl retrieve 4f9f9c2e-8a7b-4c1d-9e3f-2b5a6c7d8e9f --password hunter2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		handle := args[0]
		password, _ := cmd.Flags().GetString("password")

		resp, err := apiClient.RetrieveSecret(ctx, handle, password)
		if err != nil {
			return fmt.Errorf("failed to retrieve secret: %w", err)
		}

		if outputFormat == "json" {
			return printJSON(resp)
		}

		// Plaintext only on stdout; notices go to stderr
		fmt.Println(resp.Secret)
		if isTerminal() {
			fmt.Fprintf(os.Stderr, "%s %s\n", Yellow("!"), "The secret has been destroyed and cannot be retrieved again.")
		}

		return nil
	},
}

// checkCmd inspects a secret without consuming it
var checkCmd = &cobra.Command{
	Use:   "check <handle>",
	Short: "Check a secret's metadata",
	Long: `Inspect whether a secret exists, whether it needs a password, and
when it expires. Checking does not consume the secret.`,
	Example: `  # Check a secret before retrieving it
  sealbox-ctl check 4f9f9c2e-8a7b-4c1d-9e3f-2b5a6c7d8e9f`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		handle := args[0]

		ShowSpinner("Checking secret...")
		resp, err := apiClient.CheckSecret(ctx, handle)
		HideSpinner()

		if err != nil {
			return fmt.Errorf("failed to check secret: %w", err)
		}

		if outputFormat == "json" {
			return printJSON(resp)
		}

		fmt.Printf("%s\n", Bold("Secret"))
		fmt.Printf("  Handle:            %s\n", handle)
		if resp.RequiresPassword {
			fmt.Printf("  Requires password: %s\n", Yellow("yes"))
		} else {
			fmt.Printf("  Requires password: %s\n", Green("no"))
		}
		fmt.Printf("  Expires:           %s\n", formatExpiry(resp.ExpiresAt))

		return nil
	},
}

func init() {
	createCmd.Flags().String("secret", "", "Secret value (reads stdin if not set)")
	createCmd.Flags().String("file", "", "Read the secret value from a file")
	createCmd.Flags().StringP("password", "p", "", "Protect the secret with an additional password")
	createCmd.Flags().Duration("ttl", 0, "Time until expiration (e.g. 30m, 24h)")
	createCmd.Flags().String("expires-at", "", "Absolute expiration as a unix timestamp")

	retrieveCmd.Flags().StringP("password", "p", "", "Password for password-protected secrets")
}
