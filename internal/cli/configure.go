package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newConfigureCmd() *cobra.Command {
	var server, apiKey string

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Store the server URL and admin API key",
		Long:  "Save the API server URL and an admin API key (from 'adv apikey create') to ~/.config/adv/config.yaml. With no flags, prints the current settings.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure(cmd, server, apiKey)
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "API server URL")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "admin API key")

	return cmd
}

func runConfigure(cmd *cobra.Command, server, apiKey string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if server == "" && apiKey == "" {
		key := "(not set)"
		if cfg.APIKey != "" {
			key = maskKey(cfg.APIKey)
		}
		fmt.Fprintf(out, "Server:  %s\n", getServerURL())
		fmt.Fprintf(out, "API key: %s\n", key)
		return nil
	}

	if server != "" {
		if !strings.HasPrefix(server, "http://") && !strings.HasPrefix(server, "https://") {
			return fmt.Errorf("server URL must start with http:// or https://")
		}
		cfg.ServerURL = strings.TrimRight(server, "/")
	}
	if apiKey != "" {
		if err := validateAPIKey(apiKey); err != nil {
			return err
		}
		cfg.APIKey = apiKey
	}

	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Fprintln(out, "Configuration saved.")
	return nil
}

// validateAPIKey checks the key looks like one issued by 'adv apikey create'.
func validateAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("API key is required")
	}
	if !strings.HasPrefix(key, "adv_") {
		return fmt.Errorf("invalid API key format (expected adv_ prefix)")
	}
	return nil
}

// maskKey shows only the key's prefix.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "********"
	}
	return key[:8] + "..."
}
