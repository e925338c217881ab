// Package serve provides the CLI endpoint used to start the DNS proxy.
package serve

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sewh/tinydnsproxy/internal/server"
)

// Command returns the command used to start and run the DNS proxy.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "tinydnsproxy <config-file>",
		Short: "Run the DNS-over-TLS proxy",
		Example: `
# Start with a configuration file.
tinydnsproxy config.toml`,
		Long: `Starts a DNS proxy that answers plaintext DNS queries received over UDP.

Queries for hostnames found in any configured block list are answered with NXDOMAIN. All other queries are relayed
to one of the configured upstream servers using DNS-over-TLS.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return cmd.Usage()
			}

			config, err := server.LoadConfig(args[0])
			if err != nil {
				return fmt.Errorf("failed to load configuration file: %w", err)
			}

			if err = config.Validate(); err != nil {
				return fmt.Errorf("invalid configuration file: %w", err)
			}

			// Failures once the proxy has started are logged rather than returned, the process still exits cleanly.
			if err = server.Run(cmd.Context(), config); err != nil {
				server.NewLogger(config.Logging).With("error", err).Error("proxy stopped")
			}

			return nil
		},
	}
}
