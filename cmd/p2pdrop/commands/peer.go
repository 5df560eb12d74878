package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/1ureka/p2pdrop/internal/app"
	"github.com/1ureka/p2pdrop/internal/config"
	"github.com/1ureka/p2pdrop/internal/scan"
)

// host: publish a locator and wait for a peer to dial it.
func hostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Show a locator and wait for a peer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Role = config.RoleHost
			return app.RunHost(cmd.Context(), cfg, os.Stdin, os.Stdout)
		},
	}
}

// join: dial the identity carried by a locator.
func joinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <locator>",
		Short: "Connect to the peer behind a locator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Role = config.RoleJoin
			return app.RunJoin(cmd.Context(), cfg, args[0], os.Stdin, os.Stdout)
		},
	}
}

// scan: read decoded codes until one is a locator, then join it.
func scanCmd() *cobra.Command {
	var codes string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Join the first locator read from a code reader",
		Long: `Reads decoded codes, one per line, e.g. from "zbarcam --raw".
Codes come from --codes (a file or FIFO) or, without it, from stdin.
Anything that is not a p2pdrop locator is skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Role = config.RoleScan

			if codes == "" {
				// The console picks up stdin where the code reader stopped.
				lr := scan.NewLineReader(os.Stdin)
				return app.RunScan(cmd.Context(), cfg, lr, lr.Rest(), os.Stdout)
			}

			f, err := os.Open(codes)
			if err != nil {
				return fmt.Errorf("%w: %w", scan.ErrUnavailable, err)
			}
			defer f.Close()
			return app.RunScan(cmd.Context(), cfg, scan.NewLineReader(f), os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&codes, "codes", "", "file or FIFO to read decoded codes from (default stdin)")
	return cmd
}
