// Package commands defines the p2pdrop command tree.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/p2pdrop/internal/app"
	"github.com/1ureka/p2pdrop/internal/config"
	"github.com/1ureka/p2pdrop/internal/scan"
	"github.com/1ureka/p2pdrop/internal/util"
)

var (
	cfgPath  string
	relayURL string
	baseURL  string
	debug    bool

	cfg config.Config
)

// Execute builds the command tree and runs it until ctx is cancelled.
func Execute(ctx context.Context, version string) error {
	root := &cobra.Command{
		Use:           "p2pdrop",
		Short:         "Peer-to-peer chat and file drop over WebRTC",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if relayURL != "" {
				loaded.RelayURL = relayURL
			}
			if baseURL != "" {
				loaded.BaseURL = baseURL
			}
			if debug {
				loaded.Debug = true
			}
			if err := loaded.Validate(); err != nil {
				return err
			}
			if loaded.Debug {
				util.EnableDebug()
			}
			cfg = loaded
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			pterm.Info.Println(fmt.Sprintf("p2pdrop — v%s", version))
			pterm.Println()
			return runInteractive(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&relayURL, "relay", "", "signaling relay WebSocket URL (e.g. wss://relay.example/ws)")
	root.PersistentFlags().StringVar(&baseURL, "base-url", "", "base URL of generated locators")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(hostCmd(), joinCmd(), scanCmd(), relayCmd())

	err := root.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		util.LogError("%v", err)
		return err
	}
	return nil
}

// runInteractive asks for a role. A scan that cannot get at its input falls
// back to the role menu.
func runInteractive(ctx context.Context) error {
	const (
		optHost = "Generate — Show a locator and wait for a peer"
		optScan = "Scan     — Read a locator from a code reader"
		optJoin = "Join     — Paste a locator"
	)

	for {
		choice, err := pterm.DefaultInteractiveSelect.
			WithOptions([]string{optHost, optScan, optJoin}).
			WithDefaultText("What do you want to do?").
			Show()
		if err != nil {
			return err
		}
		pterm.Println()

		switch choice {
		case optHost:
			cfg.Role = config.RoleHost
			return app.RunHost(ctx, cfg, os.Stdin, os.Stdout)

		case optScan:
			cfg.Role = config.RoleScan
			util.LogInfo("Paste or pipe decoded codes, one per line")
			lr := scan.NewLineReader(os.Stdin)
			err := app.RunScan(ctx, cfg, lr, lr.Rest(), os.Stdout)
			if errors.Is(err, scan.ErrUnavailable) {
				util.LogWarning("%s", scan.MsgUnavailable)
				pterm.Println()
				continue
			}
			return err

		case optJoin:
			cfg.Role = config.RoleJoin
			locator, err := askLocator()
			if err != nil {
				return err
			}
			return app.RunJoin(ctx, cfg, locator, os.Stdin, os.Stdout)
		}
	}
}

// askLocator prompts until something that looks like a URL is entered.
func askLocator() (string, error) {
	for {
		raw, err := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Locator (e.g. https://p2pdrop.app/?id=...)").
			Show()
		if err != nil {
			return "", err
		}
		pterm.Println()

		if raw = strings.TrimSpace(raw); strings.Contains(raw, "://") {
			return raw, nil
		}
		util.LogWarning("invalid input: please paste the full locator")
	}
}
