package app

import (
	"context"
	"fmt"
	"io"

	"github.com/pterm/pterm"

	"github.com/1ureka/p2pdrop/internal/config"
	"github.com/1ureka/p2pdrop/internal/util"
)

// RunHost orchestrates the host lifecycle:
//  1. Register a fresh identity with the relay
//  2. Show the locator as text and QR code
//  3. Accept the first peer that dials it (and any later replacement)
//  4. Run the console until the user quits or ctx is cancelled
func RunHost(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer) error {
	peer, err := Start(ctx, cfg)
	if err != nil {
		return err
	}
	defer peer.Close()

	locator, err := peer.Locator()
	if err != nil {
		return fmt.Errorf("build locator: %w", err)
	}

	c := newConsole(peer, cfg, out)

	pterm.DefaultSection.WithWriter(out).Println("Share this locator with your peer")
	PrintLocator(out, locator)
	util.LogInfo("Waiting for a peer to connect as %s...", peer.ID.Short())

	return c.Run(ctx, in)
}

// newConsole creates a console on peer's session that prints the session
// log as it grows.
func newConsole(peer *Peer, cfg config.Config, out io.Writer) *Console {
	c := &Console{
		Session:     peer.Session,
		Join:        peer.Join,
		DownloadDir: cfg.DownloadDir,
		Out:         out,
	}
	c.Follow(peer.Session.Log())
	fmt.Fprintln(out, pterm.Gray("Type /help for commands."))
	return c
}
