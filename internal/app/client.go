package app

import (
	"context"
	"errors"
	"io"

	"github.com/1ureka/p2pdrop/internal/config"
	"github.com/1ureka/p2pdrop/internal/scan"
)

// RunJoin connects to the peer named by locator and runs the console.
// A failed dial leaves the console running so the user can /join again.
func RunJoin(ctx context.Context, cfg config.Config, locator string, in io.Reader, out io.Writer) error {
	peer, err := Start(ctx, cfg)
	if err != nil {
		return err
	}
	defer peer.Close()

	c := newConsole(peer, cfg, out)
	if err := peer.Join(ctx, locator); errors.Is(err, ErrNoRendezvous) {
		return err
	}
	return c.Run(ctx, in)
}

// RunScan reads codes from r until one is a locator, then behaves like
// RunJoin. The reader is released before the console starts.
func RunScan(ctx context.Context, cfg config.Config, r scan.Reader, in io.Reader, out io.Writer) error {
	peer, err := Start(ctx, cfg)
	if err != nil {
		return err
	}
	defer peer.Close()

	c := newConsole(peer, cfg, out)
	if err := peer.Scan(ctx, r); err != nil {
		return err
	}
	return c.Run(ctx, in)
}
