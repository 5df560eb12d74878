// p2pdrop — CLI entry point.
//
// Two peers meet through a signaling relay, then exchange chat messages and
// files directly over a WebRTC DataChannel. One side hosts and shows a
// locator (text and QR code), the other joins it by pasting or scanning it.
//
// Launched without a subcommand it asks which role to play.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/1ureka/p2pdrop/cmd/p2pdrop/commands"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := commands.Execute(ctx, version); err != nil {
		os.Exit(1)
	}
}
