package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/1ureka/p2pdrop/internal/journal"
	"github.com/1ureka/p2pdrop/internal/session"
	"github.com/1ureka/p2pdrop/internal/util"
)

const consoleHelp = `Commands:
  <text>               send a chat message
  /send <path>...      send one or more files
  /files               list files sent and received
  /save <id> [dir]     write a file to disk
  /join <locator>      connect to another peer
  /state               show the connection state
  /quit                leave`

// Console is the line-oriented user interface of a session.
type Console struct {
	Session *session.Manager
	// Join is used by /join; nil disables the command.
	Join        func(ctx context.Context, locator string) error
	DownloadDir string
	Out         io.Writer
}

// Follow prints every entry appended to the session log from now on.
func (c *Console) Follow(log *journal.Log) {
	log.Subscribe(func(e journal.Entry) {
		fmt.Fprintln(c.Out, FormatEntry(e))
	})
}

// Run executes commands read from in until /quit, end of input, or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.Exec(ctx, line); quit {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Exec runs one command line and reports whether the user asked to quit.
func (c *Console) Exec(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.report(c.Session.SendChat(line))
		return false
	}

	cmd, rest, _ := strings.Cut(line, " ")
	args := strings.Fields(rest)

	switch cmd {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Fprintln(c.Out, consoleHelp)

	case "/state":
		state := c.Session.State()
		if remote := c.Session.Remote(); remote != "" {
			fmt.Fprintf(c.Out, "State: %s (peer %s)\n", state, remote.Short())
		} else {
			fmt.Fprintf(c.Out, "State: %s\n", state)
		}

	case "/send":
		if len(args) == 0 {
			fmt.Fprintln(c.Out, "Usage: /send <path>...")
			return false
		}
		c.report(c.Session.SendFiles(ctx, args...))

	case "/files":
		c.listFiles()

	case "/save":
		if len(args) == 0 || len(args) > 2 {
			fmt.Fprintln(c.Out, "Usage: /save <id> [dir]")
			return false
		}
		dir := c.DownloadDir
		if len(args) == 2 {
			dir = args[1]
		}
		path, err := c.Session.Assets().Save(args[0], dir)
		if err != nil {
			fmt.Fprintf(c.Out, "Cannot save %s: %v\n", args[0], err)
			return false
		}
		fmt.Fprintf(c.Out, "Saved to %s\n", path)

	case "/join":
		if c.Join == nil || len(args) != 1 {
			fmt.Fprintln(c.Out, "Usage: /join <locator>")
			return false
		}
		if err := c.Join(ctx, args[0]); err != nil {
			fmt.Fprintf(c.Out, "Cannot join: %v\n", err)
		}

	default:
		fmt.Fprintf(c.Out, "Unknown command %s, try /help\n", cmd)
	}
	return false
}

func (c *Console) listFiles() {
	files := c.Session.Assets().List()
	if len(files) == 0 {
		fmt.Fprintln(c.Out, "No files yet.")
		return
	}
	for _, a := range files {
		fmt.Fprintf(c.Out, "%s  %s  %s  %s\n", util.FormatBytes(float64(a.Size)), a.ID, a.MIMEType, a.Name)
	}
}

// report explains failures the session log does not already show.
func (c *Console) report(err error) {
	var sendErr *session.SendError
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNotConnected):
		fmt.Fprintf(c.Out, "Not connected (state: %s)\n", c.Session.State())
	case errors.As(err, &sendErr):
		util.LogDebug("Send rejected: %v", err)
	default:
		util.LogDebug("Command failed: %v", err)
	}
}
