// Package scan turns a stream of decoded optical codes into a rendezvous
// target. The camera (or whatever produces the codes) sits behind Reader.
package scan

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/1ureka/p2pdrop/internal/identity"
	"github.com/1ureka/p2pdrop/internal/journal"
	"github.com/1ureka/p2pdrop/internal/rendezvous"
	"github.com/1ureka/p2pdrop/internal/util"
)

// ErrUnavailable is returned when the reader cannot be acquired.
var ErrUnavailable = errors.New("code reader unavailable")

// ErrEnded is returned when the reader stops before producing a locator.
var ErrEnded = errors.New("code reader ended without a locator")

// MsgUnavailable is the log entry written when acquisition fails.
const MsgUnavailable = "Camera access denied or unavailable"

// Reader is a source of decoded code texts. Open acquires the underlying
// device and returns the texts it decodes; the channel is closed when the
// source ends. Close releases the device and must be safe to call after a
// failed Open.
type Reader interface {
	Open(ctx context.Context) (<-chan string, error)
	Close() error
}

// Run acquires r and reads codes until one is a valid rendezvous locator,
// returning the identity it carries. r is released on every return path.
// A failed acquisition is logged and reported as ErrUnavailable; scanning can
// simply be started again.
func Run(ctx context.Context, r Reader, log *journal.Log) (id identity.SessionIdentity, err error) {
	codes, err := r.Open(ctx)
	defer func() {
		if cerr := r.Close(); cerr != nil {
			util.LogDebug("Releasing code reader: %v", cerr)
		}
	}()
	if err != nil {
		util.LogWarning("Opening code reader: %v", err)
		log.System(MsgUnavailable)
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	for {
		select {
		case text, ok := <-codes:
			if !ok {
				return "", ErrEnded
			}
			if id, ok := rendezvous.DecodeStrict(text); ok {
				util.LogDebug("Scanned locator for %s", id.Short())
				return id, nil
			}
			util.LogDebug("Ignoring scanned code %q", truncate(text, 64))

		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ──────────────────────────────────────────────────────────────────────────────
// LineReader
// ──────────────────────────────────────────────────────────────────────────────

// LineReader is a Reader over text lines, e.g. the output of an external
// QR decoder piped into stdin. It can be opened once.
//
// It stops reading right after handing out a line that carries a locator,
// so whatever follows on src (including bytes already buffered) is left for
// the next consumer through Rest.
type LineReader struct {
	src io.Reader
	br  *bufio.Reader

	mu     sync.Mutex
	opened bool
	stop   chan struct{}
	once   sync.Once
}

// NewLineReader reads codes from src, one per line.
func NewLineReader(src io.Reader) *LineReader {
	l := &LineReader{src: src, stop: make(chan struct{})}
	if src != nil {
		l.br = bufio.NewReader(src)
	}
	return l
}

func (l *LineReader) Open(ctx context.Context) (<-chan string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.src == nil {
		return nil, errors.New("no input")
	}
	if l.opened {
		return nil, errors.New("already opened")
	}
	l.opened = true

	out := make(chan string)
	go func() {
		defer close(out)
		for {
			raw, err := l.br.ReadString('\n')
			if line := strings.TrimSpace(raw); line != "" {
				select {
				case out <- line:
				case <-l.stop:
					return
				case <-ctx.Done():
					return
				}
				if _, ok := rendezvous.DecodeStrict(line); ok {
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					util.LogWarning("Reading codes: %v", err)
				}
				return
			}
		}
	}()
	return out, nil
}

// Close stops delivery. A read already blocked on src finishes in the
// background.
func (l *LineReader) Close() error {
	l.once.Do(func() { close(l.stop) })
	return nil
}

// Rest returns the input that follows the locator line. It is only valid
// once Run has returned a locator read from l.
func (l *LineReader) Rest() io.Reader {
	if l.br == nil {
		return l.src
	}
	return l.br
}
