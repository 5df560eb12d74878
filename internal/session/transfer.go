package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"github.com/1ureka/p2pdrop/internal/assets"
	"github.com/1ureka/p2pdrop/internal/identity"
	"github.com/1ureka/p2pdrop/internal/journal"
	"github.com/1ureka/p2pdrop/internal/protocol"
	"github.com/1ureka/p2pdrop/internal/util"
)

// Send encodes env and hands it to the open data channel. Outside the open
// state it returns ErrNotConnected without touching the session log.
func (m *Manager) Send(env protocol.Envelope) error {
	m.mu.Lock()
	ch, state := m.ch, m.state
	m.mu.Unlock()

	if state != StateOpen || ch == nil {
		return ErrNotConnected
	}

	data, err := protocol.Encode(env)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", env.Tag(), err)
	}
	if m.maxSize > 0 && len(data) > m.maxSize {
		return &SendError{
			Reason: TransportRejected,
			Err:    fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(data), m.maxSize),
		}
	}

	if err := ch.Send(data); err != nil {
		return &SendError{Reason: TransportRejected, Err: err}
	}
	util.Stats.AddSent(len(data))
	return nil
}

// SendChat sends text as a chat envelope and records it as a local entry.
// Blank text is ignored.
func (m *Manager) SendChat(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	err := m.Send(protocol.Chat{Content: text})
	var sendErr *SendError
	switch {
	case err == nil:
		m.log.Append(journal.Entry{Sender: journal.Local, Content: text})
	case errors.As(err, &sendErr):
		util.LogWarning("Chat send failed: %v", err)
		m.log.System("Failed to send message")
	}
	return err
}

// SendFile reads path into memory and sends it as a file envelope. The file
// is kept as a local asset whether or not it could be sent. Without an open
// connection it returns ErrNotConnected and logs nothing.
func (m *Manager) SendFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		util.LogError("Failed to read %s: %v", path, err)
		m.log.System(fmt.Sprintf("Failed to read file: %s", filepath.Base(path)))
		return fmt.Errorf("read %s: %w", path, err)
	}

	f := protocol.File{
		ID:       identity.NewAssetID(),
		Name:     filepath.Base(path),
		MIMEType: mimetype.Detect(data).String(),
		Size:     int64(len(data)),
		Data:     data,
	}

	// Selected files stay in the collection even when they cannot go out.
	a := m.assets.Add(assets.Asset{
		ID:       f.ID,
		Name:     f.Name,
		MIMEType: f.MIMEType,
		Size:     f.Size,
		Data:     f.Data,
	})

	err = m.Send(f)
	if errors.Is(err, ErrNotConnected) {
		return err
	}
	if err != nil {
		util.LogWarning("File send failed: %v", err)
		m.log.System(fmt.Sprintf("Failed to send file: %s", a.Name))
		return err
	}

	util.LogDebug("Sent %s (%s, %d bytes)", a.Name, a.MIMEType, a.Size)
	m.log.Append(journal.Entry{
		Sender:  journal.Local,
		Content: fmt.Sprintf("Sent file: %s", a.Name),
		File:    &journal.FileRef{ID: a.ID, Name: a.Name, Size: a.Size},
	})
	return nil
}

// SendFiles sends every path concurrently. Each file is sent as soon as its
// read completes, so the peer sees them in completion order, not argument
// order. The returned error joins the individual failures.
func (m *Manager) SendFiles(ctx context.Context, paths ...string) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, p := range paths {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			if err := m.SendFile(ctx, path); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(p)
	}

	wg.Wait()
	return errors.Join(errs...)
}
