// Package app contains the top-level orchestration for the host, join and
// scan roles.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/1ureka/p2pdrop/internal/config"
	"github.com/1ureka/p2pdrop/internal/identity"
	"github.com/1ureka/p2pdrop/internal/rendezvous"
	"github.com/1ureka/p2pdrop/internal/scan"
	"github.com/1ureka/p2pdrop/internal/session"
	"github.com/1ureka/p2pdrop/internal/signaling"
	"github.com/1ureka/p2pdrop/internal/transport"
	"github.com/1ureka/p2pdrop/internal/util"
)

// ErrNoRendezvous is returned by Join for text that carries no identity.
var ErrNoRendezvous = errors.New("not a rendezvous locator")

// Peer is one running endpoint: an identity registered with the relay, the
// WebRTC transport negotiating through it, and the session on top.
type Peer struct {
	ID      identity.SessionIdentity
	Session *session.Manager

	cfg       config.Config
	client    *signaling.Client
	transport *transport.WebRTC
	cancel    context.CancelFunc
}

// Start generates an identity, registers it with the relay and begins
// accepting connections.
func Start(ctx context.Context, cfg config.Config) (*Peer, error) {
	pCtx, cancel := context.WithCancel(ctx)

	id := identity.Generate()
	client, err := signaling.Connect(pCtx, cfg.RelayURL, id)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", transport.ErrUnavailable, err)
	}
	util.LogDebug("Registered %s with relay %s", id.Short(), cfg.RelayURL)

	tr := transport.New(pCtx, client, transport.Options{ICEServers: cfg.ICEServers})

	m := session.NewManager(session.Options{
		Dial: func(ctx context.Context, remote identity.SessionIdentity) (session.DataChannel, error) {
			c, err := tr.Dial(ctx, remote)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		MaxEnvelopeSize: cfg.MaxEnvelopeSize,
	})
	go session.Serve(pCtx, m, tr.Incoming())

	if cfg.StatsInterval > 0 {
		util.StartStatsReporter(pCtx, cfg.StatsInterval)
	}

	return &Peer{
		ID:        id,
		Session:   m,
		cfg:       cfg,
		client:    client,
		transport: tr,
		cancel:    cancel,
	}, nil
}

// Locator returns the rendezvous locator other peers use to reach this one.
func (p *Peer) Locator() (string, error) {
	return rendezvous.Encode(p.cfg.BaseURL, p.ID)
}

// Join dials the identity carried by locator.
func (p *Peer) Join(ctx context.Context, locator string) error {
	remote, ok := rendezvous.Decode(locator)
	if !ok {
		return ErrNoRendezvous
	}
	if remote == p.ID {
		return errors.New("cannot connect to yourself")
	}
	return p.Session.Initiate(ctx, remote)
}

// Scan reads codes from r until one carries a locator, then dials it.
func (p *Peer) Scan(ctx context.Context, r scan.Reader) error {
	remote, err := scan.Run(ctx, r, p.Session.Log())
	if err != nil {
		return err
	}
	return p.Session.Initiate(ctx, remote)
}

// Close releases the session, the transport and the relay connection.
func (p *Peer) Close() error {
	err := errors.Join(
		p.Session.Close(),
		p.transport.Close(),
		p.client.Close(),
	)
	p.cancel()
	return err
}
