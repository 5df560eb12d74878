package transport

import (
	"github.com/pion/webrtc/v4"
)

// DefaultICEServers are used when no ICE servers are configured. No TURN:
// peers that cannot reach each other directly do not connect.
var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// newPeerConnection creates a PeerConnection using the given STUN/TURN URLs.
// An empty list means host candidates only.
func newPeerConnection(iceServers []string) (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{}
	if len(iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return webrtc.NewPeerConnection(config)
}

// newDataChannel creates a pre-negotiated, ordered DataChannel on the given
// PeerConnection. Using negotiated mode (ID 0) allows both sides to create
// the channel independently without relying on OnDataChannel. Envelopes are
// whole messages, so ordering costs nothing and keeps chat in sequence.
func newDataChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	ordered := true
	negotiated := true
	id := uint16(0)

	return pc.CreateDataChannel("p2pdrop", &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
}
