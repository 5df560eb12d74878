// Package signaling relays SDP offers, answers and ICE candidates between
// peers addressed by their session identity, before a data channel exists.
package signaling

// MessageType identifies the kind of signaling message.
type MessageType string

const (
	MsgTypeOffer     MessageType = "offer"
	MsgTypeAnswer    MessageType = "answer"
	MsgTypeCandidate MessageType = "candidate"
	MsgTypeError     MessageType = "error" // relay → src: the message could not be delivered
	MsgTypeLeave     MessageType = "leave" // the peer is gone
)

// Message is the JSON structure exchanged over the WebSocket. Src is filled
// in by the relay; Dst names the peer the message is for.
type Message struct {
	Type      MessageType `json:"type"`
	Src       string      `json:"src,omitempty"`
	Dst       string      `json:"dst,omitempty"`
	SDP       string      `json:"sdp,omitempty"`
	Candidate string      `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit
	Error     string      `json:"error,omitempty"`
}

// Relay error texts.
const (
	ErrTextUnknownPeer = "unknown peer"
	ErrTextIDTaken     = "id taken"
)
