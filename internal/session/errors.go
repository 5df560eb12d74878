package session

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by sends attempted outside the open state.
var ErrNotConnected = errors.New("session: not connected")

// ErrTooLarge is wrapped by a SendError when an encoded envelope exceeds the
// configured ceiling.
var ErrTooLarge = errors.New("envelope exceeds max size")

// ErrNoTransport is reported when Initiate is called without a dialer.
var ErrNoTransport = errors.New("no transport available")

// SendReason classifies a SendError.
type SendReason int

const (
	// TransportRejected: the data channel refused the message.
	TransportRejected SendReason = iota + 1
)

func (r SendReason) String() string {
	if r == TransportRejected {
		return "transport rejected"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// SendError reports an envelope the transport did not accept.
type SendError struct {
	Reason SendReason
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed (%s): %v", e.Reason, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// TransportError wraps a fault reported by the data channel capability.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
