package transport

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
)

const (
	highWaterMark = 1024 * 1024 // wait before sending while bufferedAmount exceeds this
	lowWaterMark  = 256 * 1024  // resume once bufferedAmount drops below this
)

// sender serializes writes to a single DataChannel and applies backpressure.
type sender struct {
	dc          *webrtc.DataChannel
	drainSignal chan struct{}
	mu          sync.Mutex
}

// newSender wires the backpressure callbacks on dc.
func newSender(dc *webrtc.DataChannel) *sender {
	s := &sender{
		dc:          dc,
		drainSignal: make(chan struct{}, 1),
	}

	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case s.drainSignal <- struct{}{}:
		default:
		}
	})

	return s
}

// send writes one message, first waiting for the buffer to drain below the
// low water mark when it is above the high one. It returns ctx's error if
// ctx ends while waiting.
func (s *sender) send(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.dc.BufferedAmount() > uint64(highWaterMark) {
		select {
		case <-s.drainSignal:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.dc.Send(data)
}
