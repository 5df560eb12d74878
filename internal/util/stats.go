package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide envelope/connection counter.
var Stats = &stats{}

type stats struct {
	Opened       atomic.Int64 // connections that reached the open state
	Closed       atomic.Int64 // connections that left the open state
	EnvelopesOut atomic.Int64 // envelopes accepted by the data channel
	EnvelopesIn  atomic.Int64 // envelopes delivered by the data channel
	BytesSent    atomic.Int64 // encoded bytes written to the data channel
	BytesRecv    atomic.Int64 // encoded bytes read from the data channel
}

func (s *stats) AddConn()    { s.Opened.Add(1) }
func (s *stats) RemoveConn() { s.Closed.Add(1) }

func (s *stats) AddSent(n int) {
	s.EnvelopesOut.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *stats) AddRecv(n int) {
	s.EnvelopesIn.Add(1)
	s.BytesRecv.Add(int64(n))
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Opened, Closed            int64
	EnvelopesOut, EnvelopesIn int64
	BytesSent, BytesRecv      int64
}

func (s *stats) Snapshot() Snapshot {
	return Snapshot{
		Opened:       s.Opened.Load(),
		Closed:       s.Closed.Load(),
		EnvelopesOut: s.EnvelopesOut.Load(),
		EnvelopesIn:  s.EnvelopesIn.Load(),
		BytesSent:    s.BytesSent.Load(),
		BytesRecv:    s.BytesRecv.Load(),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs transfer statistics
// every interval while there is traffic. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		prev := Stats.Snapshot()
		for {
			select {
			case <-ticker.C:
				cur := Stats.Snapshot()
				if line, ok := formatDelta(prev, cur, interval); ok {
					pterm.DefaultLogger.Debug(line)
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

// formatDelta renders the traffic between two snapshots; ok is false when
// nothing happened.
func formatDelta(prev, cur Snapshot, interval time.Duration) (string, bool) {
	secs := interval.Seconds()
	out := float64(cur.BytesSent-prev.BytesSent) / secs
	in := float64(cur.BytesRecv-prev.BytesRecv) / secs
	envOut := cur.EnvelopesOut - prev.EnvelopesOut
	envIn := cur.EnvelopesIn - prev.EnvelopesIn

	if envOut == 0 && envIn == 0 && cur.Opened == prev.Opened && cur.Closed == prev.Closed {
		return "", false
	}
	return fmt.Sprintf("In: %s/s (%d env) | Out: %s/s (%d env) | Conn: %d open, %d closed",
		FormatBytes(in), envIn,
		FormatBytes(out), envOut,
		cur.Opened, cur.Closed,
	), true
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// FormatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func FormatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}
