package util

import (
	"strings"
	"testing"
	"time"
)

func TestFormatBytesWidth(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{100 * 1024, " 0.1 MiB"},
	}

	for _, tc := range testCases {
		got := FormatBytes(tc.in)
		if got != tc.want {
			t.Errorf("FormatBytes(%v) = %q, want %q", tc.in, got, tc.want)
		}
		if len(got) != 8 {
			t.Errorf("FormatBytes(%v) width = %d, want 8", tc.in, len(got))
		}
	}
}

func TestFormatDelta(t *testing.T) {
	prev := Snapshot{}
	if _, ok := formatDelta(prev, prev, time.Second); ok {
		t.Error("idle interval reported activity")
	}

	cur := Snapshot{Opened: 1, EnvelopesOut: 2, BytesSent: 2048, EnvelopesIn: 1, BytesRecv: 10}
	line, ok := formatDelta(prev, cur, time.Second)
	if !ok {
		t.Fatal("activity not reported")
	}
	for _, want := range []string{"(1 env)", "(2 env)", "1 open", "2.0 KiB"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestStatsCounters(t *testing.T) {
	before := Stats.Snapshot()
	Stats.AddSent(10)
	Stats.AddRecv(20)
	Stats.AddConn()
	Stats.RemoveConn()
	after := Stats.Snapshot()

	if after.EnvelopesOut-before.EnvelopesOut != 1 || after.BytesSent-before.BytesSent != 10 {
		t.Errorf("sent counters: %+v -> %+v", before, after)
	}
	if after.EnvelopesIn-before.EnvelopesIn != 1 || after.BytesRecv-before.BytesRecv != 20 {
		t.Errorf("recv counters: %+v -> %+v", before, after)
	}
	if after.Opened-before.Opened != 1 || after.Closed-before.Closed != 1 {
		t.Errorf("conn counters: %+v -> %+v", before, after)
	}
}
