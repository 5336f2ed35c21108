package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Signaling counters
// ──────────────────────────────────────────────────────────────────────────────

// Stats counts relay traffic for one signaling channel. The zero value is
// ready to use and all methods are safe for concurrent use.
type Stats struct {
	MsgsSent     atomic.Int64 // frames accepted by the relay connection
	MsgsRecv     atomic.Int64 // frames decoded successfully
	BytesSent    atomic.Int64
	BytesRecv    atomic.Int64
	DecodeErrors atomic.Int64 // frames dropped by the codec
	Reconnects   atomic.Int64 // successful connections after the first one
}

func (s *Stats) AddSent(n int) {
	s.MsgsSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *Stats) AddRecv(n int) {
	s.MsgsRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

func (s *Stats) AddDecodeError() { s.DecodeErrors.Add(1) }
func (s *Stats) AddReconnect()   { s.Reconnects.Add(1) }

// Summary returns a single-line description of the counters.
func (s *Stats) Summary() string {
	return formatStats(
		s.MsgsSent.Load(), s.MsgsRecv.Load(),
		float64(s.BytesSent.Load()), float64(s.BytesRecv.Load()),
		s.DecodeErrors.Load(), s.Reconnects.Load(),
	)
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

var statsLog = NewLogger("signaling")

// StartStatsReporter launches a goroutine that logs the signaling counters
// every interval, skipping intervals without traffic. It stops when ctx is
// cancelled.
func StartStatsReporter(ctx context.Context, s *Stats, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var prevSent, prevRecv, prevErrs int64
		for {
			select {
			case <-ticker.C:
				sent := s.MsgsSent.Load()
				recv := s.MsgsRecv.Load()
				errs := s.DecodeErrors.Load()

				if sent != prevSent || recv != prevRecv || errs != prevErrs {
					statsLog.Infof("%s", s.Summary())
				}

				prevSent = sent
				prevRecv = recv
				prevErrs = errs

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the counters for display in the logger.
func formatStats(sent, recv int64, bytesSent, bytesRecv float64, decodeErrs, reconnects int64) string {
	return fmt.Sprintf("Msgs: %d↑ %d↓ | Bytes: %s↑ %s↓ | Dropped: %d | Reconnects: %d",
		sent,
		recv,
		formatBytes(bytesSent),
		formatBytes(bytesRecv),
		decodeErrs,
		reconnects,
	)
}
