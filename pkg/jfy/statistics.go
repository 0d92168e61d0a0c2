// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jfy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/atomic"
)

// Statistics tracks exchange outcomes for one device.
// It is safe for concurrent use.
type Statistics struct {
	start atomic.Int64 // unix nanoseconds

	Exchanges      atomic.Uint64
	Responses      atomic.Uint64
	NoResponses    atomic.Uint64
	ShortWrites    atomic.Uint64
	ValidFrames    atomic.Uint64
	ChecksumErrors atomic.Uint64
	DecodeErrors   atomic.Uint64
	Violations     atomic.Uint64
	lastResponse   atomic.Int64 // unix nanoseconds
}

// StatisticsSnapshot is a point-in-time copy of Statistics
type StatisticsSnapshot struct {
	Elapsed        time.Duration
	Exchanges      uint64
	Responses      uint64
	NoResponses    uint64
	ShortWrites    uint64
	ValidFrames    uint64
	ChecksumErrors uint64
	DecodeErrors   uint64
	Violations     uint64
	LastResponse   time.Time
	ResponseRate   float64 // percent of exchanges answered
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	s := &Statistics{}
	s.start.Store(time.Now().UnixNano())
	return s
}

// RecordExchange counts one exchange and whether anything was read back
func (s *Statistics) RecordExchange(answered bool) {
	s.Exchanges.Inc()
	if answered {
		s.Responses.Inc()
		s.lastResponse.Store(time.Now().UnixNano())
	} else {
		s.NoResponses.Inc()
	}
}

// RecordShortWrite counts a write that did not take the whole frame
func (s *Statistics) RecordShortWrite() {
	s.ShortWrites.Inc()
}

// RecordDecode classifies the result of decoding a reply
func (s *Statistics) RecordDecode(err error) {
	switch {
	case err == nil:
		s.ValidFrames.Inc()
	case errors.Is(err, ErrChecksumMismatch):
		s.ChecksumErrors.Inc()
	default:
		s.DecodeErrors.Inc()
	}
}

// RecordViolations counts frames rejected by ValidateFrame
func (s *Statistics) RecordViolations(violations []ValidationError) {
	if len(violations) > 0 {
		s.Violations.Inc()
	}
}

// Snapshot returns a copy of the counters
func (s *Statistics) Snapshot() StatisticsSnapshot {
	snap := StatisticsSnapshot{
		Elapsed:        time.Since(time.Unix(0, s.start.Load())),
		Exchanges:      s.Exchanges.Load(),
		Responses:      s.Responses.Load(),
		NoResponses:    s.NoResponses.Load(),
		ShortWrites:    s.ShortWrites.Load(),
		ValidFrames:    s.ValidFrames.Load(),
		ChecksumErrors: s.ChecksumErrors.Load(),
		DecodeErrors:   s.DecodeErrors.Load(),
		Violations:     s.Violations.Load(),
	}
	if ns := s.lastResponse.Load(); ns != 0 {
		snap.LastResponse = time.Unix(0, ns)
	}
	if snap.Exchanges > 0 {
		snap.ResponseRate = float64(snap.Responses) * 100.0 / float64(snap.Exchanges)
	}
	return snap
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Statistics (%.0f seconds) ===\n", snap.Elapsed.Seconds())
	fmt.Fprintf(&sb, "Exchanges:       %8d\n", snap.Exchanges)
	fmt.Fprintf(&sb, "Answered:        %8d (%.1f%%)\n", snap.Responses, snap.ResponseRate)
	fmt.Fprintf(&sb, "Valid Frames:    %8d\n", snap.ValidFrames)
	if snap.NoResponses > 0 {
		fmt.Fprintf(&sb, "No Response:     %8d\n", snap.NoResponses)
	}
	if snap.ChecksumErrors > 0 {
		fmt.Fprintf(&sb, "Checksum Errors: %8d\n", snap.ChecksumErrors)
	}
	if snap.DecodeErrors > 0 {
		fmt.Fprintf(&sb, "Decode Errors:   %8d\n", snap.DecodeErrors)
	}
	if snap.Violations > 0 {
		fmt.Fprintf(&sb, "Violations:      %8d\n", snap.Violations)
	}
	if snap.ShortWrites > 0 {
		fmt.Fprintf(&sb, "Short Writes:    %8d\n", snap.ShortWrites)
	}
	sb.WriteString("================================\n")
	return sb.String()
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.start.Store(time.Now().UnixNano())
	s.Exchanges.Store(0)
	s.Responses.Store(0)
	s.NoResponses.Store(0)
	s.ShortWrites.Store(0)
	s.ValidFrames.Store(0)
	s.ChecksumErrors.Store(0)
	s.DecodeErrors.Store(0)
	s.Violations.Store(0)
	s.lastResponse.Store(0)
}
