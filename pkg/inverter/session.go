// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package inverter

import (
	"context"
	"time"

	"github.com/jmcp/jfy-monitor/pkg/jfy"
	"go.uber.org/zap"
)

// Defaults for a Session
const (
	DefaultMaxAttempts = 10
	DefaultSettleDelay = time.Second
)

// Channel is the raw byte link to one inverter
type Channel interface {
	Write(p []byte) (int, error)
	// ReadAvailable returns whatever has arrived, possibly nothing
	ReadAvailable() ([]byte, error)
}

// Recorder receives a copy of every frame written and every non-empty read
type Recorder interface {
	Record(device string, outbound bool, data []byte)
}

// Session exchanges request frames for response bytes over a Channel.
// A Session is not safe for concurrent use; each worker owns one.
type Session struct {
	device      string
	ch          Channel
	maxAttempts int
	settleDelay time.Duration
	logger      *zap.Logger
	stats       *jfy.Statistics
	recorder    Recorder
}

// NewSession creates a session with the default retry budget
func NewSession(device string, ch Channel, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		device:      device,
		ch:          ch,
		maxAttempts: DefaultMaxAttempts,
		settleDelay: DefaultSettleDelay,
		logger:      logger.With(zap.String("device", device)),
		stats:       jfy.NewStatistics(),
	}
}

// SetRetry changes the number of attempts and the wait after each write
func (s *Session) SetRetry(maxAttempts int, settleDelay time.Duration) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if settleDelay < 0 {
		settleDelay = 0
	}
	s.maxAttempts = maxAttempts
	s.settleDelay = settleDelay
}

// SetRecorder installs r to receive raw traffic
func (s *Session) SetRecorder(r Recorder) {
	s.recorder = r
}

// Device returns the device name the session was created for
func (s *Session) Device() string {
	return s.device
}

// Statistics returns the exchange counters of this session
func (s *Session) Statistics() *jfy.Statistics {
	return s.stats
}

// Exchange writes request and returns the first non-empty read, trying up
// to the session's attempt budget. No response is not an error.
func (s *Session) Exchange(ctx context.Context, request []byte) ([]byte, bool) {
	return s.ExchangeAttempts(ctx, request, s.maxAttempts)
}

// ExchangeAttempts is Exchange with an explicit attempt budget
func (s *Session) ExchangeAttempts(ctx context.Context, request []byte, attempts int) ([]byte, bool) {
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			break
		}

		s.record(true, request)
		n, err := s.ch.Write(request)
		if err != nil {
			s.logger.Warn("write failed", zap.Int("attempt", attempt), zap.Error(err))
		} else if n != len(request) {
			s.stats.RecordShortWrite()
			s.logger.Warn("short write", zap.Int("attempt", attempt), zap.Int("written", n), zap.Int("length", len(request)))
		}

		if !sleep(ctx, s.settleDelay) {
			break
		}

		data, err := s.ch.ReadAvailable()
		if err != nil {
			s.logger.Warn("read failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if len(data) > 0 {
			s.record(false, data)
			s.stats.RecordExchange(true)
			return data, true
		}
	}

	s.stats.RecordExchange(false)
	s.logger.Debug("no response", zap.Int("attempts", attempts))
	return nil, false
}

// Request performs one exchange and decodes the reply. Frames with a
// checksum mismatch are returned alongside an error wrapping
// jfy.ErrChecksumMismatch.
func (s *Session) Request(ctx context.Context, request []byte) (*jfy.Frame, []byte, error) {
	return s.request(ctx, request, s.maxAttempts)
}

func (s *Session) request(ctx context.Context, request []byte, attempts int) (*jfy.Frame, []byte, error) {
	data, ok := s.ExchangeAttempts(ctx, request, attempts)
	if !ok {
		return nil, nil, ErrNoResponse
	}

	f, err := jfy.DecodeVerified(data)
	s.stats.RecordDecode(err)
	if err != nil {
		s.logger.Warn("unusable response", zap.String("data", jfy.FormatHex(data)), zap.Error(err))
	}
	return f, data, err
}

func (s *Session) record(outbound bool, data []byte) {
	if s.recorder != nil {
		s.recorder.Record(s.device, outbound, data)
	}
}

// sleep waits for d or until ctx is done. It returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
