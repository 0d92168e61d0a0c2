// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jfy

import (
	"fmt"
	"time"
)

// Scanner states
const (
	stateIdle = iota
	stateHeader2
	stateSource
	stateDestination
	stateControl
	stateFunction
	stateLength
	statePayload
	stateChecksum1
	stateChecksum2
	stateTrailer1
	stateTrailer2
)

// Scanner finds frames in an unframed byte stream such as a sniffed
// serial line or a raw capture file.
//
// A stray 0xA5 just before a real header makes the header ambiguous. The
// scanner keeps the bytes of the frame it is assembling and, when the
// candidate turns out to be bogus (a control byte that is not a JFY
// control code, or a checksum mismatch on a candidate starting A5 A5 A5),
// drops the first byte and scans the rest again.
type Scanner struct {
	state   int
	frame   *Frame
	length  int
	raw     []byte // bytes of the candidate frame
	offset  int64  // stream offset of the next byte
	start   int64  // stream offset of the current frame
	skipped int64
	results []ScanResult
}

// ScanResult is a frame found in the stream.
// Err wraps ErrChecksumMismatch when the frame failed its integrity check.
type ScanResult struct {
	Frame  *Frame
	Offset int64
	Err    error
}

// NewScanner creates a new stream scanner
func NewScanner() *Scanner {
	return &Scanner{state: stateIdle}
}

// Reset drops any partial frame
func (s *Scanner) Reset() {
	s.state = stateIdle
	s.frame = nil
	s.length = 0
	s.raw = s.raw[:0]
}

// Skipped returns how many bytes were discarded outside of frames
func (s *Scanner) Skipped() int64 {
	return s.skipped
}

// Offset returns the stream offset of the next byte
func (s *Scanner) Offset() int64 {
	return s.offset
}

// DecodeByte processes a single byte and returns the frames it completed.
// Usually that is none or one; after a resynchronisation a single byte
// can complete several. Frames with a bad checksum are returned with Err set.
func (s *Scanner) DecodeByte(b byte) []ScanResult {
	s.results = nil
	s.step(b)
	return s.results
}

// Feed scans data and returns every frame completed by it
func (s *Scanner) Feed(data []byte) []ScanResult {
	var results []ScanResult
	for _, b := range data {
		results = append(results, s.DecodeByte(b)...)
	}
	return results
}

func (s *Scanner) step(b byte) {
	pos := s.offset
	s.offset++
	if s.state >= stateHeader2 && s.state <= stateChecksum2 {
		s.raw = append(s.raw, b)
	}

	switch s.state {
	case stateIdle:
		if b == HeaderByte {
			s.start = pos
			s.raw = append(s.raw[:0], b)
			s.state = stateHeader2
			return
		}
		s.skipped++

	case stateHeader2:
		if b != HeaderByte {
			s.skipped += 2
			s.Reset()
			return
		}
		s.frame = &Frame{}
		s.state = stateSource

	case stateSource:
		s.frame.source = b
		s.state = stateDestination

	case stateDestination:
		s.frame.destination = b
		s.state = stateControl

	case stateControl:
		if !isControlCode(ControlCode(b)) {
			s.resync()
			return
		}
		s.frame.control = ControlCode(b)
		s.state = stateFunction

	case stateFunction:
		s.frame.function = b
		s.state = stateLength

	case stateLength:
		s.length = int(b)
		s.frame.payload = make([]byte, 0, s.length)
		if s.length == 0 {
			s.state = stateChecksum1
		} else {
			s.state = statePayload
		}

	case statePayload:
		s.frame.payload = append(s.frame.payload, b)
		if len(s.frame.payload) >= s.length {
			s.state = stateChecksum1
		}

	case stateChecksum1:
		s.frame.checksum = uint16(b) << 8
		s.state = stateChecksum2

	case stateChecksum2:
		f := s.frame
		f.checksum |= uint16(b)
		f.timestamp = time.Now()

		res := VerifyChecksum(f)
		if !res.OK && s.raw[2] == HeaderByte {
			// A5 A5 A5: the real header may start one byte later
			s.resync()
			return
		}
		s.Reset()
		s.state = stateTrailer1

		var err error
		if !res.OK {
			err = fmt.Errorf("%w: expected 0x%04X, found 0x%04X", ErrChecksumMismatch, res.Expected, res.Found)
		}
		s.results = append(s.results, ScanResult{Frame: f, Offset: s.start, Err: err})

	case stateTrailer1, stateTrailer2:
		if (s.state == stateTrailer1 && b == TrailerByte1) || (s.state == stateTrailer2 && b == TrailerByte2) {
			s.state++
			if s.state > stateTrailer2 {
				s.state = stateIdle
			}
			return
		}
		// missing trailer: the byte may start the next frame
		s.state = stateIdle
		s.offset--
		s.step(b)

	default:
		s.Reset()
	}
}

// resync discards the first byte of the candidate frame and scans the
// remaining candidate bytes again
func (s *Scanner) resync() {
	replay := append([]byte(nil), s.raw[1:]...)
	s.offset = s.start + 1
	s.skipped++
	s.Reset()
	for _, b := range replay {
		s.step(b)
	}
}

func isControlCode(c ControlCode) bool {
	return c >= ControlRegister && c <= ControlExecute
}
