// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jfy

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMalformedHeader is returned when the fixed header is missing or wrong
	ErrMalformedHeader = errors.New("malformed header")
	// ErrTruncatedPayload is returned when fewer bytes arrived than the header declares
	ErrTruncatedPayload = errors.New("truncated payload")
	// ErrChecksumMismatch reports a structurally valid frame failing its integrity check
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// DecodeError describes a structural decode failure
type DecodeError struct {
	Err  error
	Need int
	Have int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v: need %d bytes, have %d", e.Err, e.Need, e.Have)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode parses one frame from the start of data. The checksum is not
// verified here; use VerifyChecksum. Trailing bytes, including the
// trailer, are ignored.
func Decode(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, &DecodeError{Err: ErrMalformedHeader, Need: HeaderSize, Have: len(data)}
	}
	if data[0] != HeaderByte || data[1] != HeaderByte {
		return nil, fmt.Errorf("%w: got 0x%02X 0x%02X", ErrMalformedHeader, data[0], data[1])
	}

	length := int(data[lengthOffset])
	need := HeaderSize + length + ChecksumSize
	if len(data) < need {
		return nil, &DecodeError{Err: ErrTruncatedPayload, Need: need, Have: len(data)}
	}

	end := payloadOffset + length
	return &Frame{
		source:      data[2],
		destination: data[3],
		control:     ControlCode(data[4]),
		function:    data[5],
		payload:     append([]byte(nil), data[payloadOffset:end]...),
		checksum:    uint16(data[end])<<8 | uint16(data[end+1]),
		timestamp:   time.Now(),
	}, nil
}

// DecodeVerified decodes data and rejects frames whose checksum does not match
func DecodeVerified(data []byte) (*Frame, error) {
	f, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if res := VerifyChecksum(f); !res.OK {
		return f, fmt.Errorf("%w: expected 0x%04X, found 0x%04X", ErrChecksumMismatch, res.Expected, res.Found)
	}
	return f, nil
}
