// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jfy

import "fmt"

// ViolationType identifies which part of a frame broke expectations
type ViolationType int

const (
	ViolationSource ViolationType = iota
	ViolationDestination
	ViolationControl
	ViolationChecksum
	ViolationAck
)

func (t ViolationType) String() string {
	switch t {
	case ViolationSource:
		return "source"
	case ViolationDestination:
		return "destination"
	case ViolationControl:
		return "control"
	case ViolationChecksum:
		return "checksum"
	case ViolationAck:
		return "ack"
	default:
		return fmt.Sprintf("ViolationType(%d)", int(t))
	}
}

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    ViolationType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// Expectation lists what a reply frame must look like
type Expectation struct {
	Source      uint8
	Destination uint8
	Control     ControlCode
	RequireAck  bool
}

// ValidateFrame checks f against want.
// Returns a slice of validation errors (empty if the frame is acceptable).
func ValidateFrame(f *Frame, want Expectation) []ValidationError {
	errors := []ValidationError{}

	if f.source != want.Source {
		errors = append(errors, ValidationError{
			Type:    ViolationSource,
			Message: fmt.Sprintf("source address 0x%02X, expected 0x%02X", f.source, want.Source),
			Details: map[string]interface{}{"got": f.source, "want": want.Source},
		})
	}
	if f.destination != want.Destination {
		errors = append(errors, ValidationError{
			Type:    ViolationDestination,
			Message: fmt.Sprintf("destination address 0x%02X, expected 0x%02X", f.destination, want.Destination),
			Details: map[string]interface{}{"got": f.destination, "want": want.Destination},
		})
	}
	if f.control != want.Control {
		errors = append(errors, ValidationError{
			Type:    ViolationControl,
			Message: fmt.Sprintf("control code %s, expected %s", ControlName(f.control), ControlName(want.Control)),
			Details: map[string]interface{}{"got": uint8(f.control), "want": uint8(want.Control)},
		})
	}
	if res := VerifyChecksum(f); !res.OK {
		errors = append(errors, ValidationError{
			Type:    ViolationChecksum,
			Message: fmt.Sprintf("checksum 0x%04X, expected 0x%04X", res.Found, res.Expected),
			Details: map[string]interface{}{"found": res.Found, "expected": res.Expected},
		})
	}
	if want.RequireAck {
		switch {
		case len(f.payload) == 0:
			errors = append(errors, ValidationError{
				Type:    ViolationAck,
				Message: "acknowledgment byte missing",
			})
		case f.payload[0] != AckByte:
			errors = append(errors, ValidationError{
				Type:    ViolationAck,
				Message: fmt.Sprintf("acknowledgment byte 0x%02X, expected 0x%02X", f.payload[0], AckByte),
				Details: map[string]interface{}{"got": f.payload[0]},
			})
		}
	}

	return errors
}
