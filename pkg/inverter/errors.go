// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package inverter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jmcp/jfy-monitor/pkg/jfy"
)

var (
	// ErrNoResponse means no attempt of an exchange read anything back
	ErrNoResponse = errors.New("no response")
	// ErrProtocolViolation means a handshake reply was not the frame we asked for
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrAddressSpaceExhausted means every assignable address is taken
	ErrAddressSpaceExhausted = errors.New("address space exhausted")
)

// RegistrationError explains why a device ended up Abandoned
type RegistrationError struct {
	Device     string
	State      State // state the handshake was in when it failed
	Err        error
	Frame      []byte
	Violations []jfy.ValidationError
}

func (e *RegistrationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "register %s: %s: %v", e.Device, e.State, e.Err)
	for i, v := range e.Violations {
		if i == 0 {
			sb.WriteString(": ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(v.Message)
	}
	if len(e.Frame) > 0 {
		fmt.Fprintf(&sb, " (frame %s)", jfy.FormatHex(e.Frame))
	}
	return sb.String()
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another handshake round may succeed
func (e *RegistrationError) Retryable() bool {
	return errors.Is(e.Err, ErrNoResponse)
}
