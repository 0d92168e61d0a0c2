// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jfy

import "time"

// Frame represents one JFY protocol frame
type Frame struct {
	source      uint8
	destination uint8
	control     ControlCode
	function    uint8
	payload     []byte
	checksum    uint16
	timestamp   time.Time
}

// NewFrame creates a frame and computes its checksum.
// Payloads longer than MaxPayload are truncated.
func NewFrame(source, destination uint8, control ControlCode, function uint8, payload []byte) *Frame {
	if len(payload) > MaxPayload {
		payload = payload[:MaxPayload]
	}
	f := &Frame{
		source:      source,
		destination: destination,
		control:     control,
		function:    function,
		payload:     append([]byte(nil), payload...),
		timestamp:   time.Now(),
	}
	f.checksum = Checksum(f.checksummed())
	return f
}

// checksummed returns the bytes covered by the checksum: header through payload
func (f *Frame) checksummed() []byte {
	buf := make([]byte, 0, HeaderSize+len(f.payload))
	buf = append(buf, HeaderByte, HeaderByte, f.source, f.destination, byte(f.control), f.function, byte(len(f.payload)))
	return append(buf, f.payload...)
}

// Source returns the sender address
func (f *Frame) Source() uint8 {
	return f.source
}

// Destination returns the recipient address
func (f *Frame) Destination() uint8 {
	return f.destination
}

// Control returns the control code
func (f *Frame) Control() ControlCode {
	return f.control
}

// Function returns the function code
func (f *Frame) Function() uint8 {
	return f.function
}

// Length returns the declared data length
func (f *Frame) Length() uint8 {
	return uint8(len(f.payload))
}

// Payload returns a copy of the data payload
func (f *Frame) Payload() []byte {
	return append([]byte(nil), f.payload...)
}

// Checksum returns the checksum carried by the frame
func (f *Frame) Checksum() uint16 {
	return f.checksum
}

// Timestamp returns when the frame was built or decoded
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// IsBroadcast returns true if the frame is addressed to every device
func (f *Frame) IsBroadcast() bool {
	return f.destination == AddressBroadcast
}

// Direction classifies the frame by its function code range
func (f *Frame) Direction() (Direction, bool) {
	return DirectionOf(f.control, f.function)
}

// FunctionName returns the registry name of the frame's function code
func (f *Frame) FunctionName() (string, bool) {
	dir, ok := f.Direction()
	if !ok {
		return "", false
	}
	return FunctionName(f.control, f.function, dir)
}

// Bytes returns the wire representation, keeping the carried checksum
func (f *Frame) Bytes() []byte {
	buf := f.checksummed()
	buf = append(buf, byte(f.checksum>>8), byte(f.checksum))
	return append(buf, TrailerByte1, TrailerByte2)
}
