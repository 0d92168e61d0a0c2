// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// drainTimeout bounds each read while collecting what is already buffered
const drainTimeout = 50 * time.Millisecond

// Serial wraps a serial port. On unix the port is opened with exclusive
// access so no other process can write to the same line.
type Serial struct {
	port     serial.Port
	name     string
	baudRate int
	buf      []byte
}

// OpenSerial opens a serial port at baudRate, 8N1
func OpenSerial(portName string, baudRate int) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %v", portName, err)
	}
	if err := port.SetReadTimeout(drainTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %v", portName, err)
	}

	return &Serial{port: port, name: portName, baudRate: baudRate, buf: make([]byte, 256)}, nil
}

func (s *Serial) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// ReadAvailable reads until the line goes quiet for drainTimeout
func (s *Serial) ReadAvailable() ([]byte, error) {
	var out []byte
	for {
		n, err := s.port.Read(s.buf)
		if err != nil {
			return out, err
		}
		if n == 0 {
			return out, nil
		}
		out = append(out, s.buf[:n]...)
	}
}

func (s *Serial) Close() error {
	return s.port.Close()
}

func (s *Serial) String() string {
	return fmt.Sprintf("Serial: %s @ %d baud", s.name, s.baudRate)
}
