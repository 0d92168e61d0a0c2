// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link opens the byte channels used to talk to inverters: a local
// serial port or a WebSocket serial bridge.
package link

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultBaudRate is the line speed of JFY inverters
const DefaultBaudRate = 9600

// Link is an open byte channel to one inverter
type Link interface {
	Write(p []byte) (int, error)
	ReadAvailable() ([]byte, error)
	Close() error
	String() string
}

// Options configures Open
type Options struct {
	BaudRate int

	// WebSocket bridges only
	Username      string
	Password      string
	SkipSSLVerify bool
}

// IsWebSocket reports whether devname names a WebSocket bridge
func IsWebSocket(devname string) bool {
	return strings.HasPrefix(devname, "ws://") || strings.HasPrefix(devname, "wss://")
}

// Open opens a serial port or, for ws:// and wss:// names, a WebSocket bridge
func Open(devname string, opts Options) (Link, error) {
	if devname == "" {
		return nil, fmt.Errorf("no device given")
	}
	if IsWebSocket(devname) {
		if _, err := url.Parse(devname); err != nil {
			return nil, fmt.Errorf("invalid URL: %v", err)
		}
		return OpenWebSocket(devname, opts.Username, opts.Password, opts.SkipSSLVerify)
	}
	baud := opts.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	return OpenSerial(devname, baud)
}
