// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jfy

import "strings"

// isSerialChar reports whether c may appear in a device serial number
func isSerialChar(c byte) bool {
	return c == '-' ||
		(c >= '0' && c <= '9') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z')
}

// SerialNumber turns the raw serial bytes sent by an inverter into a
// printable identifier. Bytes outside [-0-9A-Za-z] are dropped and
// trailing whitespace trimmed.
func SerialNumber(raw []byte) string {
	var sb strings.Builder
	sb.Grow(len(raw))
	for _, c := range raw {
		if isSerialChar(c) {
			sb.WriteByte(c)
		}
	}
	return strings.TrimRight(sb.String(), " \t\r\n")
}
