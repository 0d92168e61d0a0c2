// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jfy

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	var sb strings.Builder

	timestamp := f.timestamp.Format("15:04:05.000")
	fmt.Fprintf(&sb, "[%s] src=0x%02X dst=0x%02X %s (0x%02X) %s len=%d\n",
		timestamp, f.source, f.destination, ControlName(f.control), uint8(f.control),
		FormatFunction(f.control, f.function), len(f.payload))

	if len(f.payload) == 0 {
		return sb.String()
	}

	fmt.Fprintf(&sb, "  data: %s\n", FormatHex(f.payload))
	if f.control == ControlRead && f.function == FuncQueryNormalInfoResponse {
		for _, field := range DecodeNormalInfoDump(f.payload) {
			fmt.Fprintf(&sb, "  %04X %s\n", field.Raw, field)
		}
	} else {
		fmt.Fprintf(&sb, "  text: %s\n", FormatPrintable(f.payload))
	}
	return sb.String()
}

// FormatFunction describes a function code with its direction
func FormatFunction(control ControlCode, code uint8) string {
	if !IsSupported(control) {
		return fmt.Sprintf("unsupported 0x%02X", code)
	}
	dir, ok := DirectionOf(control, code)
	if !ok {
		return fmt.Sprintf("unknown 0x%02X", code)
	}
	name, _ := FunctionName(control, code, dir)
	arrow := "controller->inverter"
	if dir == DirectionResponse {
		arrow = "inverter->controller"
	}
	return fmt.Sprintf("(%s) %s (0x%02X)", arrow, name, code)
}

// FormatHex renders bytes as space separated hex pairs
func FormatHex(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

// FormatPrintable renders bytes as text. Space becomes '.', and bytes
// outside the printable ASCII range are written as two hex digits.
func FormatPrintable(data []byte) string {
	var sb strings.Builder
	for _, b := range data {
		switch {
		case b < 0x20 || b > 0x7E:
			fmt.Fprintf(&sb, "%02x", b)
		case b == ' ':
			sb.WriteByte('.')
		default:
			sb.WriteByte(b)
		}
	}
	return sb.String()
}

// FormatReadings renders scaled readings on one line
func FormatReadings(r Readings) string {
	parts := make([]string, 0, NumQuantities)
	for q := Quantity(0); q < NumQuantities; q++ {
		parts = append(parts, fmt.Sprintf("%s=%.1f%s", q.Name(), r.Scaled(q), q.Unit()))
	}
	return strings.Join(parts, " ")
}
