// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jfy

import (
	"encoding/binary"
	"fmt"
)

// fieldInfo labels one word of a QueryNormalInfo response in the vendor field table
type fieldInfo struct {
	name       string
	multiplier float64
	unit       string
	opmode     bool
}

// normalInfoFields is keyed by word index. This table is only used for
// diagnostics and does not agree with the poll readings on every word.
var normalInfoFields = map[int]fieldInfo{
	0x00: {"Inverter internal temperature", 0.1, "degrees C", false},
	0x01: {"PV1 voltage", 0.1, "Volts", false},
	0x02: {"PV2 voltage", 0.1, "Volts", false},
	0x03: {"PV3 voltage", 0.1, "Volts", false},
	0x04: {"PV1 current", 0.1, "Amps", false},
	0x05: {"PV2 current", 0.1, "Amps", false},
	0x06: {"PV3 current", 0.1, "Amps", false},
	0x07: {"Total energy to grid (H)", 0.1, "KW/hr", false},
	0x08: {"Total energy to grid (L)", 0.1, "KW/hr", false},
	0x09: {"Total operating hours (H)", 1, "Hours", false},
	0x0A: {"Total operating hours (L)", 1, "Hours", false},
	0x0B: {"Total power to grid", 1, "Watts", false},
	0x0C: {"Operating mode", 1, "", true},
	0x0D: {"Energy generated today", 0.01, "KW/hr", false},
	0x0E: {"PV4 voltage", 0.1, "Volts", false},
	0x0F: {"PV5 voltage", 0.1, "Volts", false},
	0x10: {"PV6 voltage", 0.1, "Volts", false},
	0x11: {"PV4 current", 0.1, "Amps", false},
	0x12: {"PV5 current", 0.1, "Amps", false},
	0x13: {"PV6 current", 0.1, "Amps", false},
	0x14: {"PV7 voltage", 0.1, "Volts", false},
	0x15: {"PV8 voltage", 0.1, "Volts", false},
	0x16: {"PV9 voltage", 0.1, "Volts", false},
	0x17: {"PV7 current", 0.1, "Amps", false},
	0x18: {"PV8 current", 0.1, "Amps", false},
	0x19: {"PV9 current", 0.1, "Amps", false},

	0x39: {"Temperature fault value", 0.1, "degrees C", false},
	0x3A: {"PV1 voltage fault value", 0.1, "Volts", false},
	0x3B: {"PV2 voltage fault value", 0.1, "Volts", false},
	0x3C: {"PV3 voltage fault value", 0.1, "Volts", false},
	0x3D: {"Grid fault current value", 0.001, "Amps", false},
	0x3E: {"Error message (H)", 1, "", false},
	0x3F: {"Error message (L)", 1, "", false},

	// R phase
	0x40: {"RPhase PV voltage", 0.1, "Volts", false},
	0x41: {"RPhase Current to grid", 0.1, "Amps", false},
	0x42: {"RPhase Grid voltage", 0.1, "Volts", false},
	0x43: {"RPhase Grid frequency", 0.01, "Hertz", false},
	0x44: {"RPhase Power to grid", 1, "Watts", false},
	0x45: {"RPhase Grid impedance", 0.001, "Ohm", false},
	0x46: {"RPhase PV current", 0.1, "Amps", false},
	0x47: {"RPhase Energy to grid (H)", 0.1, "KW/hr", false},
	0x48: {"RPhase Energy to grid (L)", 0.1, "KW/hr", false},
	0x49: {"RPhase Total operating hours (H)", 1, "Hours", false},
	0x4A: {"RPhase Total operating hours (L)", 1, "Hours", false},
	0x4B: {"RPhase Power on time", 1, "", false},
	0x4C: {"RPhase Operating mode", 1, "", true},

	0x78: {"Grid voltage fault value", 0.1, "Volts", false},
	0x79: {"Grid frequency fault value", 0.01, "Hertz", false},
	0x7A: {"Grid impedance fault value", 0.001, "Ohm", false},
	0x7B: {"Temperature fault value", 0.1, "degrees C", false},
	0x7C: {"PV1 voltage fault value", 0.1, "Volts", false},
	0x7D: {"Grid fault current value", 0.001, "Amps", false},
	0x7E: {"Error message H", 1, "", false},
	0x7F: {"Error message L", 1, "", false},
}

// OperatingMode is the inverter state reported in the operating mode words
type OperatingMode uint16

// Operating modes
const (
	ModeWaiting        OperatingMode = 0
	ModeNormal         OperatingMode = 1
	ModeFaultTransient OperatingMode = 2
	ModeFaultPermanent OperatingMode = 3
)

func (m OperatingMode) String() string {
	switch m {
	case ModeWaiting:
		return "Waiting"
	case ModeNormal:
		return "Normal"
	case ModeFaultTransient:
		return "Fault (transient)"
	case ModeFaultPermanent:
		return "Fault (permanent)"
	default:
		return fmt.Sprintf("Unknown mode (0x%04X)", uint16(m))
	}
}

// DumpField is one labelled word of a diagnostic dump
type DumpField struct {
	Index int
	Name  string
	Raw   uint16
	Value float64
	Unit  string
	Known bool
	Mode  string // set for operating mode words
}

func (f DumpField) String() string {
	if f.Mode != "" {
		return fmt.Sprintf("%-34s %s", f.Name, f.Mode)
	}
	if !f.Known {
		return fmt.Sprintf("%-34s 0x%04X", f.Name, f.Raw)
	}
	return fmt.Sprintf("%-34s %g %s", f.Name, f.Value, f.Unit)
}

// DecodeNormalInfoDump labels every word of a QueryNormalInfo response
// payload. A trailing odd byte is ignored.
func DecodeNormalInfoDump(payload []byte) []DumpField {
	fields := make([]DumpField, 0, len(payload)/2)
	for i := 0; i+1 < len(payload); i += 2 {
		idx := i / 2
		raw := binary.BigEndian.Uint16(payload[i : i+2])
		info, ok := normalInfoFields[idx]
		if !ok {
			fields = append(fields, DumpField{
				Index: idx,
				Name:  fmt.Sprintf("word 0x%02X", idx),
				Raw:   raw,
				Value: float64(raw),
			})
			continue
		}
		field := DumpField{
			Index: idx,
			Name:  info.name,
			Raw:   raw,
			Value: float64(raw) * info.multiplier,
			Unit:  info.unit,
			Known: true,
		}
		if info.opmode {
			field.Mode = OperatingMode(raw).String()
		}
		fields = append(fields, field)
	}
	return fields
}
