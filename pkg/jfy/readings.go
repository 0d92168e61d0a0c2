// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jfy

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortPayload is returned when a QueryNormalInfo payload is too short to hold every reading
var ErrShortPayload = errors.New("short normal info payload")

// Quantity identifies one of the readings taken on every poll
type Quantity int

// Quantities, in log column order
const (
	Temperature Quantity = iota
	PowerGenerated
	VoltageDC
	Current
	EnergyGenerated
	VoltageAC
	NumQuantities
)

// quantityInfo describes where a quantity lives in the payload and how to scale it
type quantityInfo struct {
	name    string
	stat    string
	unit    string
	word    int
	divisor float64
}

// Words 4 and 6 are not read; they were found to be unreliable on the
// inverters this was built against.
//
// The energy counter counts 100 Wh per step. Its vendor divisor of 0.1
// gives a scaled value in units of 10 Wh.
var quantities = [NumQuantities]quantityInfo{
	Temperature:     {"temperature", "temperature", "°C", 0, 10.0},
	PowerGenerated:  {"powerGenerated", "power-generated", "W", 1, 10.0},
	VoltageDC:       {"voltageDC", "voltage-dc", "V", 2, 10.0},
	Current:         {"current", "current", "A", 3, 10.0},
	EnergyGenerated: {"energyGenerated", "energy-generated", "10Wh", 5, 0.1},
	VoltageAC:       {"voltageAC", "voltage-ac", "V", 7, 10.0},
}

// normalInfoMinLength is the number of payload bytes needed for the last quantity
const normalInfoMinLength = 16

// Name returns the camel case name of the quantity
func (q Quantity) Name() string {
	if q < 0 || q >= NumQuantities {
		return fmt.Sprintf("quantity(%d)", int(q))
	}
	return quantities[q].name
}

// Stat returns the statistic name used by sinks
func (q Quantity) Stat() string {
	if q < 0 || q >= NumQuantities {
		return fmt.Sprintf("quantity-%d", int(q))
	}
	return quantities[q].stat
}

// Unit returns the physical unit of the scaled value
func (q Quantity) Unit() string {
	if q < 0 || q >= NumQuantities {
		return ""
	}
	return quantities[q].unit
}

// Divisor returns the fixed scale factor of the quantity
func (q Quantity) Divisor() float64 {
	if q < 0 || q >= NumQuantities {
		return 1
	}
	return quantities[q].divisor
}

func (q Quantity) String() string {
	return q.Name()
}

// Readings holds the raw values of one poll
type Readings struct {
	raw [NumQuantities]uint16
}

// NewReadings builds Readings from raw values in quantity order
func NewReadings(raw [NumQuantities]uint16) Readings {
	return Readings{raw: raw}
}

// ZeroReadings is the value used when a poll produced nothing usable
func ZeroReadings() Readings {
	return Readings{}
}

// Raw returns the unscaled value of q
func (r Readings) Raw(q Quantity) uint16 {
	if q < 0 || q >= NumQuantities {
		return 0
	}
	return r.raw[q]
}

// Scaled returns raw / divisor for q
func (r Readings) Scaled(q Quantity) float64 {
	return Scale(r.Raw(q), q.Divisor())
}

// Values returns every scaled value in quantity order
func (r Readings) Values() []float64 {
	values := make([]float64, NumQuantities)
	for q := Quantity(0); q < NumQuantities; q++ {
		values[q] = r.Scaled(q)
	}
	return values
}

// IsZero reports whether every raw value is zero
func (r Readings) IsZero() bool {
	return r.raw == [NumQuantities]uint16{}
}

// Scale converts a raw reading to physical units
func Scale(raw uint16, divisor float64) float64 {
	return float64(raw) / divisor
}

// DecodeNormalInfo extracts the readings from a QueryNormalInfo response payload
func DecodeNormalInfo(payload []byte) (Readings, error) {
	if len(payload) < normalInfoMinLength {
		return ZeroReadings(), fmt.Errorf("%w: %d bytes (need %d)", ErrShortPayload, len(payload), normalInfoMinLength)
	}
	var r Readings
	for q := Quantity(0); q < NumQuantities; q++ {
		off := quantities[q].word * 2
		r.raw[q] = binary.BigEndian.Uint16(payload[off : off+2])
	}
	return r, nil
}
