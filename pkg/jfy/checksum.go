// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jfy

// Checksum computes the frame checksum over data: 1 + (sum XOR 0xFFFF).
// The sum is accumulated without masking; only the result is truncated.
func Checksum(data []byte) uint16 {
	sum := 0
	for _, b := range data {
		sum += int(b)
	}
	return uint16((sum ^ 0xFFFF) + 1)
}

// ChecksumResult is the outcome of VerifyChecksum
type ChecksumResult struct {
	OK       bool
	Expected uint16
	Found    uint16
}

// VerifyChecksum recomputes the checksum of f and compares it with the
// value carried on the wire. Both values are always reported.
func VerifyChecksum(f *Frame) ChecksumResult {
	expected := Checksum(f.checksummed())
	return ChecksumResult{
		OK:       expected == f.checksum,
		Expected: expected,
		Found:    f.checksum,
	}
}
