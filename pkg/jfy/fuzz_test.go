// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jfy

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomFrame returns random frame fields with a payload of 0-255 bytes
func randomFrame(rng *rand.Rand) (src, dst uint8, ctrl ControlCode, fn uint8, payload []byte) {
	payload = make([]byte, rng.Intn(MaxPayload+1))
	rng.Read(payload)
	return uint8(rng.Intn(256)), uint8(rng.Intn(256)), ControlCode(0x30 + rng.Intn(4)), uint8(rng.Intn(256)), payload
}

// ============================================================
// Codec Fuzz Tests
// ============================================================

// TestFuzzRoundTrip encodes random frames and checks every field survives decoding
func TestFuzzRoundTrip(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		src, dst, ctrl, fn, payload := randomFrame(rng)
		data, err := Encode(src, dst, ctrl, fn, payload)
		if err != nil {
			t.Fatalf("Round %d: Encode() error = %v", i, err)
		}
		if len(data) != Overhead+len(payload) {
			t.Fatalf("Round %d: frame length %d, want %d", i, len(data), Overhead+len(payload))
		}

		f, err := Decode(data)
		if err != nil {
			t.Fatalf("Round %d: Decode() error = %v", i, err)
		}
		if f.Source() != src || f.Destination() != dst || f.Control() != ctrl || f.Function() != fn {
			t.Fatalf("Round %d: header mismatch", i)
		}
		if !bytes.Equal(f.Payload(), payload) {
			t.Fatalf("Round %d: payload mismatch", i)
		}
		if !VerifyChecksum(f).OK {
			t.Fatalf("Round %d: checksum not ok", i)
		}
	}
}

// TestFuzzSingleByteCorruption flips one byte between the header and the
// checksum. A single byte changes the sum by at most 255, so the additive
// checksum always notices. The length byte is left alone since changing it
// moves the checksum field itself.
func TestFuzzSingleByteCorruption(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		src, dst, ctrl, fn, payload := randomFrame(rng)
		data := MustEncode(src, dst, ctrl, fn, payload)

		positions := []int{2, 3, 4, 5}
		for p := 0; p < len(payload); p++ {
			positions = append(positions, payloadOffset+p)
		}
		pos := positions[rng.Intn(len(positions))]
		data[pos] ^= byte(rng.Intn(255) + 1)

		f, err := Decode(data)
		if err != nil {
			t.Fatalf("Round %d: Decode() error = %v", i, err)
		}
		if VerifyChecksum(f).OK {
			t.Fatalf("Round %d: corruption at byte %d not detected", i, pos)
		}
	}
}

// TestFuzzDecodeRandomBytes feeds random bytes to Decode and verifies it
// never panics and only fails with the structural errors
func TestFuzzDecodeRandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		data := make([]byte, rng.Intn(300))
		rng.Read(data)
		if len(data) >= 2 && rng.Intn(2) == 0 {
			data[0], data[1] = HeaderByte, HeaderByte
		}

		_, err := Decode(data)
		if err != nil && !errors.Is(err, ErrMalformedHeader) && !errors.Is(err, ErrTruncatedPayload) {
			t.Fatalf("Round %d: unexpected error %v", i, err)
		}
	}
}

// TestFuzzScannerRandomBytes feeds random bytes to the scanner and
// verifies it doesn't crash or panic
func TestFuzzScannerRandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		s := NewScanner()
		data := make([]byte, rng.Intn(512)+1)
		rng.Read(data)
		for _, b := range data {
			s.DecodeByte(b)
		}
	}
}

// TestFuzzScannerFramesInNoise embeds a valid frame in random noise
func TestFuzzScannerFramesInNoise(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		noise := make([]byte, rng.Intn(32))
		rng.Read(noise)
		for j := range noise {
			if noise[j] == HeaderByte {
				noise[j] = 0x00
			}
		}
		src, dst, ctrl, fn, payload := randomFrame(rng)
		frame := MustEncode(src, dst, ctrl, fn, payload)

		s := NewScanner()
		s.Feed(noise)
		results := s.Feed(frame)
		if len(results) != 1 {
			t.Fatalf("Round %d: found %d frames, want 1", i, len(results))
		}
		if results[0].Err != nil {
			t.Fatalf("Round %d: %v", i, results[0].Err)
		}
		if results[0].Offset != int64(len(noise)) {
			t.Fatalf("Round %d: offset %d, want %d", i, results[0].Offset, len(noise))
		}
	}
}
