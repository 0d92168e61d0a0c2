// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture stores raw inverter traffic as a stream of CBOR records.
package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Record is one chunk of traffic on a device
type Record struct {
	Time     time.Time `cbor:"1,keyasint"`
	Device   string    `cbor:"2,keyasint"`
	Outbound bool      `cbor:"3,keyasint"`
	Data     []byte    `cbor:"4,keyasint"`
}

// Writer appends records to a capture stream. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	enc    *cbor.Encoder
	closer io.Closer
	err    error
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
}

// NewWriter writes records to w
func NewWriter(w io.Writer) *Writer {
	cw := &Writer{enc: encMode.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		cw.closer = c
	}
	return cw
}

// Create opens path for appending and returns a Writer on it
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	return NewWriter(f), nil
}

// Write appends rec
func (w *Writer) Write(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(rec); err != nil {
		w.err = err
		return err
	}
	return nil
}

// Record appends a record stamped with the current time. Errors are kept
// and reported by Err and Close.
func (w *Writer) Record(device string, outbound bool, data []byte) {
	_ = w.Write(Record{
		Time:     time.Now(),
		Device:   device,
		Outbound: outbound,
		Data:     append([]byte(nil), data...),
	})
}

// Err returns the last write error
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close closes the underlying file, if any
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var err error
	if w.closer != nil {
		err = w.closer.Close()
	}
	return errors.Join(w.err, err)
}

// Reader reads records from a capture stream
type Reader struct {
	dec *cbor.Decoder
}

// NewReader reads records from r
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the stream
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("decode capture record: %w", err)
	}
	return rec, nil
}

// ReadAll returns every record in r
func ReadAll(r io.Reader) ([]Record, error) {
	reader := NewReader(r)
	var records []Record
	for {
		rec, err := reader.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}
