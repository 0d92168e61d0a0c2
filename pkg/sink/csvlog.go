// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/jmcp/jfy-monitor/pkg/jfy"
)

// timestampLayout is the first column of every log line
const timestampLayout = "2006-01-02T15:04:05"

// CSVLog appends one line per sample to <root>/<serial>/YYYY/MM/DD,
// starting a new file when the date changes. Zero readings are logged too.
type CSVLog struct {
	root string

	mu   sync.Mutex
	path string
	file *os.File
}

// NewCSVLog creates a log rooted at root
func NewCSVLog(root string) *CSVLog {
	return &CSVLog{root: root}
}

// PathFor returns the file a sample is written to
func (c *CSVLog) PathFor(s Sample) string {
	serial := s.Serial
	if serial == "" {
		serial = "unknown"
	}
	return filepath.Join(c.root, serial, s.Time.Format("2006"), s.Time.Format("01"), s.Time.Format("02"))
}

// Write appends s to the file for its date
func (c *CSVLog) Write(_ context.Context, s Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.rotate(c.PathFor(s)); err != nil {
		return err
	}

	record := make([]string, 0, jfy.NumQuantities+1)
	record = append(record, s.Time.Format(timestampLayout))
	for _, v := range s.Readings.Values() {
		record = append(record, strconv.FormatFloat(v, 'f', 1, 64))
	}

	w := csv.NewWriter(c.file)
	if err := w.Write(record); err != nil {
		return fmt.Errorf("write %s: %w", c.path, err)
	}
	w.Flush()
	return w.Error()
}

// rotate makes path the current file. Caller holds mu.
func (c *CSVLog) rotate(path string) error {
	if path == c.path && c.file != nil {
		return nil
	}
	if c.file != nil {
		c.file.Close()
		c.file = nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	c.path = path
	c.file = f
	return nil
}

// Close closes the current file
func (c *CSVLog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	c.path = ""
	return err
}
