// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sink delivers inverter readings to log files, stores and services.
package sink

import (
	"context"
	"errors"
	"time"

	"github.com/jmcp/jfy-monitor/pkg/jfy"
)

// Sample is one poll result of one inverter
type Sample struct {
	Name     string
	Device   string
	Serial   string
	Address  uint8
	Time     time.Time
	Readings jfy.Readings
}

// Sink accepts samples. Samples whose readings are all zero mean the poll
// produced nothing usable; each sink decides whether to keep them.
type Sink interface {
	Write(ctx context.Context, s Sample) error
	Close() error
}

// Multi writes every sample to each of its sinks
type Multi []Sink

// Write forwards s to every sink and joins their errors
func (m Multi) Write(ctx context.Context, s Sample) error {
	var errs []error
	for _, sk := range m {
		if err := sk.Write(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors
func (m Multi) Close() error {
	var errs []error
	for _, sk := range m {
		if err := sk.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shared wraps a sink used by several workers so that only its owner closes it
type Shared struct {
	Sink
}

// Close does nothing; the owner closes the wrapped sink
func (Shared) Close() error {
	return nil
}
