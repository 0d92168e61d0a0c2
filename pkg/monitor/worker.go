// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/jmcp/jfy-monitor/pkg/inverter"
	"github.com/jmcp/jfy-monitor/pkg/jfy"
	"github.com/jmcp/jfy-monitor/pkg/link"
	"github.com/jmcp/jfy-monitor/pkg/sink"
	"go.uber.org/zap"
)

// EventKind says what happened to a worker
type EventKind int

const (
	EventRegistered EventKind = iota
	EventAbandoned
	EventReading
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventRegistered:
		return "registered"
	case EventAbandoned:
		return "abandoned"
	case EventReading:
		return "reading"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event reports worker progress to an observer such as the dashboard
type Event struct {
	Kind     EventKind
	Time     time.Time
	Name     string
	Device   string
	Inverter *inverter.Inverter
	Readings jfy.Readings
	Stats    jfy.StatisticsSnapshot
	Err      error
}

// WorkerOptions tunes one worker
type WorkerOptions struct {
	PollInterval     time.Duration
	RegisterAttempts int
	Oneshot          bool
}

// Worker owns one inverter channel: it registers the inverter and then
// polls it, handing every sample to its sinks
type Worker struct {
	name    string
	link    link.Link
	session *inverter.Session
	table   *inverter.AddressTable
	sinks   sink.Sink
	opts    WorkerOptions
	events  chan<- Event
	logger  *zap.Logger

	inv *inverter.Inverter
}

// NewWorker creates a worker talking through session over l. Closing the
// worker closes l and sinks.
func NewWorker(name string, l link.Link, session *inverter.Session, table *inverter.AddressTable, sinks sink.Sink, opts WorkerOptions, events chan<- Event, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RegisterAttempts < 1 {
		opts.RegisterAttempts = 1
	}
	return &Worker{
		name:    name,
		link:    l,
		session: session,
		table:   table,
		sinks:   sinks,
		opts:    opts,
		events:  events,
		logger:  logger.With(zap.String("inverter", name), zap.String("device", session.Device())),
	}
}

// Name returns the configured display name
func (w *Worker) Name() string {
	return w.name
}

// Inverter returns the registered inverter, or nil before registration
func (w *Worker) Inverter() *inverter.Inverter {
	return w.inv
}

// Session returns the worker's session
func (w *Worker) Session() *inverter.Session {
	return w.session
}

// Register runs the handshake, repeating it after silence up to the
// configured number of rounds
func (w *Worker) Register(ctx context.Context) (*inverter.Inverter, error) {
	registrar := inverter.NewRegistrar(w.session, w.table, w.logger)

	var err error
	for round := 1; round <= w.opts.RegisterAttempts; round++ {
		var inv *inverter.Inverter
		inv, err = registrar.Register(ctx)
		if err == nil {
			w.inv = inv
			w.emit(ctx, Event{Kind: EventRegistered, Inverter: inv})
			return inv, nil
		}

		var regErr *inverter.RegistrationError
		if !errors.As(err, &regErr) || !regErr.Retryable() || ctx.Err() != nil {
			break
		}
		w.logger.Debug("no reply to registration", zap.Int("round", round))
	}

	w.emit(ctx, Event{Kind: EventAbandoned, Err: err})
	return nil, err
}

// Run polls the registered inverter until ctx is done, or once in oneshot
// mode. The first poll happens immediately.
func (w *Worker) Run(ctx context.Context) error {
	if w.inv == nil {
		return errors.New("worker is not registered")
	}
	defer w.emit(context.Background(), Event{Kind: EventStopped})

	w.poll(ctx)
	if w.opts.Oneshot {
		return nil
	}

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Worker) poll(ctx context.Context) {
	readings := inverter.Poll(ctx, w.session, w.inv.Address)
	if ctx.Err() != nil {
		return
	}

	sample := sink.Sample{
		Name:     w.name,
		Device:   w.session.Device(),
		Serial:   w.inv.Serial,
		Address:  w.inv.Address,
		Time:     time.Now(),
		Readings: readings,
	}
	if readings.IsZero() {
		w.logger.Debug("no readings")
	}
	if err := w.sinks.Write(ctx, sample); err != nil {
		w.logger.Warn("sink write failed", zap.Error(err))
	}
	w.emit(ctx, Event{Kind: EventReading, Time: sample.Time, Readings: readings})
}

// emit sends e to the observer, if any. It gives up when ctx is done.
func (w *Worker) emit(ctx context.Context, e Event) {
	if w.events == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	e.Name = w.name
	e.Device = w.session.Device()
	if e.Inverter == nil {
		e.Inverter = w.inv
	}
	e.Stats = w.session.Statistics().Snapshot()

	select {
	case w.events <- e:
	case <-ctx.Done():
	case <-time.After(time.Second):
		// observer gone
	}
}

// Close releases the channel and the worker's sinks
func (w *Worker) Close() error {
	return errors.Join(w.sinks.Close(), w.link.Close())
}
