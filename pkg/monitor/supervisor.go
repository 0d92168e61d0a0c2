// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package monitor runs one worker per configured inverter and the services
// around them: shared sinks, the status server and PVOutput uploads.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jmcp/jfy-monitor/pkg/capture"
	"github.com/jmcp/jfy-monitor/pkg/config"
	"github.com/jmcp/jfy-monitor/pkg/inverter"
	"github.com/jmcp/jfy-monitor/pkg/link"
	"github.com/jmcp/jfy-monitor/pkg/sink"
	"go.uber.org/zap"
)

// ErrNothingToMonitor is returned by Run when no inverter registered
var ErrNothingToMonitor = errors.New("nothing to monitor")

// Opener opens the channel of one inverter
type Opener func(devname string, opts link.Options) (link.Link, error)

// Options configures a Supervisor
type Options struct {
	// Opener defaults to link.Open
	Opener Opener
	// Link carries bridge credentials; the baud rate comes from each inverter
	Link    link.Options
	Oneshot bool
	// Events, if set, receives worker progress
	Events chan<- Event
	Logger *zap.Logger
}

// Supervisor starts and watches the workers of one configuration
type Supervisor struct {
	cfg     *config.Config
	opts    Options
	logger  *zap.Logger
	table   *inverter.AddressTable
	metrics *sink.Metrics

	mu        sync.Mutex
	workers   []*Worker
	uploaders []*sink.PVOutput
}

// New creates a supervisor for cfg
func New(cfg *config.Config, opts Options) *Supervisor {
	if opts.Opener == nil {
		opts.Opener = link.Open
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Supervisor{
		cfg:     cfg,
		opts:    opts,
		logger:  opts.Logger,
		table:   inverter.NewAddressTable(),
		metrics: sink.NewMetrics(),
	}
}

// Table returns the process-wide address table
func (s *Supervisor) Table() *inverter.AddressTable {
	return s.table
}

// Metrics returns the Prometheus collectors fed by the workers
func (s *Supervisor) Metrics() *sink.Metrics {
	return s.metrics
}

// Workers returns the workers that registered
func (s *Supervisor) Workers() []*Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Worker(nil), s.workers...)
}

// Run opens every inverter, registers them in parallel and polls the ones
// that registered until ctx is done. It returns ErrNothingToMonitor when
// none registered.
func (s *Supervisor) Run(ctx context.Context) error {
	shared, err := s.sharedSinks()
	if err != nil {
		return err
	}
	defer func() {
		if err := shared.Close(); err != nil {
			s.logger.Warn("closing sinks", zap.Error(err))
		}
	}()

	var recorder *capture.Writer
	if path := s.cfg.Global.Capture; path != "" {
		recorder, err = capture.Create(path)
		if err != nil {
			return err
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				s.logger.Warn("closing capture", zap.Error(err))
			}
		}()
	}

	if addr := s.cfg.Global.HTTPListen; addr != "" {
		status := NewStatusServer(s.table, s.metrics)
		go func() {
			if err := status.Start(addr); err != nil {
				s.logger.Error("status server", zap.String("listen", addr), zap.Error(err))
			}
		}()
		defer status.Shutdown(context.Background())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan bool, len(s.cfg.Inverters))
	var wg sync.WaitGroup
	for _, invCfg := range s.cfg.Inverters {
		w, err := s.newWorker(invCfg, shared, recorder)
		if err != nil {
			s.logger.Error("cannot open inverter", zap.String("inverter", invCfg.Name), zap.String("device", invCfg.DevName), zap.Error(err))
			results <- false
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer w.Close()

			if _, err := w.Register(ctx); err != nil {
				s.logger.Warn("inverter excluded from polling", zap.String("inverter", w.Name()), zap.Error(err))
				results <- false
				return
			}
			s.addWorker(w)
			results <- true
			w.Run(ctx)
		}()
	}

	registered := 0
	for range s.cfg.Inverters {
		if <-results {
			registered++
		}
	}
	s.metrics.SetRegistered(registered)

	if registered == 0 {
		cancel()
		wg.Wait()
		return ErrNothingToMonitor
	}
	s.logger.Info("monitoring", zap.Int("inverters", registered), zap.Int("configured", len(s.cfg.Inverters)))

	if s.opts.Oneshot {
		wg.Wait()
		s.uploadAll(context.Background())
		return nil
	}

	uploads, err := StartUploads(ctx, s.pvoutputs(), s.logger)
	if err != nil {
		cancel()
		wg.Wait()
		return err
	}
	wg.Wait()
	uploads.Stop()
	return nil
}

// sharedSinks builds the sinks every worker writes to
func (s *Supervisor) sharedSinks() (sink.Multi, error) {
	g := s.cfg.Global
	sinks := sink.Multi{s.metrics}

	if g.InfluxEnabled() {
		sinks = append(sinks, sink.NewInflux(g.InfluxURL, g.InfluxToken, g.InfluxOrg, g.InfluxBucket, s.logger))
	}
	if g.MQTTBroker != "" {
		m, err := sink.NewMQTT(g.MQTTBroker, g.MQTTTopic, g.MQTTUsername, g.MQTTPassword)
		if err != nil {
			sinks.Close()
			return nil, fmt.Errorf("mqtt: %w", err)
		}
		sinks = append(sinks, m)
	}
	return sinks, nil
}

func (s *Supervisor) newWorker(invCfg config.Inverter, shared sink.Sink, recorder *capture.Writer) (*Worker, error) {
	g := s.cfg.Global

	opts := s.opts.Link
	opts.BaudRate = invCfg.Baud
	l, err := s.opts.Opener(invCfg.DevName, opts)
	if err != nil {
		return nil, err
	}

	session := inverter.NewSession(invCfg.DevName, l, s.logger)
	session.SetRetry(g.MaxAttempts, g.SettleDelay)
	if recorder != nil {
		session.SetRecorder(recorder)
	}
	s.metrics.AddDevice(invCfg.DevName, session.Statistics())

	sinks := sink.Multi{sink.Shared{Sink: shared}, sink.NewCSVLog(invCfg.LogPath)}
	if invCfg.HasPVOutput() {
		pv := sink.NewPVOutput(invCfg.PVOutputAPIKey, invCfg.PVOutputSysID)
		sinks = append(sinks, pv)
		s.mu.Lock()
		s.uploaders = append(s.uploaders, pv)
		s.mu.Unlock()
	}

	return NewWorker(invCfg.Name, l, session, s.table, sinks, WorkerOptions{
		PollInterval:     g.PollInterval,
		RegisterAttempts: g.RegisterAttempts,
		Oneshot:          s.opts.Oneshot,
	}, s.opts.Events, s.logger), nil
}

func (s *Supervisor) addWorker(w *Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, w)
}

func (s *Supervisor) pvoutputs() []*sink.PVOutput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*sink.PVOutput(nil), s.uploaders...)
}

// uploadAll sends the latest sample of every PVOutput system once
func (s *Supervisor) uploadAll(ctx context.Context) {
	for _, pv := range s.pvoutputs() {
		if err := pv.Upload(ctx); err != nil {
			s.logger.Warn("pvoutput upload failed", zap.String("system", pv.SystemID()), zap.Error(err))
		}
	}
}
