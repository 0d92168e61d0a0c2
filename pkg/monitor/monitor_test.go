// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmcp/jfy-monitor/pkg/capture"
	"github.com/jmcp/jfy-monitor/pkg/config"
	"github.com/jmcp/jfy-monitor/pkg/inverter"
	"github.com/jmcp/jfy-monitor/pkg/jfy"
	"github.com/jmcp/jfy-monitor/pkg/link"
	"github.com/jmcp/jfy-monitor/pkg/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeLink plays one inverter on the other end of the channel
type fakeLink struct {
	name   string
	serial string
	// silentRounds is the number of OfflineQuery requests left unanswered
	silentRounds int

	mu      sync.Mutex
	address uint8
	pending []byte
	writes  int
	closed  bool
}

func (l *fakeLink) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes++

	req, err := jfy.Decode(p)
	if err != nil {
		return len(p), nil
	}
	switch {
	case req.Control() == jfy.ControlRegister && req.Function() == jfy.FuncOfflineQuery:
		if l.serial == "" {
			return len(p), nil
		}
		if l.silentRounds > 0 {
			l.silentRounds--
			return len(p), nil
		}
		l.pending = jfy.MustEncode(jfy.AddressBroadcast, jfy.AddressBroadcast, jfy.ControlRegister,
			jfy.FuncOfflineQueryResponse, []byte(l.serial))
	case req.Control() == jfy.ControlRegister && req.Function() == jfy.FuncSendRegisterAddress:
		payload := req.Payload()
		l.address = payload[len(payload)-1]
		l.pending = jfy.MustEncode(l.address, jfy.AddressController, jfy.ControlRegister,
			jfy.FuncSendRegisterAddressResponse, []byte{jfy.AckByte})
	case req.Control() == jfy.ControlRead && req.Function() == jfy.FuncQueryNormalInfo:
		if req.Destination() == l.address {
			l.pending = jfy.MustEncode(l.address, jfy.AddressController, jfy.ControlRead, jfy.FuncQueryNormalInfoResponse, []byte{
				0x00, 0x96, 0x0B, 0xB8, 0x0F, 0xA0, 0x00, 0x64,
				0x12, 0x34, 0x00, 0x2A, 0x56, 0x78, 0x09, 0x24,
			})
		}
	}
	return len(p), nil
}

func (l *fakeLink) ReadAvailable() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	data := l.pending
	l.pending = nil
	return data, nil
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLink) String() string { return l.name }

func (l *fakeLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// fakeOpener hands out the links in devices by name
func fakeOpener(devices map[string]*fakeLink) Opener {
	return func(devname string, _ link.Options) (link.Link, error) {
		l, ok := devices[devname]
		if !ok {
			return nil, errors.New("no such device")
		}
		return l, nil
	}
}

func testConfig(t *testing.T, devices ...string) *config.Config {
	logDir := t.TempDir()
	cfg := &config.Config{
		Global: config.Global{
			LogPath:          logDir,
			PollInterval:     10 * time.Millisecond,
			SettleDelay:      0,
			MaxAttempts:      2,
			RegisterAttempts: 1,
		},
	}
	for i, dev := range devices {
		cfg.Inverters = append(cfg.Inverters, config.Inverter{
			Section: "inverter" + string(rune('a'+i)),
			Name:    "inv-" + dev,
			DevName: dev,
			Baud:    link.DefaultBaudRate,
			LogPath: logDir,
		})
	}
	return cfg
}

// ============================================================
// Supervisor
// ============================================================

func TestOneshotRegistersAndLogsEveryInverter(t *testing.T) {
	devices := map[string]*fakeLink{
		"/dev/ttyA": {name: "/dev/ttyA", serial: "SERIAL1"},
		"/dev/ttyB": {name: "/dev/ttyB", serial: "SERIAL2"},
	}
	cfg := testConfig(t, "/dev/ttyA", "/dev/ttyB")
	sup := New(cfg, Options{Opener: fakeOpener(devices), Oneshot: true, Logger: zaptest.NewLogger(t)})

	require.NoError(t, sup.Run(context.Background()))

	entries := sup.Table().Registered()
	require.Len(t, entries, 2)
	assert.ElementsMatch(t, []uint8{2, 3}, []uint8{entries[0].Address, entries[1].Address})
	assert.Len(t, sup.Workers(), 2)

	for _, serial := range []string{"SERIAL1", "SERIAL2"} {
		files, err := filepath.Glob(filepath.Join(cfg.Global.LogPath, serial, "*", "*", "*"))
		require.NoError(t, err)
		require.Len(t, files, 1, serial)
		data, err := os.ReadFile(files[0])
		require.NoError(t, err)
		assert.Contains(t, string(data), ",15.0,")
	}
	for _, l := range devices {
		assert.True(t, l.isClosed())
	}
}

func TestNothingToMonitor(t *testing.T) {
	devices := map[string]*fakeLink{
		"/dev/ttyA": {name: "/dev/ttyA"},
	}
	// /dev/ttyB cannot be opened
	cfg := testConfig(t, "/dev/ttyA", "/dev/ttyB")
	sup := New(cfg, Options{Opener: fakeOpener(devices), Oneshot: true, Logger: zaptest.NewLogger(t)})

	err := sup.Run(context.Background())
	assert.ErrorIs(t, err, ErrNothingToMonitor)
	assert.Empty(t, sup.Table().Registered())
	assert.True(t, devices["/dev/ttyA"].isClosed())
}

func TestFailedDeviceDoesNotStopOthers(t *testing.T) {
	devices := map[string]*fakeLink{
		"/dev/ttyA": {name: "/dev/ttyA"},
		"/dev/ttyB": {name: "/dev/ttyB", serial: "SERIAL2"},
	}
	cfg := testConfig(t, "/dev/ttyA", "/dev/ttyB", "/dev/ttyC")
	sup := New(cfg, Options{Opener: fakeOpener(devices), Oneshot: true, Logger: zaptest.NewLogger(t)})

	require.NoError(t, sup.Run(context.Background()))
	require.Len(t, sup.Workers(), 1)
	assert.Equal(t, "inv-/dev/ttyB", sup.Workers()[0].Name())
	assert.Equal(t, "SERIAL2", sup.Workers()[0].Inverter().Serial)
}

func TestRegisterRetriesAfterSilence(t *testing.T) {
	devices := map[string]*fakeLink{
		"/dev/ttyA": {name: "/dev/ttyA", serial: "SERIAL1", silentRounds: 2},
	}
	cfg := testConfig(t, "/dev/ttyA")
	cfg.Global.MaxAttempts = 1
	cfg.Global.RegisterAttempts = 3
	sup := New(cfg, Options{Opener: fakeOpener(devices), Oneshot: true, Logger: zaptest.NewLogger(t)})

	require.NoError(t, sup.Run(context.Background()))
	require.Len(t, sup.Table().Registered(), 1)
}

func TestRunPollsUntilCancelled(t *testing.T) {
	devices := map[string]*fakeLink{
		"/dev/ttyA": {name: "/dev/ttyA", serial: "SERIAL1"},
	}
	cfg := testConfig(t, "/dev/ttyA")
	cfg.Global.Capture = filepath.Join(t.TempDir(), "capture.cbor")

	events := make(chan Event, 64)
	sup := New(cfg, Options{Opener: fakeOpener(devices), Events: events, Logger: zaptest.NewLogger(t)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	var kinds []EventKind
	readings := 0
	timeout := time.After(5 * time.Second)
	for readings < 3 {
		select {
		case e := <-events:
			kinds = append(kinds, e.Kind)
			if e.Kind == EventReading {
				readings++
				assert.InDelta(t, 15.0, e.Readings.Scaled(jfy.Temperature), 1e-9)
				assert.Equal(t, "SERIAL1", e.Inverter.Serial)
			}
		case <-timeout:
			t.Fatal("timed out waiting for readings")
		}
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop")
	}
	assert.Equal(t, EventRegistered, kinds[0])

	f, err := os.Open(cfg.Global.Capture)
	require.NoError(t, err)
	defer f.Close()
	records, err := capture.ReadAll(f)
	require.NoError(t, err)
	assert.NotEmpty(t, records)
	assert.True(t, records[0].Outbound)
	assert.Equal(t, "/dev/ttyA", records[0].Device)
}

// ============================================================
// Worker
// ============================================================

func TestWorkerRunRequiresRegistration(t *testing.T) {
	l := &fakeLink{name: "/dev/ttyA"}
	session := inverter.NewSession("/dev/ttyA", l, zaptest.NewLogger(t))
	w := NewWorker("roof", l, session, inverter.NewAddressTable(), nopSink{}, WorkerOptions{Oneshot: true}, nil, nil)

	assert.Error(t, w.Run(context.Background()))
}

type nopSink struct{}

func (nopSink) Write(context.Context, sink.Sample) error { return nil }
func (nopSink) Close() error                              { return nil }

// ============================================================
// Status server
// ============================================================

func TestStatusServer(t *testing.T) {
	sup := New(testConfig(t), Options{})
	srv := httptest.NewServer(NewStatusServer(sup.Table(), sup.Metrics()).Handler())
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		var sb strings.Builder
		_, err = io.Copy(&sb, resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, sb.String()
	}

	code, _ := get("/healthcheck")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	addr, err := sup.Table().AllocateNext()
	require.NoError(t, err)
	sup.Table().Record(addr, "SERIAL1")
	sup.Metrics().SetRegistered(1)

	code, body := get("/healthcheck")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "OK")

	code, body = get("/inverters")
	assert.Equal(t, http.StatusOK, code)
	var entries []inverter.Entry
	require.NoError(t, json.Unmarshal([]byte(body), &entries))
	assert.Equal(t, []inverter.Entry{{Address: 2, Serial: "SERIAL1"}}, entries)

	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "jfy_registered_inverters 1")
}

// ============================================================
// PVOutput schedule
// ============================================================

func TestStartUploads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	none, err := StartUploads(ctx, nil, nil)
	require.NoError(t, err)
	none.Stop()

	uploads, err := StartUploads(ctx, []*sink.PVOutput{
		sink.NewPVOutput("key", "1"),
		sink.NewPVOutput("key", "2"),
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, uploads.scheduler)
	assert.True(t, uploads.scheduler.IsStarted())
	uploads.Stop()
}
