// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/jmcp/jfy-monitor/pkg/jfy"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSample(t time.Time) Sample {
	return Sample{
		Name:    "roof",
		Device:  "/dev/ttyUSB0",
		Serial:  "A1234",
		Address: 2,
		Time:    t,
		// 15.0 °C, 250.0 W, 300.0 V, 0.8 A, 42 raw energy, 240.0 V
		Readings: jfy.NewReadings([jfy.NumQuantities]uint16{150, 2500, 3000, 8, 42, 2400}),
	}
}

var sampleTime = time.Date(2025, 6, 1, 12, 34, 56, 0, time.Local)

// ============================================================================
// Multi / Shared
// ============================================================================

type recordingSink struct {
	samples []Sample
	closed  bool
	err     error
}

func (r *recordingSink) Write(_ context.Context, s Sample) error {
	r.samples = append(r.samples, s)
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return r.err
}

func TestMultiFansOut(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{err: errors.New("b failed")}
	m := Multi{a, b}

	err := m.Write(context.Background(), testSample(sampleTime))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b failed")
	assert.Len(t, a.samples, 1)
	assert.Len(t, b.samples, 1)

	require.Error(t, m.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestSharedCloseLeavesSinkOpen(t *testing.T) {
	inner := &recordingSink{}
	s := Shared{inner}

	require.NoError(t, s.Write(context.Background(), testSample(sampleTime)))
	require.NoError(t, s.Close())
	assert.False(t, inner.closed)
	assert.Len(t, inner.samples, 1)
}

// ============================================================================
// CSV log
// ============================================================================

func TestCSVLogPath(t *testing.T) {
	c := NewCSVLog("/var/log/jfy")
	s := testSample(sampleTime)
	assert.Equal(t, filepath.Join("/var/log/jfy", "A1234", "2025", "06", "01"), c.PathFor(s))

	s.Serial = ""
	assert.Equal(t, filepath.Join("/var/log/jfy", "unknown", "2025", "06", "01"), c.PathFor(s))
}

func TestCSVLogWritesZeroReadings(t *testing.T) {
	dir := t.TempDir()
	c := NewCSVLog(dir)
	defer c.Close()

	s := testSample(sampleTime)
	require.NoError(t, c.Write(context.Background(), s))

	zero := s
	zero.Time = sampleTime.Add(time.Minute)
	zero.Readings = jfy.ZeroReadings()
	require.NoError(t, c.Write(context.Background(), zero))
	require.NoError(t, c.Close())

	data, err := os.ReadFile(c.PathFor(s))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2025-06-01T12:34:56,15.0,250.0,300.0,0.8,420.0,240.0", lines[0])
	assert.Equal(t, "2025-06-01T12:35:56,0.0,0.0,0.0,0.0,0.0,0.0", lines[1])
}

func TestCSVLogRotatesByDate(t *testing.T) {
	dir := t.TempDir()
	c := NewCSVLog(dir)
	defer c.Close()

	today := testSample(sampleTime)
	tomorrow := testSample(sampleTime.AddDate(0, 0, 1))
	require.NoError(t, c.Write(context.Background(), today))
	require.NoError(t, c.Write(context.Background(), tomorrow))

	assert.FileExists(t, c.PathFor(today))
	assert.FileExists(t, c.PathFor(tomorrow))
	assert.NotEqual(t, c.PathFor(today), c.PathFor(tomorrow))
}

func TestCSVLogAppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s := testSample(sampleTime)

	for i := 0; i < 2; i++ {
		c := NewCSVLog(dir)
		require.NoError(t, c.Write(context.Background(), s))
		require.NoError(t, c.Close())
	}

	data, err := os.ReadFile(NewCSVLog(dir).PathFor(s))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

// ============================================================================
// InfluxDB
// ============================================================================

type fakePointWriter struct {
	points  []*write.Point
	flushed int
}

func (f *fakePointWriter) WritePoint(p *write.Point) { f.points = append(f.points, p) }
func (f *fakePointWriter) Flush()                    { f.flushed++ }

func TestInfluxPoint(t *testing.T) {
	p := Point(testSample(sampleTime))

	assert.Equal(t, Measurement, p.Name())
	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{"serial": "A1234", "name": "roof", "address": "2"}, tags)

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Len(t, fields, int(jfy.NumQuantities))
	assert.InDelta(t, 15.0, fields["temperature"], 1e-9)
	assert.InDelta(t, 240.0, fields["voltage-ac"], 1e-9)
	assert.Equal(t, sampleTime, p.Time())
}

func TestInfluxSkipsZeroReadings(t *testing.T) {
	w := &fakePointWriter{}
	i := &Influx{writer: w}

	zero := testSample(sampleTime)
	zero.Readings = jfy.ZeroReadings()
	require.NoError(t, i.Write(context.Background(), zero))
	require.NoError(t, i.Write(context.Background(), testSample(sampleTime)))
	require.NoError(t, i.Close())

	assert.Len(t, w.points, 1)
	assert.Equal(t, 1, w.flushed)
}

// ============================================================================
// MQTT
// ============================================================================

// fakeToken is an already completed token
type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakePublisher struct {
	mu           sync.Mutex
	messages     []published
	err          error
	disconnected bool
}

func (p *fakePublisher) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return &fakeToken{err: p.err}
}

func (p *fakePublisher) Disconnect(uint) { p.disconnected = true }

func TestMQTTPublishesRetainedState(t *testing.T) {
	pub := &fakePublisher{}
	m := &MQTT{client: pub, topic: "solar"}

	require.NoError(t, m.Write(context.Background(), testSample(sampleTime)))
	require.Len(t, pub.messages, 1)

	msg := pub.messages[0]
	assert.Equal(t, "solar/A1234/state", msg.topic)
	assert.True(t, msg.retained)

	var state map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.payload, &state))
	assert.Equal(t, "roof", state["name"])
	assert.Equal(t, "A1234", state["serial"])
	assert.InDelta(t, 250.0, state["power-generated"], 1e-9)
	assert.InDelta(t, 300.0, state["voltage-dc"], 1e-9)

	require.NoError(t, m.Close())
	assert.True(t, pub.disconnected)
}

func TestMQTTSkipsZeroReadings(t *testing.T) {
	pub := &fakePublisher{}
	m := &MQTT{client: pub, topic: "solar"}

	zero := testSample(sampleTime)
	zero.Readings = jfy.ZeroReadings()
	require.NoError(t, m.Write(context.Background(), zero))
	assert.Empty(t, pub.messages)
}

func TestMQTTPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	m := &MQTT{client: pub, topic: "solar"}

	err := m.Write(context.Background(), testSample(sampleTime))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

// ============================================================================
// PVOutput
// ============================================================================

func TestPVOutputStatusForm(t *testing.T) {
	form := StatusForm(testSample(sampleTime))

	assert.Equal(t, "20250601", form.Get("d"))
	assert.Equal(t, "12:34", form.Get("t"))
	assert.Equal(t, "4200", form.Get("v1"))
	assert.Equal(t, "1", form.Get("c1"))
	assert.Equal(t, "250.0", form.Get("v2"))
	assert.Equal(t, "15.0", form.Get("v5"))
	assert.Equal(t, "300.0", form.Get("v6"))
}

func TestPVOutputEnergyMatchesScaledUnit(t *testing.T) {
	s := testSample(sampleTime)
	require.Equal(t, "10Wh", jfy.EnergyGenerated.Unit())

	wh := s.Readings.Scaled(jfy.EnergyGenerated) * 10
	assert.Equal(t, strconv.FormatFloat(wh, 'f', 0, 64), StatusForm(s).Get("v1"))
}

type pvoutputServer struct {
	mu       sync.Mutex
	requests []url.Values
	headers  []http.Header
	status   int
}

func (s *pvoutputServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	form, _ := url.ParseQuery(string(body))
	s.mu.Lock()
	s.requests = append(s.requests, form)
	s.headers = append(s.headers, r.Header.Clone())
	status := s.status
	s.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	io.WriteString(w, "OK 200: Added Status")
}

func newTestPVOutput(t *testing.T, handler http.Handler) *PVOutput {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := NewPVOutput("secret", "12345")
	p.url = srv.URL
	p.client = srv.Client()
	return p
}

func TestPVOutputUploadsLatestSample(t *testing.T) {
	srv := &pvoutputServer{}
	p := newTestPVOutput(t, srv)
	ctx := context.Background()

	// Nothing recorded yet
	require.NoError(t, p.Upload(ctx))
	assert.Empty(t, srv.requests)

	require.NoError(t, p.Write(ctx, testSample(sampleTime)))
	later := testSample(sampleTime.Add(time.Minute))
	require.NoError(t, p.Write(ctx, later))

	zero := testSample(sampleTime.Add(2 * time.Minute))
	zero.Readings = jfy.ZeroReadings()
	require.NoError(t, p.Write(ctx, zero))

	require.NoError(t, p.Upload(ctx))
	require.Len(t, srv.requests, 1)
	assert.Equal(t, "12:35", srv.requests[0].Get("t"))
	assert.Equal(t, "secret", srv.headers[0].Get("X-Pvoutput-Apikey"))
	assert.Equal(t, "12345", srv.headers[0].Get("X-Pvoutput-SystemId"))

	// Same sample is not sent twice
	require.NoError(t, p.Upload(ctx))
	assert.Len(t, srv.requests, 1)
}

func TestPVOutputUploadError(t *testing.T) {
	srv := &pvoutputServer{status: http.StatusUnauthorized}
	p := newTestPVOutput(t, srv)
	ctx := context.Background()

	require.NoError(t, p.Write(ctx, testSample(sampleTime)))
	err := p.Upload(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")

	// Retried on the next tick
	srv.mu.Lock()
	srv.status = http.StatusOK
	srv.mu.Unlock()
	require.NoError(t, p.Upload(ctx))
	assert.Len(t, srv.requests, 2)
}

// ============================================================================
// Metrics
// ============================================================================

func TestMetricsReadings(t *testing.T) {
	m := NewMetrics()
	require.NoError(t, m.Write(context.Background(), testSample(sampleTime)))

	assert.InDelta(t, 15.0, testutil.ToFloat64(m.readings.WithLabelValues("A1234", "temperature")), 1e-9)
	assert.InDelta(t, 0.8, testutil.ToFloat64(m.readings.WithLabelValues("A1234", "current")), 1e-9)
	assert.Equal(t, int(jfy.NumQuantities), testutil.CollectAndCount(m.readings))

	zero := testSample(sampleTime)
	zero.Serial = "B999"
	zero.Readings = jfy.ZeroReadings()
	require.NoError(t, m.Write(context.Background(), zero))
	assert.Equal(t, int(jfy.NumQuantities), testutil.CollectAndCount(m.readings))
}

func TestMetricsExchangeCounters(t *testing.T) {
	m := NewMetrics()
	stats := jfy.NewStatistics()
	stats.RecordExchange(true)
	stats.RecordExchange(false)
	stats.RecordDecode(jfy.ErrChecksumMismatch)
	m.AddDevice("/dev/ttyUSB0", stats)
	m.SetRegistered(1)

	expected := `
# HELP jfy_exchanges_total Request/response exchanges attempted.
# TYPE jfy_exchanges_total counter
jfy_exchanges_total{device="/dev/ttyUSB0"} 2
# HELP jfy_no_response_total Exchanges that read nothing back.
# TYPE jfy_no_response_total counter
jfy_no_response_total{device="/dev/ttyUSB0"} 1
# HELP jfy_registered_inverters Number of inverters that completed registration.
# TYPE jfy_registered_inverters gauge
jfy_registered_inverters 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"jfy_exchanges_total", "jfy_no_response_total", "jfy_registered_inverters"))
}
