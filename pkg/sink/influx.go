// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sink

import (
	"context"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/jmcp/jfy-monitor/pkg/jfy"
	"go.uber.org/zap"
)

// Measurement is the InfluxDB measurement holding readings
const Measurement = "jfy"

// pointWriter is the part of the InfluxDB write API used here
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Influx writes readings to an InfluxDB bucket, one field per quantity
type Influx struct {
	client influxdb2.Client
	writer pointWriter
}

// NewInflux connects to the server at url. Writes are batched in the
// background; failures are logged.
func NewInflux(url, token, org, bucket string, logger *zap.Logger) *Influx {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := influxdb2.NewClient(url, token)
	writeAPI := client.WriteAPI(org, bucket)
	go func() {
		for err := range writeAPI.Errors() {
			logger.Warn("influx write failed", zap.String("url", url), zap.Error(err))
		}
	}()
	return &Influx{client: client, writer: writeAPI}
}

// Point builds the point stored for s
func Point(s Sample) *write.Point {
	p := influxdb2.NewPointWithMeasurement(Measurement).
		AddTag("serial", s.Serial).
		AddTag("name", s.Name).
		AddTag("address", strconv.Itoa(int(s.Address))).
		SetTime(s.Time)
	for q := jfy.Quantity(0); q < jfy.NumQuantities; q++ {
		p.AddField(q.Stat(), s.Readings.Scaled(q))
	}
	return p
}

// Write queues s unless its readings are zero
func (i *Influx) Write(_ context.Context, s Sample) error {
	if s.Readings.IsZero() {
		return nil
	}
	i.writer.WritePoint(Point(s))
	return nil
}

// Close flushes pending points and closes the client
func (i *Influx) Close() error {
	i.writer.Flush()
	if i.client != nil {
		i.client.Close()
	}
	return nil
}
