// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/jmcp/jfy-monitor/pkg/jfy"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
)

// publisher is the part of mqtt.Client used here
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes the latest readings of each inverter as a retained JSON
// message on <topic>/<serial>/state
type MQTT struct {
	client publisher
	topic  string
}

// NewMQTT connects to broker (e.g. tcp://localhost:1883)
func NewMQTT(broker, topic, username, password string) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("jfymon-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout)
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("connect to %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", broker, err)
	}
	return &MQTT{client: client, topic: topic}, nil
}

// StateTopic returns the topic readings of serial are published on
func (m *MQTT) StateTopic(serial string) string {
	return fmt.Sprintf("%s/%s/state", m.topic, serial)
}

// StatePayload renders s as the JSON state message
func StatePayload(s Sample) ([]byte, error) {
	state := map[string]interface{}{
		"time":    s.Time.Format(time.RFC3339),
		"name":    s.Name,
		"serial":  s.Serial,
		"address": s.Address,
	}
	for q := jfy.Quantity(0); q < jfy.NumQuantities; q++ {
		state[q.Stat()] = s.Readings.Scaled(q)
	}
	return json.Marshal(state)
}

// Write publishes s unless its readings are zero
func (m *MQTT) Write(ctx context.Context, s Sample) error {
	if s.Readings.IsZero() {
		return nil
	}
	payload, err := StatePayload(s)
	if err != nil {
		return err
	}

	token := m.client.Publish(m.StateTopic(s.Serial), 0, true, payload)
	select {
	case <-token.Done():
	case <-time.After(mqttPublishTimeout):
		return errors.New("mqtt publish timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
	return token.Error()
}

// Close disconnects from the broker
func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
