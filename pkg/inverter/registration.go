// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package inverter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmcp/jfy-monitor/pkg/jfy"
	"go.uber.org/zap"
)

// State is a step of the registration handshake
type State int

const (
	StateUnregistered State = iota
	StateAwaitingSerial
	StateAwaitingAddressConfirm
	StateRegistered
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateAwaitingSerial:
		return "awaiting serial"
	case StateAwaitingAddressConfirm:
		return "awaiting address confirm"
	case StateRegistered:
		return "registered"
	case StateAbandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Inverter is a device that completed registration
type Inverter struct {
	Device       string
	Address      uint8
	Serial       string
	RawSerial    []byte
	RegisteredAt time.Time
}

// Registrar runs the registration handshake for one device
type Registrar struct {
	session *Session
	table   *AddressTable
	logger  *zap.Logger
	state   State
}

// NewRegistrar creates a registrar that allocates addresses from table
func NewRegistrar(session *Session, table *AddressTable, logger *zap.Logger) *Registrar {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registrar{
		session: session,
		table:   table,
		logger:  logger.With(zap.String("device", session.Device())),
		state:   StateUnregistered,
	}
}

// State returns the state reached by the last Register call
func (r *Registrar) State() State {
	return r.state
}

func (r *Registrar) transition(to State) {
	r.logger.Debug("registration state", zap.Stringer("from", r.state), zap.Stringer("to", to))
	r.state = to
}

// abandon moves to StateAbandoned and describes the failure
func (r *Registrar) abandon(err error, frame []byte, violations []jfy.ValidationError) error {
	regErr := &RegistrationError{
		Device:     r.session.Device(),
		State:      r.state,
		Err:        err,
		Frame:      frame,
		Violations: violations,
	}
	r.transition(StateAbandoned)
	if regErr.Retryable() {
		r.logger.Info("registration abandoned", zap.Error(regErr))
	} else {
		r.logger.Error("registration abandoned", zap.Error(regErr))
	}
	return regErr
}

// Register runs the handshake from the start:
//
//  1. broadcast ReRegister, ignoring any reply
//  2. broadcast OfflineQuery and read the serial number from the reply
//  3. allocate the next address and offer it with SendRegisterAddress
//  4. check the inverter acknowledged from the new address
//
// Every reply is checked for source, destination, control code and
// checksum before its payload is used.
func (r *Registrar) Register(ctx context.Context) (*Inverter, error) {
	r.state = StateUnregistered

	if r.table.Full() {
		return nil, r.abandon(ErrAddressSpaceExhausted, nil, nil)
	}

	r.session.ExchangeAttempts(ctx, jfy.ReRegisterRequest(), 1)

	f, data, err := r.session.Request(ctx, jfy.OfflineQueryRequest())
	if err != nil {
		return nil, r.abandon(replyError(err), data, nil)
	}
	violations := jfy.ValidateFrame(f, jfy.Expectation{
		Source:      jfy.AddressBroadcast,
		Destination: jfy.AddressBroadcast,
		Control:     jfy.ControlRegister,
	})
	if len(violations) > 0 {
		r.session.Statistics().RecordViolations(violations)
		return nil, r.abandon(ErrProtocolViolation, data, violations)
	}
	rawSerial := f.Payload()
	r.transition(StateAwaitingSerial)

	// the offer carries the serial plus one address byte
	if len(rawSerial) >= jfy.MaxPayload {
		err := fmt.Errorf("%w: serial number of %d bytes leaves no room for the address", ErrProtocolViolation, len(rawSerial))
		return nil, r.abandon(err, data, nil)
	}

	address, err := r.table.AllocateNext()
	if err != nil {
		return nil, r.abandon(err, nil, nil)
	}
	r.logger.Debug("offering address", zap.Uint8("address", address), zap.String("serial", jfy.SerialNumber(rawSerial)))
	request := jfy.SendRegisterAddressRequest(rawSerial, address)
	r.transition(StateAwaitingAddressConfirm)

	f, data, err = r.session.Request(ctx, request)
	if err != nil {
		return nil, r.abandon(replyError(err), data, nil)
	}
	violations = jfy.ValidateFrame(f, jfy.Expectation{
		Source:      address,
		Destination: jfy.AddressController,
		Control:     jfy.ControlRegister,
		RequireAck:  true,
	})
	if len(violations) > 0 {
		r.session.Statistics().RecordViolations(violations)
		return nil, r.abandon(ErrProtocolViolation, data, violations)
	}

	inv := &Inverter{
		Device:       r.session.Device(),
		Address:      address,
		Serial:       jfy.SerialNumber(rawSerial),
		RawSerial:    rawSerial,
		RegisteredAt: time.Now(),
	}
	r.table.Record(address, inv.Serial)
	r.transition(StateRegistered)
	r.logger.Info("inverter registered", zap.String("serial", inv.Serial), zap.Uint8("address", address))
	return inv, nil
}

// replyError classifies a failed Session.Request during the handshake.
// Anything other than silence is a violation.
func replyError(err error) error {
	if errors.Is(err, ErrNoResponse) {
		return ErrNoResponse
	}
	return fmt.Errorf("%w: %w", ErrProtocolViolation, err)
}
