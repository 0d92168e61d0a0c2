// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package inverter

import (
	"context"

	"github.com/jmcp/jfy-monitor/pkg/jfy"
	"go.uber.org/zap"
)

// Poll asks the inverter at address for its normal info and decodes the
// readings. Any failure yields jfy.ZeroReadings.
func Poll(ctx context.Context, s *Session, address uint8) jfy.Readings {
	f, _, err := s.Request(ctx, jfy.QueryNormalInfoRequest(address))
	if err != nil {
		return jfy.ZeroReadings()
	}

	if f.Source() != address || f.Control() != jfy.ControlRead {
		s.logger.Warn("reply from unexpected sender",
			zap.Uint8("address", address),
			zap.Uint8("source", f.Source()),
			zap.Stringer("control", f.Control()))
		return jfy.ZeroReadings()
	}

	r, err := jfy.DecodeNormalInfo(f.Payload())
	if err != nil {
		s.logger.Warn("cannot decode readings", zap.Uint8("address", address), zap.Error(err))
		return jfy.ZeroReadings()
	}
	return r
}

// Query sends an arbitrary Read family request to address and returns the
// verified reply frame
func Query(ctx context.Context, s *Session, address uint8, function uint8) (*jfy.Frame, error) {
	f, _, err := s.Request(ctx, jfy.ReadRequest(address, function))
	return f, err
}
