// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/jmcp/jfy-monitor/pkg/inverter"
	"github.com/jmcp/jfy-monitor/pkg/link"
	"github.com/jmcp/jfy-monitor/pkg/logging"
	"go.uber.org/zap"
)

// Exit codes. exitNothingToMonitor tells a service manager the
// configuration has nothing usable in it.
const (
	exitFailed           = 1
	exitConnectionError  = 2
	exitNothingToMonitor = 96
)

// OpenConnection opens either a serial or WebSocket link based on flags
func OpenConnection() (link.Link, string, error) {
	if wsURL != "" {
		password := ""
		if wsUsername != "" {
			var err error
			password, err = link.Password()
			if err != nil {
				return nil, "", err
			}
		}

		l, err := link.Open(wsURL, linkOptions(password))
		if err != nil {
			return nil, "", err
		}
		return l, fmt.Sprintf("WebSocket: %s", wsURL), nil
	}

	if portName != "" {
		l, err := link.Open(portName, linkOptions(""))
		if err != nil {
			return nil, "", err
		}
		return l, fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}

func linkOptions(password string) link.Options {
	return link.Options{
		BaudRate:      baudRate,
		Username:      wsUsername,
		Password:      password,
		SkipSSLVerify: wsNoSSLVerify,
	}
}

// commandLogger is the logger of the single-inverter commands: quiet
// unless --debug is given
func commandLogger() *zap.Logger {
	level := "warn"
	if debug {
		level = "debug"
	}
	logger, err := logging.New(level, logging.FormatConsole)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// newSession wraps l in a session with the given settle delay
func newSession(l link.Link, settle time.Duration, logger *zap.Logger) *inverter.Session {
	s := inverter.NewSession(l.String(), l, logger)
	s.SetRetry(inverter.DefaultMaxAttempts, settle)
	return s
}
