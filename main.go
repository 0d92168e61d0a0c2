// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// jfymon - JFY PV inverter monitor
//
// Registers JFY inverters on their RS-232/RS-485 bus, polls their readings
// and delivers them to log files, time-series stores and services.

package main

import (
	"fmt"
	"os"

	"github.com/jmcp/jfy-monitor/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
