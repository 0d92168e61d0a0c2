// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Daemon flags
	configPath string
	logPath    string
	oneshot    bool
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "jfymon",
	Short: "JFY PV inverter monitor",
	Long: `jfymon - registers JFY PV inverters on their serial bus, polls their
readings and hands them to log files, time-series stores and services.

The monitor command runs the daemon from a configuration file. The other
commands talk to a single inverter or dissect captured traffic.

Connection modes for single-inverter commands:
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the JFYMON_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       versioninfo.Short(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 9600, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Debug logging")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
