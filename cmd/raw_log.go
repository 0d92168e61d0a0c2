// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmcp/jfy-monitor/pkg/jfy"
	"github.com/jmcp/jfy-monitor/pkg/link"
	"github.com/spf13/cobra"
)

// rawLogIdle is the pause between reads that returned nothing
const rawLogIdle = 20 * time.Millisecond

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display frames on the bus in human-readable format",
	Long: `Continuously decode and display JFY frames as they arrive.

Nothing is sent; the command only listens. Use it alongside another controller
to watch registration and polling traffic. Each frame is shown with timestamp,
addresses, control and function names, payload hex and a printable rendering.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("jfymon - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	scanner := jfy.NewScanner()
	for {
		data, err := conn.ReadAvailable()
		if err != nil {
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if errors.Is(err, link.ErrConnectionClosed) {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			time.Sleep(rawLogIdle)
			continue
		}
		if len(data) == 0 {
			time.Sleep(rawLogIdle)
			continue
		}

		for _, res := range scanner.Feed(data) {
			fmt.Print(jfy.FormatFrame(res.Frame))
			if res.Err != nil {
				fmt.Printf("  [ERROR] %v\n", res.Err)
			}
		}
	}
}
