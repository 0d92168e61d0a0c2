// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jmcp/jfy-monitor/pkg/inverter"
	"github.com/jmcp/jfy-monitor/pkg/jfy"
	"github.com/spf13/cobra"
)

var (
	registerTimeout int
	registerSettle  time.Duration
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register an inverter and print its serial number and address",
	Long: `Run the registration handshake against one serial port or WebSocket bridge.

The handshake broadcasts ReRegister, asks for an unregistered inverter's serial
number with OfflineQuery, offers it the next free address (2 on an otherwise
idle bus) and waits for the acknowledgement from the new address.

Examples:
  jfymon register --port /dev/ttyUSB0
  jfymon register --url ws://bridge.local/jfy --username admin

Exit codes:
  0 - Inverter registered
  1 - Registration abandoned (no reply or protocol violation)
  2 - Connection error`,
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)
	registerCmd.Flags().IntVar(&registerTimeout, "timeout", 60, "Timeout in seconds for the whole handshake")
	registerCmd.Flags().DurationVar(&registerSettle, "settle", inverter.DefaultSettleDelay, "Wait after each request before reading")
}

func runRegister(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(exitConnectionError)
	}
	defer conn.Close()

	fmt.Printf("jfymon - Register\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n\n", registerTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(registerTimeout)*time.Second)
	defer cancel()

	session := newSession(conn, registerSettle, commandLogger())
	_, err = registerOne(ctx, session)
	fmt.Printf("\n--- Exchange summary ---\n")
	fmt.Print(session.Statistics().String())

	if err != nil {
		os.Exit(exitFailed)
	}
	return nil
}

// registerOne runs the handshake on a fresh address table and prints the result
func registerOne(ctx context.Context, session *inverter.Session) (*inverter.Inverter, error) {
	fmt.Printf("Sending ReRegister and OfflineQuery...\n")
	registrar := inverter.NewRegistrar(session, inverter.NewAddressTable(), commandLogger())
	inv, err := registrar.Register(ctx)
	if err != nil {
		printRegistrationError(err)
		return nil, err
	}

	fmt.Printf("\nInverter registered:\n")
	fmt.Printf("  Serial: %s\n", inv.Serial)
	fmt.Printf("  Raw serial: %s\n", jfy.FormatHex(inv.RawSerial))
	fmt.Printf("  Address: %d (0x%02X)\n", inv.Address, inv.Address)
	return inv, nil
}

func printRegistrationError(err error) {
	var regErr *inverter.RegistrationError
	if !errors.As(err, &regErr) {
		fmt.Printf("\nREGISTRATION FAILED: %v\n", err)
		return
	}

	switch {
	case errors.Is(err, inverter.ErrNoResponse):
		fmt.Printf("\nNO RESPONSE while %s. Check connection and inverter power.\n", regErr.State)
	case errors.Is(err, inverter.ErrAddressSpaceExhausted):
		fmt.Printf("\nADDRESS SPACE EXHAUSTED\n")
	default:
		fmt.Printf("\nPROTOCOL VIOLATION while %s\n", regErr.State)
		for i, v := range regErr.Violations {
			fmt.Printf("  Issue %d: %s\n", i+1, v.Message)
		}
		if len(regErr.Violations) == 0 {
			fmt.Printf("  %v\n", regErr.Err)
		}
		if len(regErr.Frame) > 0 {
			fmt.Printf("  Frame: %s\n", jfy.FormatHex(regErr.Frame))
		}
	}
}
