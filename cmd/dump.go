// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jmcp/jfy-monitor/pkg/capture"
	"github.com/jmcp/jfy-monitor/pkg/jfy"
	"github.com/spf13/cobra"
)

var (
	dumpCapture bool
	dumpErrors  bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Dissect frames in a raw or CBOR capture file",
	Long: `Find and decode every JFY frame in a capture file.

By default the file is treated as raw bytes, for example the output of
'cat /dev/ttyUSB0 > bus.raw'. With --capture the file is a CBOR capture written
by the monitor's capture setting, and each chunk is shown with its device,
direction and time.

For every frame the command prints the stream offset, addresses, control and
function names, payload hex, a printable rendering and the checksum verdict.
QueryNormalInfo responses are expanded into the inverter's field table.
A statistics summary is printed at the end.`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().BoolVar(&dumpCapture, "capture", false, "Input is a CBOR capture file")
	dumpCmd.Flags().BoolVar(&dumpErrors, "errors-only", false, "Only print frames failing the checksum")
}

func runDump(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Printf("jfymon - Dump\n")
	fmt.Printf("File: %s\n\n", args[0])

	stats := jfy.NewStatistics()
	if dumpCapture {
		err = dumpCaptureFile(os.Stdout, f, stats, dumpErrors)
	} else {
		err = dumpRaw(os.Stdout, f, stats, dumpErrors)
	}
	fmt.Println()
	fmt.Print(stats.String())
	return err
}

// dumpRaw scans r as one unframed byte stream
func dumpRaw(w io.Writer, r io.Reader, stats *jfy.Statistics, errorsOnly bool) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	scanner := jfy.NewScanner()
	for _, res := range scanner.Feed(data) {
		printScanResult(w, res, stats, errorsOnly)
	}
	printSkipped(w, scanner)
	return nil
}

// dumpCaptureFile scans each device and direction of a capture as its own
// stream so chunks of one frame split across reads are joined
func dumpCaptureFile(w io.Writer, r io.Reader, stats *jfy.Statistics, errorsOnly bool) error {
	type stream struct {
		device   string
		outbound bool
	}
	scanners := map[stream]*jfy.Scanner{}

	reader := capture.NewReader(r)
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		key := stream{device: rec.Device, outbound: rec.Outbound}
		scanner, ok := scanners[key]
		if !ok {
			scanner = jfy.NewScanner()
			scanners[key] = scanner
		}

		arrow := "<<"
		if rec.Outbound {
			arrow = ">>"
		}
		results := scanner.Feed(rec.Data)
		if !errorsOnly || hasErrors(results) {
			fmt.Fprintf(w, "%s %s %s %d bytes\n", rec.Time.Format("2006-01-02 15:04:05.000"), rec.Device, arrow, len(rec.Data))
		}
		for _, res := range results {
			printScanResult(w, res, stats, errorsOnly)
		}
	}

	for _, scanner := range scanners {
		printSkipped(w, scanner)
	}
	return nil
}

func printScanResult(w io.Writer, res jfy.ScanResult, stats *jfy.Statistics, errorsOnly bool) {
	stats.RecordDecode(res.Err)
	if errorsOnly && res.Err == nil {
		return
	}

	fmt.Fprintf(w, "@0x%06X ", res.Offset)
	fmt.Fprint(w, jfy.FormatFrame(res.Frame))
	if res.Err != nil {
		fmt.Fprintf(w, "  \033[1;31mCHECKSUM ERROR:\033[0m %v\n", res.Err)
		fmt.Fprintf(w, "  >>> FRAME REJECTED <<<\n")
	} else {
		fmt.Fprintf(w, "  checksum: 0x%04X OK\n", res.Frame.Checksum())
	}
	fmt.Fprintln(w)
}

func printSkipped(w io.Writer, scanner *jfy.Scanner) {
	if n := scanner.Skipped(); n > 0 {
		fmt.Fprintf(w, "[SYNC] %d bytes outside frames\n", n)
	}
}

func hasErrors(results []jfy.ScanResult) bool {
	for _, res := range results {
		if res.Err != nil {
			return true
		}
	}
	return false
}
