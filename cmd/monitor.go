// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmcp/jfy-monitor/pkg/config"
	"github.com/jmcp/jfy-monitor/pkg/link"
	"github.com/jmcp/jfy-monitor/pkg/logging"
	"github.com/jmcp/jfy-monitor/pkg/monitor"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var monitorTUI bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Register and poll every configured inverter",
	Long: `Run the monitor daemon described by a configuration file.

Every [inverter-*] section names one device. Each device is opened and
registered in parallel; devices that fail registration are reported and left
out. Readings of the remaining inverters are polled every poll_interval and
written to the CSV log under logpath, and to InfluxDB, MQTT, PVOutput and the
Prometheus endpoint when those are configured.

Exit codes:
  0  - Stopped by signal, or --oneshot finished
  1  - Configuration or startup error
  96 - No inverter passed registration`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVarP(&configPath, "config", "F", "", "Configuration file (INI, YAML, TOML or JSON)")
	monitorCmd.Flags().StringVarP(&logPath, "logpath", "l", "", "Root of the per-inverter CSV logs")
	monitorCmd.Flags().BoolVarP(&oneshot, "oneshot", "o", false, "Poll every inverter once and exit")
	monitorCmd.Flags().BoolVar(&monitorTUI, "tui", false, "Show a live dashboard instead of log output")
	monitorCmd.MarkFlagRequired("config")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	v := config.New()
	if err := v.BindPFlag("global.logpath", cmd.Flags().Lookup("logpath")); err != nil {
		return err
	}
	cfg, err := config.Read(v, configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration %s:\n%w", configPath, err)
	}
	if debug {
		cfg.Global.LogLevel = "debug"
	}

	logger, err := logging.New(cfg.Global.LogLevel, cfg.Global.LogFormat)
	if err != nil {
		return err
	}
	if monitorTUI {
		// the dashboard owns the terminal
		logger = zap.NewNop()
	}
	defer logger.Sync()

	opts := monitor.Options{
		Link:    link.Options{Username: cfg.Global.BridgeUsername, SkipSSLVerify: wsNoSSLVerify},
		Oneshot: oneshot,
		Logger:  logger,
	}
	if opts.Link.Username != "" {
		if opts.Link.Password, err = link.Password(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if monitorTUI {
		err = runMonitorTUI(ctx, cfg, opts)
	} else {
		err = monitor.New(cfg, opts).Run(ctx)
	}

	if errors.Is(err, monitor.ErrNothingToMonitor) {
		fmt.Fprintln(os.Stderr, "No inverters passed registration for monitoring")
		exitAfter(exitNothingToMonitor, logger, stop)
	}
	return err
}

var osExit = os.Exit

// exitAfter leaves with code once stop has run and logger is flushed.
// Deferred calls do not run on os.Exit.
func exitAfter(code int, logger *zap.Logger, stop func()) {
	stop()
	_ = logger.Sync()
	osExit(code)
}
