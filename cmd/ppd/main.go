// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Command ppd runs the preprocessing task scheduler as a standalone
// process, wiring configuration, logging, the step registry, and the
// manager together the way this corpus's agent binaries wire their own
// subsystems in cmd/. It builds no value cache and enqueues no tasks
// itself; it runs the pool until SIGINT or SIGTERM, then shuts it down.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hamzahrami/zabbix/pkg/ppconfig"
	"github.com/hamzahrami/zabbix/pkg/ppexec"
	"github.com/hamzahrami/zabbix/pkg/pplog"
	"github.com/hamzahrami/zabbix/pkg/ppmanager"
)

var configFile string

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ppd",
		Short: "Run the preprocessing task scheduler",
		RunE:  runDaemon,
	}
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML/JSON config file (optional; env PP_* overrides apply regardless)")
	return cmd
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := ppconfig.New(configFile)
	if err != nil {
		return err
	}

	if err := pplog.SetupDefault(cfg.LogLevel); err != nil {
		return err
	}
	defer pplog.Flush()

	pplog.Infof("ppd: starting with %d workers, cache capacity %d", cfg.WorkerCount, cfg.CacheCapacity)

	// Concrete step kinds (JSON path extraction, regex, arithmetic, ...) are
	// a separate concern from the scheduler; a real deployment registers
	// its evaluators here before Start. This binary runs with an empty
	// registry, so any pipeline step fails with ErrStepNotSupported.
	registry := ppexec.NewRegistry()

	mgr, err := ppmanager.New(cfg, registry)
	if err != nil {
		return fmt.Errorf("ppd: %w", err)
	}
	if err := mgr.Start(); err != nil {
		return fmt.Errorf("ppd: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	pplog.Infof("ppd: shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ppd: %w", err)
	}

	pplog.Infof("ppd: stopped cleanly")
	return nil
}
