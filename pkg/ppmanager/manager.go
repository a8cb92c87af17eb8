// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package ppmanager is the integration surface the external supervisor
// uses: enqueueing tasks, harvesting finished ones, and tearing the pool
// down cleanly. It owns the queue, the worker pool's lifecycle, and the
// observability collaborators (timekeeper, stats tracker, debug HTTP,
// metrics emission) described in spec.md §4.4 and its SPEC_FULL.md
// supplement.
package ppmanager

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/hamzahrami/zabbix/pkg/ppconfig"
	"github.com/hamzahrami/zabbix/pkg/ppexec"
	"github.com/hamzahrami/zabbix/pkg/pplog"
	"github.com/hamzahrami/zabbix/pkg/ppqueue"
	"github.com/hamzahrami/zabbix/pkg/ppstats"
	"github.com/hamzahrami/zabbix/pkg/pptask"
	"github.com/hamzahrami/zabbix/pkg/pptimekeeper"
	"github.com/hamzahrami/zabbix/pkg/ppworker"
)

// Manager is the external supervisor's handle onto the preprocessing
// scheduler: construct one, Start it, Enqueue tasks and FetchFinished
// results from other goroutines, Shutdown when done.
type Manager struct {
	cfg      ppconfig.Settings
	queue    *ppqueue.Queue
	executor *ppexec.Executor
	tk       *pptimekeeper.Timekeeper
	stats    *ppstats.Tracker

	workers []*ppworker.Worker
	eg      *errgroup.Group

	httpSrv      *http.Server
	statsd       statsdEmitter
	metricsDone  chan struct{}
	metricsGroup errgroup.Group

	promRegistry *prometheus.Registry
}

// New builds a Manager. registry is the step-evaluator registry every
// worker's executor context will share; it is the caller's responsibility
// to register whatever step kinds the configuration it will schedule
// actually uses before calling Start.
func New(cfg ppconfig.Settings, registry *ppexec.Registry) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	m := &Manager{
		cfg:          cfg,
		queue:        ppqueue.New(),
		executor:     ppexec.NewExecutor(registry),
		tk:           pptimekeeper.NewWithMetrics(reg, "pp_worker_busy_fraction"),
		stats:        ppstats.NewTracker(),
		promRegistry: reg,
	}
	return m, nil
}

// Start constructs and launches cfg.WorkerCount workers. If any worker
// fails to construct, no goroutine has been started yet, so there is
// nothing to tear down beyond returning the error (spec.md §7 category 4).
func (m *Manager) Start() error {
	for i := 1; i <= m.cfg.WorkerCount; i++ {
		w, err := ppworker.NewWorker(i, m.queue, m.executor.NewContext(), m.tk)
		if err != nil {
			return fmt.Errorf("ppmanager: starting worker %d of %d: %w", i, m.cfg.WorkerCount, err)
		}
		m.workers = append(m.workers, w)
	}

	m.eg = &errgroup.Group{}
	for _, w := range m.workers {
		worker := w
		m.eg.Go(func() error {
			worker.Run()
			return nil
		})
	}

	pplog.Infof("ppmanager: started %d workers", len(m.workers))

	if m.cfg.DebugAddr != "" {
		m.startDebugServer(m.cfg.DebugAddr)
	}
	m.startMetricsLoop()

	return nil
}

// Enqueue hands a task to the queue; ownership transfers to the queue
// (spec.md §4.4).
func (m *Manager) Enqueue(t *pptask.Task) error {
	return m.queue.Enqueue(t)
}

// FetchFinished drains and returns completed tasks, folding each into the
// stats tracker before handing ownership back to the caller.
func (m *Manager) FetchFinished() []*pptask.Task {
	batch := m.queue.FetchFinished()
	for _, t := range batch {
		m.stats.Record(t.ItemID, t.Result)
	}
	return batch
}

// PendingDepth is a best-effort snapshot of how many task units are
// waiting to start, counting each sub-task folded into an in-flight
// SEQUENCE individually (see ppqueue.Queue.PendingDepth).
func (m *Manager) PendingDepth() int { return m.queue.PendingDepth() }

// InProgressCount is a best-effort snapshot of tasks currently held by
// workers.
func (m *Manager) InProgressCount() int { return m.queue.InProgressCount() }

// Stats exposes the per-item_id completion counters accumulated so far.
func (m *Manager) Stats() *ppstats.Tracker { return m.stats }

// Shutdown sets the stop flag on every worker, waits for each to finish its
// current task and exit, then tears down the debug server and metrics
// loop. The caller is expected to have already drained FetchFinished of
// everything it cares about, or to drain once more after Shutdown returns:
// Stop does not discard pending or in-flight work, it only stops accepting
// new waits once that work is drained (spec.md §7 category 5).
func (m *Manager) Shutdown(ctx context.Context) error {
	m.queue.Stop()

	done := make(chan error, 1)
	go func() { done <- m.eg.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("ppmanager: worker pool shutdown: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	if m.metricsDone != nil {
		close(m.metricsDone)
		_ = m.metricsGroup.Wait()
	}

	if m.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("ppmanager: debug server shutdown: %w", err)
		}
	}

	if m.statsd != nil {
		_ = m.statsd.Close()
	}

	pplog.Infof("ppmanager: shutdown complete")
	return nil
}
