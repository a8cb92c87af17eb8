// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package ppmanager

import (
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/cenkalti/backoff/v4"

	"github.com/hamzahrami/zabbix/pkg/pplog"
)

// statsdEmitter is the subset of *statsd.Client the metrics loop needs,
// kept as an interface so tests can substitute a recording fake without
// dialing a real agent.
type statsdEmitter interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Close() error
}

// dialStatsd connects to addr, retrying with backoff in the same pattern
// this corpus uses for dialing dependent services at startup: a handful of
// exponential-backoff attempts rather than failing fast on the first
// transient DNS or connection error.
func dialStatsd(addr string) (*statsd.Client, error) {
	var client *statsd.Client
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 10 * time.Second

	err := backoff.Retry(func() error {
		c, err := statsd.New(addr, statsd.WithNamespace("preprocessing."))
		if err != nil {
			return err
		}
		client = c
		return nil
	}, b)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// startMetricsLoop launches the periodic publisher: timekeeper busy
// fractions always go to Prometheus/expvar via Publish, and when a statsd
// address is configured, queue depth and in-progress count additionally go
// to DogStatsD. The loop is joined in Shutdown via metricsGroup.
func (m *Manager) startMetricsLoop() {
	if m.cfg.StatsdAddr != "" {
		client, err := dialStatsd(m.cfg.StatsdAddr)
		if err != nil {
			pplog.Warnf("ppmanager: could not dial statsd at %s, continuing without it: %v", m.cfg.StatsdAddr, err)
		} else {
			m.statsd = client
		}
	}

	m.metricsDone = make(chan struct{})
	interval := m.cfg.MetricsInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	m.metricsGroup.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.publishOnce()
			case <-m.metricsDone:
				return nil
			}
		}
	})
}

func (m *Manager) publishOnce() {
	m.tk.Publish()

	if m.statsd == nil {
		return
	}
	if err := m.statsd.Gauge("queue.pending_depth", float64(m.PendingDepth()), nil, 1); err != nil {
		pplog.Warnf("ppmanager: statsd gauge queue.pending_depth: %v", err)
	}
	if err := m.statsd.Gauge("queue.in_progress", float64(m.InProgressCount()), nil, 1); err != nil {
		pplog.Warnf("ppmanager: statsd gauge queue.in_progress: %v", err)
	}
}
