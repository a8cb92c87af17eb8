// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package ppconfig loads the scheduler's settings through a viper instance,
// in the same global-config-object style this corpus's pkg/config uses,
// scoped down to what the preprocessing scheduler needs: worker count,
// queue wait timeout, cache capacity, log level, and the optional debug
// HTTP / DogStatsD addresses. Configuration *reload* is explicitly out of
// scope (spec.md §1 Non-goals); this package only loads once at startup.
package ppconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "PP"

// Settings are the scheduler's startup parameters.
type Settings struct {
	// WorkerCount is the fixed number of worker goroutines. Spec.md §4.3:
	// configured at startup and fixed for the life of the process.
	WorkerCount int `mapstructure:"worker_count"`
	// QueueWaitTimeout is validated at load time (it must be positive). The
	// worker pool does not read it: each worker waits at most
	// ppworker.DefaultWaitTimeout before re-checking the stop condition.
	QueueWaitTimeout time.Duration `mapstructure:"queue_wait_timeout"`
	// CacheCapacity is validated at load time and logged by cmd/ppd. Neither
	// cmd/ppd nor pkg/ppmanager builds a value cache from it; a task writes
	// to whatever cache its caller attached to it, if any (see pkg/ppcache).
	CacheCapacity int `mapstructure:"cache_capacity"`
	// LogLevel is one of trace, debug, info, warn, error, critical, off.
	LogLevel string `mapstructure:"log_level"`
	// DebugAddr, if non-empty, is the listen address for the manager's
	// read-only debug HTTP surface.
	DebugAddr string `mapstructure:"debug_addr"`
	// StatsdAddr, if non-empty, is the address of a DogStatsD agent the
	// manager periodically reports queue/worker metrics to.
	StatsdAddr string `mapstructure:"statsd_addr"`
	// MetricsInterval is how often the manager publishes timekeeper and
	// queue-depth metrics.
	MetricsInterval time.Duration `mapstructure:"metrics_interval"`
}

// Default returns the settings a bare invocation of cmd/ppd should use.
func Default() Settings {
	return Settings{
		WorkerCount:      4,
		QueueWaitTimeout: time.Second,
		CacheCapacity:    10000,
		LogLevel:         "info",
		DebugAddr:        "",
		StatsdAddr:       "",
		MetricsInterval:  10 * time.Second,
	}
}

// New builds a viper instance wired the way this corpus's pkg/config wires
// its global Config: a registered set of defaults, an optional config file
// path, and environment variable overrides under the PP_ prefix (e.g.
// PP_WORKER_COUNT=8).
func New(configFile string) (Settings, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("worker_count", def.WorkerCount)
	v.SetDefault("queue_wait_timeout", def.QueueWaitTimeout)
	v.SetDefault("cache_capacity", def.CacheCapacity)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("debug_addr", def.DebugAddr)
	v.SetDefault("statsd_addr", def.StatsdAddr)
	v.SetDefault("metrics_interval", def.MetricsInterval)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("ppconfig: reading %s: %w", configFile, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("ppconfig: unmarshal: %w", err)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate rejects settings that would make the scheduler meaningless or
// unsafe to start (spec.md §7 category 4: "Worker create failure — fatal
// at startup").
func (s Settings) Validate() error {
	if s.WorkerCount <= 0 {
		return fmt.Errorf("ppconfig: worker_count must be positive, got %d", s.WorkerCount)
	}
	if s.CacheCapacity <= 0 {
		return fmt.Errorf("ppconfig: cache_capacity must be positive, got %d", s.CacheCapacity)
	}
	if s.QueueWaitTimeout <= 0 {
		return fmt.Errorf("ppconfig: queue_wait_timeout must be positive, got %s", s.QueueWaitTimeout)
	}
	return nil
}
