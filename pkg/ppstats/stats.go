// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package ppstats holds per-item_id completion counters, adapted from this
// corpus's runner check-stats bookkeeping (pkg/collector/runner) to the
// preprocessing scheduler's task results. Unlike the teacher's package-level
// singleton, this is an instance type: pkg/ppmanager owns one Tracker per
// scheduler instance, which keeps tests (and eventually multiple schedulers
// in one process) from sharing state.
package ppstats

import (
	"sync"
	"time"

	"github.com/hamzahrami/zabbix/pkg/pptask"
)

// ItemStats accumulates completion counters for one item_id.
type ItemStats struct {
	TotalRuns      uint64
	TotalErrors    uint64
	TotalDiscarded uint64
	LastRun        time.Time
	LastError      string
}

// Tracker records ItemStats per item_id, guarded by a single RWMutex in the
// same style as the teacher's runnerCheckStats.
type Tracker struct {
	mu    sync.RWMutex
	stats map[pptask.ItemID]*ItemStats
}

// NewTracker builds an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{stats: make(map[pptask.ItemID]*ItemStats)}
}

// Record should be called once per finished task, after the supervisor has
// read its result, to fold it into that item's running counters.
func (tr *Tracker) Record(id pptask.ItemID, res pptask.Result) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	s, ok := tr.stats[id]
	if !ok {
		s = &ItemStats{}
		tr.stats[id] = s
	}

	s.TotalRuns++
	s.LastRun = time.Now()
	if res.Failed() {
		s.TotalErrors++
		s.LastError = res.Err
	}
	if res.Disposition == pptask.Discarded {
		s.TotalDiscarded++
	}
}

// Get returns a copy of item id's stats, if any have been recorded.
func (tr *Tracker) Get(id pptask.ItemID) (ItemStats, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	s, ok := tr.stats[id]
	if !ok {
		return ItemStats{}, false
	}
	return *s, true
}

// Remove drops item id's stats, e.g. once its monitored item is deleted from
// configuration.
func (tr *Tracker) Remove(id pptask.ItemID) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	delete(tr.stats, id)
}

// All returns a snapshot copy of every tracked item's stats.
func (tr *Tracker) All() map[pptask.ItemID]ItemStats {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	out := make(map[pptask.ItemID]ItemStats, len(tr.stats))
	for id, s := range tr.stats {
		out[id] = *s
	}
	return out
}
