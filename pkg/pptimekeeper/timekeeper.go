// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package pptimekeeper records per-worker busy/idle transitions with
// wall-clock stamps, adapted from this corpus's worker utilization
// tracker (pkg/collector/worker) but scaled to the fixed, 1-indexed worker
// pool of the preprocessing scheduler and exported through both expvar and
// Prometheus rather than expvar alone.
package pptimekeeper

import (
	"expvar"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State is a worker's current activity.
type State int

// Worker activity states.
const (
	Idle State = iota
	Busy
)

func (s State) String() string {
	if s == Busy {
		return "busy"
	}
	return "idle"
}

// WorkerStatus is a point-in-time snapshot of one worker's timekeeping.
type WorkerStatus struct {
	State        State
	Since        time.Time
	BusyFraction float64 // fraction of wall-clock time since registration spent Busy
}

type slot struct {
	state          State
	transitionedAt time.Time
	registeredAt   time.Time
	totalBusy      time.Duration
}

// Timekeeper tracks busy/idle state for a fixed set of 1-indexed worker
// slots. It is safe for concurrent use; workers call MarkBusy/MarkIdle from
// their own goroutine, the manager and debug HTTP surface call Snapshot
// from any goroutine.
type Timekeeper struct {
	mu    sync.Mutex
	slots map[int]*slot

	busyGauge *prometheus.GaugeVec
	expMap    *expvar.Map
}

// New builds a Timekeeper with no metrics export: Publish is a no-op on it.
// Use NewWithMetrics for one that also exports a Prometheus gauge and an
// expvar map.
func New() *Timekeeper {
	return &Timekeeper{
		slots:     make(map[int]*slot),
		busyGauge: nil,
	}
}

// NewWithMetrics builds a Timekeeper whose busy fraction is additionally
// exported. The Prometheus gauge preprocessing_worker_busy_fraction,
// labelled by worker_id, is registered with reg when reg is non-nil. The
// expvar map is published under expName when expName is non-empty;
// Timekeepers built with the same expName share that one map.
func NewWithMetrics(reg prometheus.Registerer, expName string) *Timekeeper {
	tk := New()
	tk.busyGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "preprocessing",
		Subsystem: "worker",
		Name:      "busy_fraction",
		Help:      "Fraction of wall-clock time since registration this worker has spent executing a task.",
	}, []string{"worker_id"})
	if reg != nil {
		reg.MustRegister(tk.busyGauge)
	}
	if expName != "" {
		if existing, ok := expvar.Get(expName).(*expvar.Map); ok {
			tk.expMap = existing
		} else {
			tk.expMap = expvar.NewMap(expName)
		}
	}
	return tk
}

// Register adds worker id to the tracked set, starting it Idle.
func (tk *Timekeeper) Register(id int) {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	tk.slots[id] = &slot{
		state:          Idle,
		transitionedAt: time.Now(),
		registeredAt:   time.Now(),
	}
}

// Deregister drops worker id from the tracked set.
func (tk *Timekeeper) Deregister(id int) {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	delete(tk.slots, id)
	if tk.busyGauge != nil {
		tk.busyGauge.DeleteLabelValues(labelFor(id))
	}
}

// MarkBusy transitions worker id to Busy.
func (tk *Timekeeper) MarkBusy(id int) {
	tk.transition(id, Busy)
}

// MarkIdle transitions worker id to Idle, folding the just-finished busy
// span into its cumulative busy time.
func (tk *Timekeeper) MarkIdle(id int) {
	tk.transition(id, Idle)
}

func (tk *Timekeeper) transition(id int, next State) {
	tk.mu.Lock()
	defer tk.mu.Unlock()

	s, ok := tk.slots[id]
	if !ok {
		s = &slot{state: Idle, transitionedAt: time.Now(), registeredAt: time.Now()}
		tk.slots[id] = s
	}
	now := time.Now()
	if s.state == Busy {
		s.totalBusy += now.Sub(s.transitionedAt)
	}
	s.state = next
	s.transitionedAt = now
}

// Snapshot returns the current status of every tracked worker.
func (tk *Timekeeper) Snapshot() map[int]WorkerStatus {
	tk.mu.Lock()
	defer tk.mu.Unlock()

	out := make(map[int]WorkerStatus, len(tk.slots))
	now := time.Now()
	for id, s := range tk.slots {
		busy := s.totalBusy
		if s.state == Busy {
			busy += now.Sub(s.transitionedAt)
		}
		elapsed := now.Sub(s.registeredAt)
		frac := 0.0
		if elapsed > 0 {
			frac = float64(busy) / float64(elapsed)
		}
		out[id] = WorkerStatus{State: s.state, Since: s.transitionedAt, BusyFraction: frac}
	}
	return out
}

// Publish pushes the current snapshot into the Prometheus gauge and expvar
// map configured via NewWithMetrics. It is a no-op if neither was set up.
// Callers typically invoke this from a periodic ticker (see pkg/ppmanager).
func (tk *Timekeeper) Publish() {
	if tk.busyGauge == nil && tk.expMap == nil {
		return
	}
	for id, status := range tk.Snapshot() {
		if tk.busyGauge != nil {
			tk.busyGauge.WithLabelValues(labelFor(id)).Set(status.BusyFraction)
		}
		if tk.expMap != nil {
			tk.expMap.Set(labelFor(id), expvarFloat(status.BusyFraction))
		}
	}
}

func labelFor(id int) string {
	return strconv.Itoa(id)
}

type expvarFloat float64

func (f expvarFloat) String() string {
	return fmt.Sprintf("%.3f", float64(f))
}
