// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package ppmanager

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hamzahrami/zabbix/pkg/pplog"
)

// startDebugServer launches the read-only operational HTTP surface on
// addr. It never blocks the caller and never returns an error for a bind
// failure in the background goroutine beyond logging it, matching this
// corpus's pattern of treating the debug surface as best-effort.
func (m *Manager) startDebugServer(addr string) {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", m.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/debug/queue", m.handleDebugQueue).Methods(http.MethodGet)
	r.HandleFunc("/debug/workers", m.handleDebugWorkers).Methods(http.MethodGet)
	r.Handle("/debug/metrics", promhttp.HandlerFor(m.promRegistry, promhttp.HandlerOpts{}))

	m.httpSrv = &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := m.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			pplog.Errorf("ppmanager: debug server on %s stopped: %v", addr, err)
		}
	}()

	pplog.Infof("ppmanager: debug surface listening on %s", addr)
}

func (m *Manager) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type queueDebugView struct {
	PendingDepth         int   `json:"pending_depth"`
	InProgressCount      int   `json:"in_progress_count"`
	FinishedPendingDrain int   `json:"finished_pending_drain"`
	Enqueued             int64 `json:"enqueued_total"`
	Drained              int64 `json:"drained_total"`
	Stopped              bool  `json:"stopped"`
}

func (m *Manager) handleDebugQueue(w http.ResponseWriter, r *http.Request) {
	enqueued, drained := m.queue.Totals()
	view := queueDebugView{
		PendingDepth:         m.queue.PendingDepth(),
		InProgressCount:      m.queue.InProgressCount(),
		FinishedPendingDrain: m.queue.FinishedPendingDrain(),
		Enqueued:             enqueued,
		Drained:              drained,
		Stopped:              m.queue.Stopped(),
	}
	writeJSON(w, view)
}

type workerDebugView struct {
	WorkerID     int     `json:"worker_id"`
	State        string  `json:"state"`
	BusyFraction float64 `json:"busy_fraction"`
}

func (m *Manager) handleDebugWorkers(w http.ResponseWriter, r *http.Request) {
	snap := m.tk.Snapshot()
	views := make([]workerDebugView, 0, len(snap))
	for id, status := range snap {
		views = append(views, workerDebugView{
			WorkerID:     id,
			State:        status.State.String(),
			BusyFraction: status.BusyFraction,
		})
	}
	writeJSON(w, views)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		pplog.Errorf("ppmanager: encoding debug response: %v", err)
	}
}
