// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package ppworker is the fixed-size pool of identical worker goroutines
// that drain pkg/ppqueue and drive each task through pkg/ppexec, adapted
// from this corpus's collector worker loop (pkg/collector/worker) to the
// four task kinds and the SEQUENCE scheduling token of the preprocessing
// queue.
package ppworker

import (
	"context"
	"fmt"
	"time"

	"github.com/hamzahrami/zabbix/pkg/ppexec"
	"github.com/hamzahrami/zabbix/pkg/pplog"
	"github.com/hamzahrami/zabbix/pkg/ppqueue"
	"github.com/hamzahrami/zabbix/pkg/pptask"
	"github.com/hamzahrami/zabbix/pkg/pptimekeeper"
)

// DefaultWaitTimeout bounds how long Run's Dequeue call blocks before
// re-checking the stop condition, matching spec.md §5's "wait() uses a
// bounded wait so a stopping supervisor is observed promptly".
const DefaultWaitTimeout = time.Second

// Worker is one of the N identical threads draining the task queue. Each
// Worker owns a private ppexec.Context (buffer reuse, step-registry
// handle) that is never shared with another worker.
type Worker struct {
	ID   int
	Name string

	queue       *ppqueue.Queue
	execCtx     *ppexec.Context
	timekeeper  *pptimekeeper.Timekeeper
	waitTimeout time.Duration
}

// NewWorker builds a Worker after basic parameter sanity checks.
func NewWorker(id int, queue *ppqueue.Queue, execCtx *ppexec.Context, timekeeper *pptimekeeper.Timekeeper) (*Worker, error) {
	if queue == nil {
		return nil, fmt.Errorf("ppworker: worker cannot initialize using a nil queue")
	}
	if execCtx == nil {
		return nil, fmt.Errorf("ppworker: worker cannot initialize using a nil exec context")
	}
	if timekeeper == nil {
		return nil, fmt.Errorf("ppworker: worker cannot initialize using a nil timekeeper")
	}

	return &Worker{
		ID:          id,
		Name:        fmt.Sprintf("worker_%d", id),
		queue:       queue,
		execCtx:     execCtx,
		timekeeper:  timekeeper,
		waitTimeout: DefaultWaitTimeout,
	}, nil
}

// Run registers the worker and loops pop-execute-push-finished until the
// queue is stopped and drained. It returns when there is no more work to
// do; callers typically run it in its own goroutine and join via
// errgroup.Wait (see pkg/ppmanager).
func (w *Worker) Run() {
	pplog.Debugf("%s: ready to process tasks", w.Name)

	w.queue.RegisterWorker()
	w.timekeeper.Register(w.ID)

	defer func() {
		w.timekeeper.Deregister(w.ID)
		w.queue.DeregisterWorker()
		pplog.Debugf("%s: stopped", w.Name)
	}()

	for {
		t, ok := w.queue.Dequeue(w.waitTimeout)
		if !ok {
			return
		}

		w.timekeeper.MarkBusy(w.ID)
		w.process(t)
		w.timekeeper.MarkIdle(w.ID)

		w.queue.PushFinished(t)
	}
}

// process dispatches t by its task kind and guarantees, per spec.md §4.1's
// failure semantics, that a panic mid-execution still leaves the task (or
// its active sub-task, for a SEQUENCE) carrying an error result rather than
// being lost: the caller always proceeds to PushFinished afterwards.
func (w *Worker) process(t *pptask.Task) {
	defer func() {
		if r := recover(); r != nil {
			target := t
			if t.Kind == pptask.Sequence {
				if sub := t.Sequence.Head; sub != nil {
					target = sub
				}
			}
			target.Result = pptask.Result{Err: fmt.Sprintf("panic: %v", r)}
			pplog.Errorf("%s: recovered from panic processing item_id:%d kind:%s: %v", w.Name, t.ItemID, t.Kind, r)
		}
	}()
	w.dispatch(t)
}

func (w *Worker) dispatch(t *pptask.Task) {
	switch t.Kind {
	case pptask.Test:
		w.runTest(t)
	case pptask.Value, pptask.ValueSeq:
		w.runValue(t)
	case pptask.Dependent:
		w.runDependent(t)
	case pptask.Sequence:
		// Head was snapshotted by PopNew under the queue's lock; touching
		// SubTasks directly here would race with a concurrent Enqueue
		// folding a new sub-task into this same SEQUENCE.
		sub := t.Sequence.Head
		if sub == nil {
			panic("ppworker: sequence popped with an empty internal queue")
		}
		switch sub.Kind {
		case pptask.Value, pptask.ValueSeq:
			w.runValue(sub)
		case pptask.Dependent:
			w.runDependent(sub)
		default:
			panic(fmt.Sprintf("ppworker: unexpected sub-task kind %s in sequence", sub.Kind))
		}
	default:
		panic(fmt.Sprintf("ppworker: unexpected task kind %s", t.Kind))
	}
}

func (w *Worker) runTest(t *pptask.Task) {
	p := t.Test
	t.Result = w.execCtx.Run(context.Background(), ppexec.RunInput{
		Steps:          p.Steps,
		Input:          p.Input,
		ItemID:         t.ItemID,
		RecordSteps:    true,
		StepResultsOut: p.StepResults,
	})
}

func (w *Worker) runValue(t *pptask.Task) {
	p := t.Value
	t.Result = w.execCtx.Run(context.Background(), ppexec.RunInput{
		Steps:  p.Steps,
		Input:  p.Input,
		ItemID: t.ItemID,
		Cache:  p.Cache,
	})
}

// runDependent runs the primary task's step list against the primary's
// input, writing the result to the cache under the dependent's own
// item_id — never the primary's (spec.md §3 invariant, §4.2).
func (w *Worker) runDependent(t *pptask.Task) {
	d := t.Dependent
	primary := d.Primary.Value
	t.Result = w.execCtx.Run(context.Background(), ppexec.RunInput{
		Steps:  primary.Steps,
		Input:  primary.Input,
		ItemID: t.ItemID,
		Cache:  d.Cache,
	})
}
