// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package ppqueue is the concurrency core of the preprocessing scheduler: a
// single shared queue with four internal lanes (pending, in_progress,
// finished, sequences) that routes TEST, VALUE, VALUE_SEQ, DEPENDENT and
// (internally) SEQUENCE tasks to a pool of workers while guaranteeing
// at-most-one in-flight task per ordered item.
package ppqueue

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/hamzahrami/zabbix/pkg/pplog"
	"github.com/hamzahrami/zabbix/pkg/pptask"
)

// ErrShuttingDown is returned by Wait once Stop has been called. Dequeue
// reports the same condition as (nil, false), and only after the pending
// lane has drained.
var ErrShuttingDown = errors.New("ppqueue: queue is shutting down")

// ErrInvalidTask is returned by Enqueue when the caller passes a task kind
// the queue does not accept from external callers (SEQUENCE is an internal
// scheduling construct only).
var ErrInvalidTask = errors.New("ppqueue: sequence tasks cannot be enqueued directly")

// Queue is the four-lane task queue described by spec.md §4.1. All lane
// mutations happen under mu; waiters are woken by closing (and replacing)
// notifyCh, a Go-idiomatic stand-in for a condition variable's broadcast
// that additionally supports a bounded, cancelable wait via select.
type Queue struct {
	mu sync.Mutex

	pending    *list.List // of *pptask.Task
	inProgress map[*pptask.Task]struct{}
	finished   []*pptask.Task
	sequences  map[pptask.ItemID]*pptask.Task

	notifyCh chan struct{}

	stopped  bool
	stopOnce sync.Once

	workerCount atomic.Int64
	enqueued    atomic.Int64
	drained     atomic.Int64
	finishedCnt atomic.Int64
}

// New builds an empty task queue.
func New() *Queue {
	return &Queue{
		pending:    list.New(),
		inProgress: make(map[*pptask.Task]struct{}),
		sequences:  make(map[pptask.ItemID]*pptask.Task),
		notifyCh:   make(chan struct{}),
	}
}

// signalLocked wakes every current waiter. Callers must hold mu.
func (q *Queue) signalLocked() {
	close(q.notifyCh)
	q.notifyCh = make(chan struct{})
}

// RegisterWorker records a newly started worker. Call once per worker at
// startup, before the worker's first Dequeue.
func (q *Queue) RegisterWorker() {
	q.workerCount.Inc()
}

// DeregisterWorker records a worker's exit and wakes anyone waiting on
// WorkerCount-sensitive shutdown bookkeeping.
func (q *Queue) DeregisterWorker() {
	q.workerCount.Dec()
	q.mu.Lock()
	q.signalLocked()
	q.mu.Unlock()
}

// WorkerCount returns the number of currently registered workers.
func (q *Queue) WorkerCount() int {
	return int(q.workerCount.Load())
}

// Enqueue hands a task to the queue; ownership transfers to the queue.
// TEST, VALUE and DEPENDENT tasks join the pending lane directly.
// VALUE_SEQ tasks fold into the existing SEQUENCE for their item_id if one
// is already tracked, or seed a new one. SEQUENCE tasks are an internal
// construct and are rejected here.
func (q *Queue) Enqueue(t *pptask.Task) error {
	if t == nil {
		return fmt.Errorf("ppqueue: cannot enqueue a nil task")
	}
	if t.Kind == pptask.Sequence {
		return ErrInvalidTask
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.enqueued.Inc()
	t.EnqueuedAt = time.Now()

	if t.Kind != pptask.ValueSeq {
		q.pending.PushBack(t)
		q.signalLocked()
		return nil
	}

	if seq, ok := q.sequences[t.ItemID]; ok {
		seq.Sequence.SubTasks.PushBack(t)
		pplog.Tracef("ppqueue: folded value_seq task into existing sequence item_id:%d depth:%d",
			t.ItemID, seq.Sequence.SubTasks.Len())
		return nil
	}

	seq := pptask.NewSequenceTask(t.ItemID)
	seq.Sequence.SubTasks.PushBack(t)
	q.sequences[t.ItemID] = seq
	q.pending.PushBack(seq)
	q.signalLocked()
	return nil
}

// PopNew removes and returns the head of the pending lane, moving it into
// in_progress. It returns (nil, false) if pending is empty. For a SEQUENCE,
// the SEQUENCE itself is moved to in_progress and returned with
// Sequence.Head snapshotted to its current head sub-task while still
// holding mu; the caller is expected to execute that snapshot and return
// the SEQUENCE, unchanged, to PushFinished. Callers must read Head rather
// than call SequencePayload.Front themselves, since Enqueue can mutate the
// same SEQUENCE's internal list concurrently while it is checked out.
func (q *Queue) PopNew() (*pptask.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popNewLocked()
}

func (q *Queue) popNewLocked() (*pptask.Task, bool) {
	front := q.pending.Front()
	if front == nil {
		return nil, false
	}
	q.pending.Remove(front)
	t := front.Value.(*pptask.Task)
	q.inProgress[t] = struct{}{}

	if t.Kind == pptask.Sequence {
		// Snapshot the head sub-task while still holding mu, so the
		// worker never touches SubTasks itself: Enqueue can fold a new
		// VALUE_SEQ task into this same SEQUENCE's internal list while
		// the worker is executing, which would otherwise race with a
		// worker-side Front() call (spec.md §4.1, §8 scenario 2).
		t.Sequence.Head = t.Sequence.Front()
	}
	return t, true
}

// PushFinished returns a task taken by PopNew. For a plain task it moves
// straight to the finished lane. For a SEQUENCE, the sub-task that was just
// executed (the one PopNew snapshotted into Sequence.Head) is popped from
// the sequence's internal queue and placed on finished in its own right, so the
// supervisor observes each sub-task completion individually and in
// submission order (spec.md §6, §8); the SEQUENCE wrapper is requeued if
// sub-tasks remain, or retired from the sequences lane once drained. The
// SEQUENCE wrapper itself is never placed on finished.
func (q *Queue) PushFinished(t *pptask.Task) {
	if t == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.inProgress, t)

	if t.Kind != pptask.Sequence {
		q.finished = append(q.finished, t)
		q.finishedCnt.Inc()
		q.signalLocked()
		return
	}

	front := t.Sequence.SubTasks.Front()
	if front == nil {
		// Programming error: a SEQUENCE must never be popped or finished
		// with an empty internal queue (spec.md §7 category 2).
		panic("ppqueue: push_finished called on a sequence with no sub-task to retire")
	}
	sub := front.Value.(*pptask.Task)
	t.Sequence.SubTasks.Remove(front)
	q.finished = append(q.finished, sub)
	q.finishedCnt.Inc()
	t.Sequence.Head = nil

	if t.Sequence.SubTasks.Len() == 0 {
		delete(q.sequences, t.ItemID)
	} else {
		q.pending.PushBack(t)
	}
	q.signalLocked()
}

// Wait blocks until the pending lane becomes non-empty, the queue is
// stopped, or timeout elapses, whichever happens first. It returns nil on a
// spurious or real wakeup the caller should re-check pending for, and
// ErrShuttingDown once stopped.
func (q *Queue) Wait(timeout time.Duration) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrShuttingDown
	}
	ch := q.notifyCh
	q.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return nil
	case <-timer.C:
		return nil
	}
}

// Dequeue is the convenience loop workers use: pop a runnable task, or wait
// for one to arrive, until the queue stops and pending drains. It returns
// (nil, false) once there is nothing left to do.
func (q *Queue) Dequeue(waitTimeout time.Duration) (*pptask.Task, bool) {
	for {
		q.mu.Lock()
		t, ok := q.popNewLocked()
		if ok {
			q.mu.Unlock()
			return t, true
		}
		stopped := q.stopped
		q.mu.Unlock()

		if stopped {
			return nil, false
		}

		if err := q.Wait(waitTimeout); err != nil {
			return nil, false
		}
	}
}

// FetchFinished drains and returns every task currently on the finished
// lane. Ownership returns to the caller.
func (q *Queue) FetchFinished() []*pptask.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.finished) == 0 {
		return nil
	}
	out := q.finished
	q.finished = nil
	q.drained.Add(int64(len(out)))
	return out
}

// Stop marks the queue as shutting down and wakes every waiter. It does not
// drop or clear pending work; the supervisor is expected to keep draining
// FetchFinished and calling Dequeue-backed workers until pending and
// in_progress both reach zero before tearing down the pool.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		q.signalLocked()
		q.mu.Unlock()
	})
}

// Stopped reports whether Stop has been called.
func (q *Queue) Stopped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopped
}

// PendingDepth returns the number of individual task units waiting to
// start, best-effort (the queue may mutate immediately after this
// returns). A plain pending task counts once. A SEQUENCE wrapper sitting
// in the pending lane counts once per sub-task it still holds, since none
// of them have started; a SEQUENCE wrapper currently checked out to a
// worker counts once per sub-task behind its executing head, since those
// are still waiting their turn even though the wrapper itself is not in
// the pending lane. This keeps the spec.md §8 accounting identity
// (pending + in_progress + finished-not-drained == enqueued - drained)
// true at every sub-task granularity, not just at the list-node level.
func (q *Queue) PendingDepth() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	depth := 0
	for e := q.pending.Front(); e != nil; e = e.Next() {
		depth += unitsWaiting(e.Value.(*pptask.Task), false)
	}
	for t := range q.inProgress {
		depth += unitsWaiting(t, true)
	}
	return depth
}

// unitsWaiting reports how many of t's sub-task units are still waiting to
// start. checkedOut reports whether t is currently held by a worker, in
// which case a SEQUENCE's head sub-task is executing rather than waiting.
func unitsWaiting(t *pptask.Task, checkedOut bool) int {
	if t.Kind != pptask.Sequence {
		if checkedOut {
			return 0
		}
		return 1
	}
	n := t.Sequence.SubTasks.Len()
	if checkedOut && n > 0 {
		return n - 1
	}
	return n
}

// InProgressCount returns the number of task units currently held by
// workers: a plain task counts once, and a SEQUENCE wrapper counts once
// for the single sub-task actually executing at its head (the rest of its
// internal queue is still waiting and is accounted for by PendingDepth).
func (q *Queue) InProgressCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inProgress)
}

// FinishedPendingDrain returns the number of tasks sitting in the finished
// lane, awaiting a FetchFinished call.
func (q *Queue) FinishedPendingDrain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.finished)
}

// Totals returns the lifetime enqueued and drained counters, useful for the
// accounting identity in spec.md §8: pending + in_progress +
// finished-not-yet-drained == enqueued - drained.
func (q *Queue) Totals() (enqueued, drained int64) {
	return q.enqueued.Load(), q.drained.Load()
}
