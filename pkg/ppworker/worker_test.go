// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package ppworker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamzahrami/zabbix/pkg/ppcache"
	"github.com/hamzahrami/zabbix/pkg/ppexec"
	"github.com/hamzahrami/zabbix/pkg/ppqueue"
	"github.com/hamzahrami/zabbix/pkg/pptask"
	"github.com/hamzahrami/zabbix/pkg/pptimekeeper"
)

func newTestRegistry() *ppexec.Registry {
	reg := ppexec.NewRegistry()
	reg.Register("double", ppexec.EvaluatorFunc(func(_ context.Context, v pptask.Value, _ map[string]string) (pptask.Value, error) {
		return pptask.FloatValue(v.Float*2, v.Timestamp), nil
	}))
	reg.Register("boom", ppexec.EvaluatorFunc(func(_ context.Context, v pptask.Value, _ map[string]string) (pptask.Value, error) {
		return pptask.Value{}, fmt.Errorf("boom")
	}))
	reg.Register("panic", ppexec.EvaluatorFunc(func(_ context.Context, v pptask.Value, _ map[string]string) (pptask.Value, error) {
		panic("evaluator exploded")
	}))
	return reg
}

func TestNewWorkerRejectsNilDependencies(t *testing.T) {
	q := ppqueue.New()
	ex := ppexec.NewExecutor(newTestRegistry())
	tk := pptimekeeper.New()

	_, err := NewWorker(1, nil, ex.NewContext(), tk)
	require.Error(t, err)

	_, err = NewWorker(1, q, nil, tk)
	require.Error(t, err)

	_, err = NewWorker(1, q, ex.NewContext(), nil)
	require.Error(t, err)

	w, err := NewWorker(1, q, ex.NewContext(), tk)
	require.NoError(t, err)
	assert.Equal(t, "worker_1", w.Name)
}

func drainUntil(t *testing.T, q *ppqueue.Queue, n int, timeout time.Duration) []*pptask.Task {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var out []*pptask.Task
	for time.Now().Before(deadline) {
		out = append(out, q.FetchFinished()...)
		if len(out) >= n {
			return out
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Len(t, out, n, "did not drain expected number of finished tasks in time")
	return out
}

func TestWorkerProcessesValueTaskAndStops(t *testing.T) {
	q := ppqueue.New()
	ex := ppexec.NewExecutor(newTestRegistry())
	tk := pptimekeeper.New()
	w, err := NewWorker(1, q, ex.NewContext(), tk)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); w.Run() }()

	ts := time.Now()
	require.NoError(t, q.Enqueue(pptask.NewValueTask(1, []pptask.Step{{Kind: "double"}}, pptask.FloatValue(21, ts), ts, nil)))

	finished := drainUntil(t, q, 1, 2*time.Second)
	require.Len(t, finished, 1)
	assert.Equal(t, 42.0, finished[0].Result.Value.Float)

	q.Stop()
	wg.Wait()
}

func TestWorkerPanicStillFinishesTaskWithErrorResult(t *testing.T) {
	q := ppqueue.New()
	ex := ppexec.NewExecutor(newTestRegistry())
	tk := pptimekeeper.New()
	w, err := NewWorker(1, q, ex.NewContext(), tk)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); w.Run() }()

	ts := time.Now()
	require.NoError(t, q.Enqueue(pptask.NewValueTask(1, []pptask.Step{{Kind: "panic"}}, pptask.FloatValue(1, ts), ts, nil)))

	finished := drainUntil(t, q, 1, 2*time.Second)
	require.Len(t, finished, 1)
	assert.Contains(t, finished[0].Result.Err, "panic")

	q.Stop()
	wg.Wait()
}

func TestDependentTaskCacheWriteUsesOwnItemID(t *testing.T) {
	q := ppqueue.New()
	ex := ppexec.NewExecutor(newTestRegistry())
	tk := pptimekeeper.New()
	w, err := NewWorker(1, q, ex.NewContext(), tk)
	require.NoError(t, err)

	cache, err := ppcache.New(8)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); w.Run() }()

	ts := time.Now()
	primary := pptask.NewValueTask(7, []pptask.Step{{Kind: "double"}}, pptask.FloatValue(1.57, ts), ts, cache)
	require.NoError(t, q.Enqueue(primary))
	drainUntil(t, q, 1, 2*time.Second)

	dependent := pptask.NewDependentTask(8, primary, cache)
	require.NoError(t, q.Enqueue(dependent))
	finished := drainUntil(t, q, 1, 2*time.Second)
	require.Len(t, finished, 1)
	assert.InDelta(t, 3.14, finished[0].Result.Value.Float, 1e-9)

	v7, _, ok := cache.Get(7)
	require.True(t, ok)
	assert.InDelta(t, 3.14, v7.Float, 1e-9)

	v8, _, ok := cache.Get(8)
	require.True(t, ok)
	assert.InDelta(t, 3.14, v8.Float, 1e-9)

	q.Stop()
	wg.Wait()
}

func TestSequenceSubTasksExecuteInSubmissionOrder(t *testing.T) {
	q := ppqueue.New()
	ex := ppexec.NewExecutor(newTestRegistry())
	tk := pptimekeeper.New()
	w, err := NewWorker(1, q, ex.NewContext(), tk)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); w.Run() }()

	const n = 20
	for i := 0; i < n; i++ {
		ts := time.Now()
		require.NoError(t, q.Enqueue(pptask.NewValueSeqTask(42, nil, pptask.FloatValue(float64(i), ts), ts, nil)))
	}

	finished := drainUntil(t, q, n, 5*time.Second)
	for i, task := range finished {
		assert.Equal(t, float64(i), task.Result.Value.Float, "sub-task %d out of order", i)
	}

	q.Stop()
	wg.Wait()
}
