// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package ppexec

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamzahrami/zabbix/pkg/ppcache"
	"github.com/hamzahrami/zabbix/pkg/pptask"
)

func multiplyStep(factor float64) StepEvaluator {
	return EvaluatorFunc(func(_ context.Context, v pptask.Value, _ map[string]string) (pptask.Value, error) {
		return pptask.FloatValue(v.Float*factor, v.Timestamp), nil
	})
}

func failingStep(msg string) StepEvaluator {
	return EvaluatorFunc(func(_ context.Context, v pptask.Value, _ map[string]string) (pptask.Value, error) {
		return pptask.Value{}, fmt.Errorf(msg)
	})
}

func discardStep() StepEvaluator {
	return EvaluatorFunc(func(_ context.Context, _ pptask.Value, _ map[string]string) (pptask.Value, error) {
		return pptask.Value{}, ErrDiscard
	})
}

func TestRunSuccessWritesCache(t *testing.T) {
	reg := NewRegistry()
	reg.Register("double", multiplyStep(2))

	cache, err := ppcache.New(8)
	require.NoError(t, err)

	ex := NewExecutor(reg)
	c := ex.NewContext()

	ts := time.Now()
	res := c.Run(context.Background(), RunInput{
		Steps:  []pptask.Step{{Kind: "double"}},
		Input:  pptask.FloatValue(1.57, ts),
		ItemID: 7,
		Cache:  cache,
	})

	require.False(t, res.Failed())
	assert.Equal(t, pptask.Normal, res.Disposition)
	assert.InDelta(t, 3.14, res.Value.Float, 1e-9)

	cached, cachedTS, ok := cache.Get(7)
	require.True(t, ok)
	assert.InDelta(t, 3.14, cached.Float, 1e-9)
	assert.True(t, ts.Equal(cachedTS))
}

func TestRunErrorAtStepIndexDoesNotWriteCache(t *testing.T) {
	reg := NewRegistry()
	reg.Register("double", multiplyStep(2))
	reg.Register("bad", failingStep("boom"))

	cache, err := ppcache.New(8)
	require.NoError(t, err)

	ex := NewExecutor(reg)
	c := ex.NewContext()

	res := c.Run(context.Background(), RunInput{
		Steps: []pptask.Step{
			{Kind: "double"}, {Kind: "double"}, {Kind: "bad"}, {Kind: "double"}, {Kind: "double"},
		},
		Input:  pptask.FloatValue(1, time.Now()),
		ItemID: 11,
		Cache:  cache,
	})

	require.True(t, res.Failed())
	assert.Equal(t, 3, res.FailedStep)
	assert.Contains(t, res.Err, "boom")

	_, _, ok := cache.Get(11)
	assert.False(t, ok)
}

func TestRunDiscardProducesDiscardedDisposition(t *testing.T) {
	reg := NewRegistry()
	reg.Register("throttle", discardStep())

	ex := NewExecutor(reg)
	c := ex.NewContext()

	res := c.Run(context.Background(), RunInput{
		Steps: []pptask.Step{{Kind: "throttle"}},
		Input: pptask.FloatValue(1, time.Now()),
	})

	assert.False(t, res.Failed())
	assert.Equal(t, pptask.Discarded, res.Disposition)
}

func TestRunUnknownStepKindIsNotSupported(t *testing.T) {
	ex := NewExecutor(NewRegistry())
	c := ex.NewContext()

	res := c.Run(context.Background(), RunInput{
		Steps: []pptask.Step{{Kind: "nonexistent"}},
		Input: pptask.FloatValue(1, time.Now()),
	})

	require.True(t, res.Failed())
	assert.Equal(t, pptask.NotSupported, res.Disposition)
	assert.Equal(t, 1, res.FailedStep)
}

func TestRunRecordsStepResultsForTestTasks(t *testing.T) {
	reg := NewRegistry()
	reg.Register("double", multiplyStep(2))

	ex := NewExecutor(reg)
	c := ex.NewContext()

	var stepResults []pptask.StepResult
	res := c.Run(context.Background(), RunInput{
		Steps: []pptask.Step{
			{Kind: "double"}, {Kind: "double"}, {Kind: "double"}, {Kind: "double"},
		},
		Input:          pptask.FloatValue(1, time.Now()),
		RecordSteps:    true,
		StepResultsOut: &stepResults,
	})

	require.False(t, res.Failed())
	require.Len(t, stepResults, 4)
	assert.Equal(t, 16.0, stepResults[3].Value.Float)
}

func TestContextIsReusedAcrossRuns(t *testing.T) {
	reg := NewRegistry()
	reg.Register("double", multiplyStep(2))

	ex := NewExecutor(reg)
	c := ex.NewContext()

	var first []pptask.StepResult
	c.Run(context.Background(), RunInput{
		Steps:          []pptask.Step{{Kind: "double"}, {Kind: "double"}},
		Input:          pptask.FloatValue(1, time.Now()),
		RecordSteps:    true,
		StepResultsOut: &first,
	})

	var second []pptask.StepResult
	c.Run(context.Background(), RunInput{
		Steps:          []pptask.Step{{Kind: "double"}},
		Input:          pptask.FloatValue(1, time.Now()),
		RecordSteps:    true,
		StepResultsOut: &second,
	})

	require.Len(t, first, 2)
	require.Len(t, second, 1, "stale entries from the first run must not leak into the second")
}
