// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package ppexec

import (
	"context"
	"errors"

	"github.com/hamzahrami/zabbix/pkg/pptask"
)

// Executor owns the step registry handed to every worker's Context. It
// holds no per-run state itself; it is safe to share across workers.
type Executor struct {
	registry *Registry
}

// NewExecutor builds an Executor backed by registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// NewContext returns a fresh per-worker scratch area. Callers must create
// exactly one Context per worker and never share it across goroutines.
func (e *Executor) NewContext() *Context {
	return &Context{registry: e.registry}
}

// Context is a worker's private execution scratch space: step-registry
// handle plus a reused buffer for per-step results. It is never shared
// between workers (spec.md §4.2).
type Context struct {
	registry *Registry
	stepBuf  []pptask.StepResult
}

// RunInput is everything one pipeline run needs.
type RunInput struct {
	Steps []pptask.Step
	Input pptask.Value

	// ItemID and Cache are optional: a nil Cache opts this run out of
	// writing the value cache, matching spec.md's "treat the cache as
	// opt-in per task instance".
	ItemID pptask.ItemID
	Cache  pptask.ValueCache

	// RecordSteps and StepResultsOut are set only for TEST tasks; when
	// RecordSteps is true, StepResultsOut is overwritten with one entry
	// per step actually executed.
	RecordSteps    bool
	StepResultsOut *[]pptask.StepResult
}

// Run drives in.Steps against the registry, in order, starting from
// in.Input. It short-circuits on the first step error, recording the
// 1-based failing step index. On full success with a non-nil Cache, it
// writes the final value into the cache under ItemID — after the pipeline
// succeeds, never before (spec.md §4.2, §3 invariant 4).
func (c *Context) Run(ctx context.Context, in RunInput) pptask.Result {
	if in.RecordSteps {
		c.stepBuf = c.stepBuf[:0]
	}

	cur := in.Input
	for idx, step := range in.Steps {
		next, err := c.registry.mustEvaluate(ctx, step.Kind, cur, step.Params)
		if err != nil {
			return c.finishOnError(in, idx, err)
		}
		cur = next
		if in.RecordSteps {
			c.stepBuf = append(c.stepBuf, pptask.StepResult{Value: cur})
		}
	}

	if in.RecordSteps {
		c.flushStepResults(in)
	}

	if in.Cache != nil {
		in.Cache.Set(in.ItemID, cur, cur.Timestamp)
	}
	return pptask.Result{Value: cur, Disposition: pptask.Normal}
}

func (c *Context) finishOnError(in RunInput, idx int, err error) pptask.Result {
	switch {
	case errors.Is(err, ErrDiscard):
		if in.RecordSteps {
			c.stepBuf = append(c.stepBuf, pptask.StepResult{Value: pptask.NoneValue(in.Input.Timestamp)})
			c.flushStepResults(in)
		}
		return pptask.Result{Disposition: pptask.Discarded}
	case errors.Is(err, ErrStepNotSupported):
		if in.RecordSteps {
			c.stepBuf = append(c.stepBuf, pptask.StepResult{Err: err.Error()})
			c.flushStepResults(in)
		}
		return pptask.Result{Disposition: pptask.NotSupported, Err: err.Error(), FailedStep: idx + 1}
	default:
		if in.RecordSteps {
			c.stepBuf = append(c.stepBuf, pptask.StepResult{Err: err.Error()})
			c.flushStepResults(in)
		}
		return pptask.Result{Err: err.Error(), FailedStep: idx + 1}
	}
}

func (c *Context) flushStepResults(in RunInput) {
	if in.StepResultsOut == nil {
		return
	}
	out := make([]pptask.StepResult, len(c.stepBuf))
	copy(out, c.stepBuf)
	*in.StepResultsOut = out
}
