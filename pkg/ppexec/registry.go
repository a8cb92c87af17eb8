// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package ppexec drives a task's step list against a pluggable registry of
// step evaluators. Concrete step kinds (JSON path extraction, regex,
// arithmetic, throttling, ...) are out of scope for this module; ppexec
// only defines the contract a step evaluator must satisfy and the engine
// that walks a step list through whatever evaluators are registered.
package ppexec

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hamzahrami/zabbix/pkg/pptask"
)

// ErrDiscard is returned by a StepEvaluator to end the pipeline early with a
// "discarded" disposition and no value — the idiomatic replacement for a
// third, out-of-band discard channel.
var ErrDiscard = errors.New("ppexec: step discarded the value")

// ErrStepNotSupported is returned by a StepEvaluator when the incoming
// value's kind is not one it can operate on (e.g. a regex step receiving a
// numeric value), and by the registry when no evaluator is registered for a
// step's kind. The executor maps it to Disposition NotSupported; the result
// still carries the error message and the failing step index, so Failed
// reports true for it.
var ErrStepNotSupported = errors.New("ppexec: step does not support this value kind")

// StepEvaluator is a single preprocessing step kind. It receives the
// current (value, timestamp) and step parameters, and returns the next
// (value, timestamp), or an error — ErrDiscard, ErrStepNotSupported, or any
// other error for a genuine step failure. Evaluators must have no side
// effects beyond their return values; ctx is for cancellation only.
type StepEvaluator interface {
	Evaluate(ctx context.Context, v pptask.Value, params map[string]string) (pptask.Value, error)
}

// EvaluatorFunc adapts a function to a StepEvaluator.
type EvaluatorFunc func(ctx context.Context, v pptask.Value, params map[string]string) (pptask.Value, error)

// Evaluate implements StepEvaluator.
func (f EvaluatorFunc) Evaluate(ctx context.Context, v pptask.Value, params map[string]string) (pptask.Value, error) {
	return f(ctx, v, params)
}

// Registry maps a step's Kind string to the evaluator that runs it.
// Registration is expected to happen once at startup (each corecheck-style
// step plug-in calling Register from an init or a wiring function); lookups
// happen on the hot execution path and are read-locked.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[string]StepEvaluator
}

// NewRegistry builds an empty step registry.
func NewRegistry() *Registry {
	return &Registry{evaluators: make(map[string]StepEvaluator)}
}

// Register installs evaluator under kind, overwriting any prior evaluator
// for that kind.
func (r *Registry) Register(kind string, evaluator StepEvaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[kind] = evaluator
}

// Lookup returns the evaluator registered for kind, if any.
func (r *Registry) Lookup(kind string) (StepEvaluator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.evaluators[kind]
	return e, ok
}

func (r *Registry) mustEvaluate(ctx context.Context, kind string, v pptask.Value, params map[string]string) (pptask.Value, error) {
	e, ok := r.Lookup(kind)
	if !ok {
		return pptask.Value{}, fmt.Errorf("%w: kind %q", ErrStepNotSupported, kind)
	}
	return e.Evaluate(ctx, v, params)
}
