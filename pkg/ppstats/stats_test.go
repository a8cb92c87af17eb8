// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package ppstats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamzahrami/zabbix/pkg/pptask"
)

func TestRecordAccumulatesAcrossCalls(t *testing.T) {
	tr := NewTracker()
	tr.Record(1, pptask.Result{Disposition: pptask.Normal})
	tr.Record(1, pptask.Result{Err: "boom", FailedStep: 2})
	tr.Record(1, pptask.Result{Disposition: pptask.Discarded})

	s, ok := tr.Get(1)
	require.True(t, ok)
	assert.Equal(t, uint64(3), s.TotalRuns)
	assert.Equal(t, uint64(1), s.TotalErrors)
	assert.Equal(t, uint64(1), s.TotalDiscarded)
	assert.Equal(t, "boom", s.LastError)
}

func TestGetMissingItemIsAbsent(t *testing.T) {
	tr := NewTracker()
	_, ok := tr.Get(99)
	assert.False(t, ok)
}

func TestRemoveDropsItem(t *testing.T) {
	tr := NewTracker()
	tr.Record(1, pptask.Result{})
	tr.Remove(1)
	_, ok := tr.Get(1)
	assert.False(t, ok)
}

func TestAllReturnsIndependentSnapshot(t *testing.T) {
	tr := NewTracker()
	tr.Record(1, pptask.Result{})
	tr.Record(2, pptask.Result{})

	snap := tr.All()
	require.Len(t, snap, 2)

	tr.Record(1, pptask.Result{})
	assert.Equal(t, uint64(1), snap[1].TotalRuns, "snapshot must not reflect later writes")
}
