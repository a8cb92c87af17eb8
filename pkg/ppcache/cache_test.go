// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package ppcache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamzahrami/zabbix/pkg/pptask"
)

func TestNewRejectsNonPositiveCapacity(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)

	_, err = New(-1)
	require.Error(t, err)
}

func TestSetGetRoundTrip(t *testing.T) {
	c, err := New(4)
	require.NoError(t, err)

	ts := time.Now()
	c.Set(7, pptask.FloatValue(3.14, ts), ts)

	v, gotTS, ok := c.Get(7)
	require.True(t, ok)
	assert.Equal(t, 3.14, v.Float)
	assert.True(t, ts.Equal(gotTS))
}

func TestGetMissingIsAbsent(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)

	_, _, ok := c.Get(42)
	assert.False(t, ok)
}

func TestSetOverwritesPriorEntry(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)

	t1 := time.Now()
	t2 := t1.Add(time.Second)
	c.Set(1, pptask.FloatValue(1, t1), t1)
	c.Set(1, pptask.FloatValue(2, t2), t2)

	v, ts, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, 2.0, v.Float)
	assert.True(t, ts.Equal(t2))
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)

	now := time.Now()
	c.Set(1, pptask.FloatValue(1, now), now)
	c.Set(2, pptask.FloatValue(2, now), now)
	// Touch 1 so it is no longer the least recently used.
	_, _, _ = c.Get(1)
	c.Set(3, pptask.FloatValue(3, now), now)

	_, _, ok := c.Get(2)
	assert.False(t, ok, "item 2 should have been evicted")

	_, _, ok = c.Get(1)
	assert.True(t, ok)

	_, _, ok = c.Get(3)
	assert.True(t, ok)
}

func TestConcurrentAccessDoesNotRace(t *testing.T) {
	c, err := New(64)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ts := time.Now()
				c.Set(pptask.ItemID(id), pptask.FloatValue(float64(j), ts), ts)
				c.Get(pptask.ItemID(id))
			}
		}(i)
	}
	wg.Wait()
}
