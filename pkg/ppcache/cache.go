// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package ppcache holds the most recently processed sample for each
// monitored item, bounded by an LRU capacity, so that dependent-item
// fanout does not require recomputing a primary item's pipeline.
package ppcache

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hamzahrami/zabbix/pkg/pptask"
)

type entry struct {
	value pptask.Value
	ts    time.Time
}

// Cache is a bounded item_id -> (value, timestamp) mapping. It is safe for
// concurrent use: readers always observe either a complete entry or its
// absence, never a partial write. Write ordering per item_id is the
// caller's responsibility (pkg/ppqueue enforces it via the SEQUENCE token
// for VALUE_SEQ streams); the cache itself only guarantees atomicity of a
// single Set/Get.
type Cache struct {
	mu  sync.RWMutex
	lru *lru.Cache[pptask.ItemID, entry]
}

// New builds a value cache that evicts its least-recently-used entry once
// more than capacity distinct items have been written.
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("ppcache: capacity must be positive, got %d", capacity)
	}
	l, err := lru.New[pptask.ItemID, entry](capacity)
	if err != nil {
		return nil, fmt.Errorf("ppcache: %w", err)
	}
	return &Cache{lru: l}, nil
}

// Set overwrites the cached sample for id. Callers pass the task's final
// post-pipeline value; pkg/ppexec only calls this after a pipeline
// completes successfully (spec.md §3 invariant 4).
func (c *Cache) Set(id pptask.ItemID, v pptask.Value, ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(id, entry{value: v, ts: ts})
}

// Get returns the cached sample for id, if present.
func (c *Cache) Get(id pptask.ItemID) (pptask.Value, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.lru.Get(id)
	if !ok {
		return pptask.Value{}, time.Time{}, false
	}
	return e.value, e.ts, true
}

// Len returns the number of items currently cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}

// Remove drops the cached entry for id, if any.
func (c *Cache) Remove(id pptask.ItemID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(id)
}

var _ pptask.ValueCache = (*Cache)(nil)
