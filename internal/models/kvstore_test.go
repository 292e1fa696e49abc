// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/dredgr/internal/database"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, opts ...KVStoreOption) (*KVStore, *database.DB) {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "dredgr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewKVStore(db.Conn(), opts...), db
}

func TestKVStoreSetGetRoundtrip(t *testing.T) {
	clock := newFakeClock()
	store, _ := newTestStore(t, WithClock(clock.Now))
	ctx := context.Background()

	store.Set(ctx, NamespaceResults, "k1", []byte("v1"), time.Second)

	got, ok := store.Get(ctx, NamespaceResults, "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)

	clock.Advance(2 * time.Second)

	_, ok = store.Get(ctx, NamespaceResults, "k1")
	assert.False(t, ok, "entry should be expired after ttl")

	// The expired row is lazily removed, so a cleanup finds nothing left.
	deleted, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestKVStoreNamespaceIsolation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	store.Set(ctx, NamespaceResults, "shared-key", []byte("results"), time.Minute)
	store.Set(ctx, NamespaceAvailability, "shared-key", []byte("availability"), time.Minute)

	got, ok := store.Get(ctx, NamespaceResults, "shared-key")
	require.True(t, ok)
	assert.Equal(t, []byte("results"), got)

	got, ok = store.Get(ctx, NamespaceAvailability, "shared-key")
	require.True(t, ok)
	assert.Equal(t, []byte("availability"), got)

	store.Delete(ctx, NamespaceResults, "shared-key")

	_, ok = store.Get(ctx, NamespaceResults, "shared-key")
	assert.False(t, ok)
	_, ok = store.Get(ctx, NamespaceAvailability, "shared-key")
	assert.True(t, ok, "delete must not cross namespaces")
}

func TestKVStoreListKeys(t *testing.T) {
	clock := newFakeClock()
	store, _ := newTestStore(t, WithClock(clock.Now))
	ctx := context.Background()

	store.Set(ctx, NamespacePenalty, "src:alpha", []byte("a"), time.Minute)
	store.Set(ctx, NamespacePenalty, "src:beta", []byte("b"), time.Minute)
	store.Set(ctx, NamespacePenalty, "other:gamma", []byte("c"), time.Minute)
	store.Set(ctx, NamespacePenalty, "src:expired", []byte("d"), time.Second)

	clock.Advance(30 * time.Second)

	keys := store.ListKeys(ctx, NamespacePenalty, "src:")
	assert.ElementsMatch(t, []string{"src:alpha", "src:beta"}, keys)

	all := store.ListKeys(ctx, NamespacePenalty, "")
	assert.Len(t, all, 3)
}

func TestKVStoreJSONHelpers(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	store.SetJSON(ctx, NamespacePerformance, "src", payload{Name: "alpha", Count: 7}, time.Minute)

	var got payload
	require.True(t, store.GetJSON(ctx, NamespacePerformance, "src", &got))
	assert.Equal(t, payload{Name: "alpha", Count: 7}, got)

	// Corrupt rows are evicted instead of erroring.
	store.Set(ctx, NamespacePerformance, "broken", []byte("{not json"), time.Minute)
	assert.False(t, store.GetJSON(ctx, NamespacePerformance, "broken", &got))
	_, ok := store.Get(ctx, NamespacePerformance, "broken")
	assert.False(t, ok)
}

func TestKVStoreCleanupExpired(t *testing.T) {
	clock := newFakeClock()
	store, _ := newTestStore(t, WithClock(clock.Now))
	ctx := context.Background()

	store.Set(ctx, NamespaceResults, "short", []byte("a"), time.Second)
	store.Set(ctx, NamespaceResults, "long", []byte("b"), time.Hour)

	clock.Advance(time.Minute)

	deleted, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, ok := store.Get(ctx, NamespaceResults, "long")
	assert.True(t, ok)
}

func TestKVStoreDegradesToNoopOnBackendFailure(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	store.Set(ctx, NamespaceResults, "k", []byte("v"), time.Minute)
	require.NoError(t, db.Close())

	// Every operation turns into a silent miss once the backend is gone.
	_, ok := store.Get(ctx, NamespaceResults, "k")
	assert.False(t, ok)

	store.Set(ctx, NamespaceResults, "k2", []byte("v2"), time.Minute)
	store.Delete(ctx, NamespaceResults, "k")
	assert.Empty(t, store.ListKeys(ctx, NamespaceResults, ""))
}

func TestKVStoreStats(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	store.Set(ctx, NamespaceResults, "a", []byte("12345"), time.Minute)
	store.Set(ctx, NamespaceResults, "b", []byte("12345"), time.Minute)
	store.Set(ctx, NamespaceAvailability, "c", []byte("1"), time.Minute)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.TotalRows)
	assert.EqualValues(t, 2, stats.Namespaces[NamespaceResults].Entries)
	assert.EqualValues(t, 10, stats.Namespaces[NamespaceResults].ApproxSizeBytes)
	assert.EqualValues(t, 1, stats.Namespaces[NamespaceAvailability].Entries)
}
