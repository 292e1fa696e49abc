// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package availability

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/dredgr/internal/database"
	"github.com/autobrr/dredgr/internal/models"
)

const testHash = "abcdef0123456789abcdef0123456789abcdef01"

func newTestCache(t *testing.T) *Cache {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "dredgr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return New(models.NewKVStore(db.Conn()), time.Hour)
}

func TestCacheRoundtrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "provider-a", testHash)
	assert.False(t, ok)

	cache.Set(ctx, "provider-a", testHash, true)

	available, ok := cache.Get(ctx, "provider-a", testHash)
	assert.True(t, ok)
	assert.True(t, available)

	// A negative answer is cached too, distinct from a miss.
	cache.Set(ctx, "provider-a", testHash, false)
	available, ok = cache.Get(ctx, "provider-a", testHash)
	assert.True(t, ok)
	assert.False(t, available)
}

func TestCacheHashCanonicalization(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "provider-a", strings.ToUpper(testHash), true)

	available, ok := cache.Get(ctx, "provider-a", testHash)
	assert.True(t, ok)
	assert.True(t, available)
}

func TestCacheRejectsBadKeys(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "", testHash, true)
	cache.Set(ctx, "provider-a", "not-a-hash", true)

	_, ok := cache.Get(ctx, "", testHash)
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "provider-a", "not-a-hash")
	assert.False(t, ok)
}

func TestCacheProviderIsolationAndListing(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	other := "1111111111111111111111111111111111111111"
	cache.Set(ctx, "provider-a", testHash, true)
	cache.Set(ctx, "provider-a", other, false)
	cache.Set(ctx, "provider-b", testHash, false)

	_, ok := cache.Get(ctx, "provider-b", other)
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{testHash, other}, cache.KnownHashes(ctx, "provider-a"))
	assert.ElementsMatch(t, []string{testHash}, cache.KnownHashes(ctx, "provider-b"))
}

func TestCacheForget(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "provider-a", testHash, true)
	cache.Forget(ctx, "provider-a", testHash)

	_, ok := cache.Get(ctx, "provider-a", testHash)
	assert.False(t, ok)
}
