// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package availability caches per-provider availability checks for
// infohashes. Entries live far longer than search results, an availability
// answer rarely changes once known.
package availability

import (
	"context"
	"time"

	"github.com/autobrr/dredgr/internal/models"
	"github.com/autobrr/dredgr/internal/pipeline"
)

const defaultTTL = 7 * 24 * time.Hour

type record struct {
	Available bool      `json:"available"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Cache answers "is this hash available on this provider" from the shared
// store. Misses are indistinguishable from never-checked, callers re-probe.
type Cache struct {
	store *models.KVStore
	ttl   time.Duration
	now   func() time.Time
}

func New(store *models.KVStore, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{store: store, ttl: ttl, now: time.Now}
}

// Get reports the cached answer for provider and hash. The second return is
// false when nothing usable is cached.
func (c *Cache) Get(ctx context.Context, provider, hash string) (bool, bool) {
	key, ok := cacheKey(provider, hash)
	if !ok {
		return false, false
	}
	var rec record
	if !c.store.GetJSON(ctx, models.NamespaceAvailability, key, &rec) {
		return false, false
	}
	return rec.Available, true
}

// Set stores the answer for provider and hash.
func (c *Cache) Set(ctx context.Context, provider, hash string, available bool) {
	key, ok := cacheKey(provider, hash)
	if !ok {
		return
	}
	c.store.SetJSON(ctx, models.NamespaceAvailability, key, record{
		Available: available,
		CheckedAt: c.now().UTC(),
	}, c.ttl)
}

// Forget drops the cached answer, forcing the next caller to re-probe.
func (c *Cache) Forget(ctx context.Context, provider, hash string) {
	if key, ok := cacheKey(provider, hash); ok {
		c.store.Delete(ctx, models.NamespaceAvailability, key)
	}
}

// KnownHashes lists every hash with a cached answer for provider.
func (c *Cache) KnownHashes(ctx context.Context, provider string) []string {
	prefix := provider + ":"
	keys := c.store.ListKeys(ctx, models.NamespaceAvailability, prefix)
	hashes := make([]string, 0, len(keys))
	for _, key := range keys {
		hashes = append(hashes, key[len(prefix):])
	}
	return hashes
}

func cacheKey(provider, hash string) (string, bool) {
	canonical := pipeline.NormalizeInfoHash(hash)
	if provider == "" || len(canonical) != 40 {
		return "", false
	}
	return provider + ":" + canonical, true
}
