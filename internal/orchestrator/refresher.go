// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/dredgr/internal/domain"
	"github.com/autobrr/dredgr/internal/models"
)

// Refresher replays recently served searches in the background so cached
// answers are rebuilt as they lapse instead of on the next user hit. Replays
// run with the refresh flag set, so they skip the cache read, write through,
// and fan out to every enabled source rather than the adaptive selection.
type Refresher struct {
	orc      *Orchestrator
	store    *models.KVStore
	interval time.Duration
}

// NewRefresher builds a refresher over the orchestrator's request log. A
// non-positive interval falls back to the result cache TTL so every entry is
// rebuilt roughly once per cache lifetime.
func NewRefresher(orc *Orchestrator, store *models.KVStore, interval time.Duration) *Refresher {
	if interval <= 0 {
		_, interval = orc.limits()
	}
	return &Refresher{
		orc:      orc,
		store:    store,
		interval: interval,
	}
}

// Start launches the refresh loop. It stops when ctx is cancelled.
func (r *Refresher) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		log.Debug().Dur("interval", r.interval).Msg("background refresher started")
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.runOnce(ctx)
			}
		}
	}()
}

// runOnce replays every remembered request sequentially. Failures are logged
// and skipped, the foreground path will simply see a stale or missing entry.
func (r *Refresher) runOnce(ctx context.Context) {
	keys := r.store.ListKeys(ctx, models.NamespaceRecent, "")

	var replayed int
	for _, key := range keys {
		if ctx.Err() != nil {
			return
		}

		var req domain.SearchRequest
		if !r.store.GetJSON(ctx, models.NamespaceRecent, key, &req) {
			continue
		}

		req.BackgroundRefresh = true
		if _, err := r.orc.Search(ctx, req); err != nil {
			log.Debug().Err(err).Str("query", req.Query).Msg("background refresh failed")
			continue
		}
		replayed++
	}

	if len(keys) > 0 {
		log.Debug().Int("remembered", len(keys)).Int("replayed", replayed).Msg("background refresh cycle finished")
	}
}
