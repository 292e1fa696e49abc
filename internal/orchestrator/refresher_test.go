// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/dredgr/internal/domain"
	"github.com/autobrr/dredgr/internal/scraper"
)

func TestRefresherReplaysRememberedSearches(t *testing.T) {
	adapter := &fakeAdapter{name: "alpha", results: []scraper.RawResult{{Title: "Movie.2020", Size: 5}}}
	o := newTestOrchestrator(t, map[string]scraper.SourceAdapter{"alpha": adapter})

	req := domain.SearchRequest{Query: "movie"}

	_, err := o.Search(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, adapter.callCount())

	// Repeat foreground searches ride the cache.
	_, err = o.Search(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, adapter.callCount())

	r := NewRefresher(o, o.store, time.Minute)
	r.runOnce(context.Background())
	assert.Equal(t, 2, adapter.callCount(), "replay must bypass the warm cache")

	// The replay wrote through, so the next foreground search still needs
	// no adapter call.
	_, err = o.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, adapter.callCount())
}

func TestRefresherSkipsReplayOnCancelledContext(t *testing.T) {
	adapter := &fakeAdapter{name: "alpha", results: []scraper.RawResult{{Title: "Movie.2020", Size: 5}}}
	o := newTestOrchestrator(t, map[string]scraper.SourceAdapter{"alpha": adapter})

	_, err := o.Search(context.Background(), domain.SearchRequest{Query: "movie"})
	require.NoError(t, err)
	require.Equal(t, 1, adapter.callCount())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRefresher(o, o.store, time.Minute)
	r.runOnce(ctx)
	assert.Equal(t, 1, adapter.callCount())
}
