// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package orchestrator fans one search request out across the selected
// sources, one concurrent cache-checked call per source and language
// variant, and merges the surviving results.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/autobrr/dredgr/internal/domain"
	"github.com/autobrr/dredgr/internal/metrics"
	"github.com/autobrr/dredgr/internal/models"
	"github.com/autobrr/dredgr/internal/pipeline"
	"github.com/autobrr/dredgr/internal/scraper"
	"github.com/autobrr/dredgr/internal/tracker"
)

const (
	defaultSourceTimeout = 30 * time.Second
	defaultResultTTL     = 30 * time.Minute

	// Grace on top of the per-source timeout before an in-flight entry is
	// force-released so a wedged call cannot block later identical requests.
	inflightCeilingGrace = 10 * time.Second

	// How long a served request stays eligible for background re-runs.
	refreshHorizon = 6 * time.Hour
)

type Orchestrator struct {
	tracker *tracker.Tracker
	store   *models.KVStore
	metrics *metrics.Collector

	inflight singleflight.Group

	// Guards everything derived from the config file, which can be swapped
	// wholesale by Reload while searches are running.
	mu            sync.RWMutex
	cfg           *domain.Config
	adapters      map[string]scraper.SourceAdapter
	pipe          *pipeline.Pipeline
	sourceTimeout time.Duration
	resultTTL     time.Duration
}

func New(cfg *domain.Config, adapters map[string]scraper.SourceAdapter, trk *tracker.Tracker, store *models.KVStore, pipe *pipeline.Pipeline, collector *metrics.Collector) *Orchestrator {
	sourceTimeout, resultTTL := deriveLimits(cfg)

	return &Orchestrator{
		cfg:           cfg,
		adapters:      adapters,
		tracker:       trk,
		store:         store,
		pipe:          pipe,
		metrics:       collector,
		sourceTimeout: sourceTimeout,
		resultTTL:     resultTTL,
	}
}

func deriveLimits(cfg *domain.Config) (sourceTimeout, resultTTL time.Duration) {
	sourceTimeout = defaultSourceTimeout
	if cfg.SourceTimeoutSeconds > 0 {
		sourceTimeout = time.Duration(cfg.SourceTimeoutSeconds) * time.Second
	}
	resultTTL = defaultResultTTL
	if cfg.SearchCacheTTLMinutes > 0 {
		resultTTL = time.Duration(cfg.SearchCacheTTLMinutes) * time.Minute
	}
	return sourceTimeout, resultTTL
}

// Reload swaps in a freshly unmarshalled configuration and the adapter set
// built from it. Searches already in flight finish on the snapshot they
// started with.
func (o *Orchestrator) Reload(cfg *domain.Config, adapters map[string]scraper.SourceAdapter) {
	sourceTimeout, resultTTL := deriveLimits(cfg)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg = cfg
	o.adapters = adapters
	o.pipe = pipeline.New(nil, cfg.TargetLanguages)
	o.sourceTimeout = sourceTimeout
	o.resultTTL = resultTTL

	log.Info().Int("sources", len(adapters)).Msg("orchestrator reloaded configuration")
}

func (o *Orchestrator) config() *domain.Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg
}

func (o *Orchestrator) adapterFor(name string) (scraper.SourceAdapter, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	adapter, ok := o.adapters[name]
	return adapter, ok
}

func (o *Orchestrator) pipelineSnapshot() *pipeline.Pipeline {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.pipe
}

func (o *Orchestrator) limits() (sourceTimeout, resultTTL time.Duration) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sourceTimeout, o.resultTTL
}

// Search resolves the effective source set, dispatches every branch
// concurrently and merges the successful partial results. It returns an
// error only when every dispatched branch failed, or when ctx was cancelled
// before any branch settled.
func (o *Orchestrator) Search(ctx context.Context, req domain.SearchRequest) ([]domain.SearchResult, error) {
	sources := o.resolveSources(ctx, req)
	if len(sources) == 0 {
		return nil, fmt.Errorf("no enabled sources match the request")
	}
	variants := o.languageVariants(req)

	log.Debug().
		Strs("sources", sources).
		Strs("languages", variants).
		Str("query", req.Query).
		Bool("background", req.BackgroundRefresh).
		Msg("dispatching search")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		merged    []domain.SearchResult
		settled   int
		succeeded int
		firstErr  error
	)

	for _, source := range sources {
		for _, lang := range variants {
			wg.Add(1)
			go func(source, lang string) {
				defer wg.Done()
				results, err := o.searchBranch(ctx, req, source, lang)

				mu.Lock()
				defer mu.Unlock()
				settled++
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					return
				}
				// An empty list is still a settled answer, the branch did
				// not fail.
				succeeded++
				merged = append(merged, results...)
			}(source, lang)
		}
	}
	wg.Wait()

	if succeeded == 0 && firstErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("all %d source calls failed: %w", settled, firstErr)
	}

	if !req.BackgroundRefresh {
		o.rememberRequest(ctx, req)
	}

	// Branches are pre-deduped per source; a final pass folds duplicates
	// that different sources reported for the same release.
	return pipeline.Dedupe(merged), nil
}

// rememberRequest records a served foreground request so the background
// refresher can replay it before the cached answer lapses.
func (o *Orchestrator) rememberRequest(ctx context.Context, req domain.SearchRequest) {
	o.store.SetJSON(ctx, models.NamespaceRecent, requestKey(req), req, refreshHorizon)
}

// resolveSources intersects the user's selection with the enabled set, or
// asks the adaptive selector when the user made no selection. Background
// refresh bypasses selection and uses every enabled source.
func (o *Orchestrator) resolveSources(ctx context.Context, req domain.SearchRequest) []string {
	cfg := o.config()

	enabled := make([]string, 0, len(cfg.Sources))
	for _, name := range cfg.EnabledSourceNames() {
		if _, ok := o.adapterFor(name); ok {
			enabled = append(enabled, name)
		}
	}

	if len(req.Sources) > 0 {
		wanted := make(map[string]struct{}, len(req.Sources))
		for _, name := range req.Sources {
			wanted[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
		}
		selected := make([]string, 0, len(req.Sources))
		for _, name := range enabled {
			if _, ok := wanted[strings.ToLower(name)]; ok {
				selected = append(selected, name)
			}
		}
		return selected
	}

	if req.BackgroundRefresh {
		return enabled
	}

	return o.tracker.SelectSources(ctx, enabled, cfg.SelectionTopN, cfg.SelectionMin)
}

func (o *Orchestrator) languageVariants(req domain.SearchRequest) []string {
	langs := req.Languages
	if len(langs) == 0 {
		langs = o.config().TargetLanguages
	}
	if len(langs) == 0 {
		return []string{""}
	}

	seen := make(map[string]struct{}, len(langs))
	variants := make([]string, 0, len(langs))
	for _, lang := range langs {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" {
			continue
		}
		if _, ok := seen[lang]; ok {
			continue
		}
		seen[lang] = struct{}{}
		variants = append(variants, lang)
	}
	if len(variants) == 0 {
		return []string{""}
	}
	return variants
}

// searchBranch runs one (source, language) call: cache first, then the
// in-flight registry, then the adapter itself.
func (o *Orchestrator) searchBranch(ctx context.Context, req domain.SearchRequest, source, lang string) ([]domain.SearchResult, error) {
	key := cacheKey(source, req, lang)

	// Background refresh exists to repopulate the cache, so it never reads
	// it. A hit settles the branch without touching the adapter or tracker.
	if !req.BackgroundRefresh {
		var cached []domain.SearchResult
		if o.store.GetJSON(ctx, models.NamespaceResults, key, &cached) {
			o.metrics.CacheHit()
			return cached, nil
		}
		o.metrics.CacheMiss()
	}

	ch := o.inflight.DoChan(key, func() (any, error) {
		return o.invokeAdapter(ctx, req, source, lang, key)
	})

	ceiling := time.NewTimer(o.inflightCeilingFor(source))
	defer ceiling.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			o.metrics.InflightShared()
		}
		return res.Val.([]domain.SearchResult), nil
	case <-ceiling.C:
		// The underlying call never settled. Drop the registry entry so the
		// next identical request starts fresh instead of waiting forever.
		o.inflight.Forget(key)
		log.Warn().Str("source", source).Str("key", key).Msg("in-flight call exceeded hard ceiling, releasing")
		return nil, fmt.Errorf("source %s: %w", source, context.DeadlineExceeded)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// invokeAdapter is the single execution shared by all callers of one key.
func (o *Orchestrator) invokeAdapter(ctx context.Context, req domain.SearchRequest, source, lang, key string) (any, error) {
	adapter, ok := o.adapterFor(source)
	if !ok {
		return nil, fmt.Errorf("source %s: adapter no longer configured", source)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.sourceTimeoutFor(source))
	defer cancel()

	start := time.Now()
	raw, err := adapter.Search(callCtx, req, lang)
	elapsed := time.Since(start)

	if err != nil {
		kind := scraper.Classify(err)
		// RecordFailure ignores cancellations itself.
		o.tracker.RecordFailure(ctx, source, kind, elapsed)
		if kind != domain.ErrorKindCancelled {
			o.metrics.ObserveSearch(source, string(kind), elapsed.Seconds())
			o.metrics.SetSourceScore(source, o.tracker.Score(ctx, source))
		}
		log.Debug().Err(err).Str("source", source).Str("kind", string(kind)).Msg("source call failed")
		return nil, fmt.Errorf("source %s: %w", source, err)
	}

	normalized := make([]domain.SearchResult, 0, len(raw))
	for _, r := range raw {
		normalized = append(normalized, r.Normalize(source))
	}
	filtered := o.pipelineSnapshot().Run(normalized)

	o.tracker.RecordSuccess(ctx, source, len(filtered), elapsed)
	o.metrics.ObserveSearch(source, "success", elapsed.Seconds())
	o.metrics.SetSourceScore(source, o.tracker.Score(ctx, source))

	_, resultTTL := o.limits()
	o.store.SetJSON(ctx, models.NamespaceResults, key, filtered, resultTTL)

	log.Debug().
		Str("source", source).
		Int("raw", len(raw)).
		Int("kept", len(filtered)).
		Dur("elapsed", elapsed).
		Msg("source call settled")
	return filtered, nil
}

func (o *Orchestrator) sourceTimeoutFor(source string) time.Duration {
	cfg := o.config()
	for _, sc := range cfg.Sources {
		if sc.Name == source && sc.TimeoutSeconds > 0 {
			return time.Duration(sc.TimeoutSeconds) * time.Second
		}
	}
	sourceTimeout, _ := o.limits()
	return sourceTimeout
}

// inflightCeilingFor is the hard release deadline for one source's in-flight
// entry: the timeout the underlying call actually runs under, plus grace.
func (o *Orchestrator) inflightCeilingFor(source string) time.Duration {
	return o.sourceTimeoutFor(source) + inflightCeilingGrace
}

// cacheKey fingerprints everything that changes an adapter's answer. The
// source name stays as a plain prefix so per-source entries can be listed.
func cacheKey(source string, req domain.SearchRequest, lang string) string {
	parts := append(requestParts(req), lang)
	digest := xxhash.Sum64String(strings.Join(parts, "|"))
	return fmt.Sprintf("%s:%016x", source, digest)
}

// requestKey fingerprints a whole request for the refresher's replay list.
// Unlike cacheKey it folds in the user's source selection, since a replay
// must honor it.
func requestKey(req domain.SearchRequest) string {
	parts := requestParts(req)
	sortedSources := append([]string(nil), req.Sources...)
	sort.Strings(sortedSources)
	parts = append(parts, sortedSources...)
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.Join(parts, "|")))
}

func requestParts(req domain.SearchRequest) []string {
	parts := []string{
		req.ContentType,
		req.ContentID,
		pipeline.NormalizeTitleKey(req.Query),
	}
	if req.Season != nil {
		parts = append(parts, "s"+strconv.Itoa(*req.Season))
	}
	if req.Episode != nil {
		parts = append(parts, "e"+strconv.Itoa(*req.Episode))
	}
	sortedLangs := append([]string(nil), req.Languages...)
	sort.Strings(sortedLangs)
	return append(parts, sortedLangs...)
}
