// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package scraper defines the contract every upstream source adapter
// implements, the failure taxonomy the orchestrator scores by, and the
// bundled generic adapters.
package scraper

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/dredgr/internal/buildinfo"
	"github.com/autobrr/dredgr/internal/domain"
	"github.com/autobrr/dredgr/internal/pipeline"
)

// RawResult is the minimally-typed record an adapter hands back before
// normalization. Either InfoHash or MagnetURI identifies the payload.
type RawResult struct {
	Title     string
	InfoHash  string
	MagnetURI string
	Size      int64
	Seeders   int
}

// SourceAdapter is the closed interface every source implements. Adapters
// must not let failures escape the orchestrator boundary in any form other
// than the returned error; a failed call yields a nil slice.
type SourceAdapter interface {
	Name() string
	Search(ctx context.Context, req domain.SearchRequest, languageHint string) ([]RawResult, error)
}

// Normalize converts a raw record into a SearchResult attributed to source.
// The infohash is canonicalized to 40 lowercase hex characters; a magnet URI
// is consulted when the source exposed no plain hash. Records with neither
// are kept, title-keyed dedup does not depend on the hash.
func (r RawResult) Normalize(source string) domain.SearchResult {
	hash := pipeline.NormalizeInfoHash(r.InfoHash)
	if len(hash) != 40 && r.MagnetURI != "" {
		if parsed, err := metainfo.ParseMagnetUri(r.MagnetURI); err == nil {
			hash = parsed.InfoHash.HexString()
		} else {
			log.Trace().Err(err).Str("source", source).Msg("unparseable magnet uri")
		}
	}
	if len(hash) != 40 {
		hash = ""
	}

	seeders := r.Seeders
	if seeders < 0 {
		seeders = domain.SeedersUnknown
	}

	return domain.SearchResult{
		Title:     strings.TrimSpace(r.Title),
		InfoHash:  hash,
		SizeBytes: max(r.Size, 0),
		Seeders:   seeders,
		Source:    source,
	}
}

// NewHTTPClient builds the shared outbound client used by the bundled
// adapters. Per-call deadlines come from the request context; the client
// timeout is only a backstop.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// BuildAdapters constructs one adapter per enabled source config. Sources
// without their own page limit inherit defaultMaxPages. Unknown kinds are
// skipped with a warning so one bad config line cannot take the whole
// service down.
func BuildAdapters(sources []domain.SourceConfig, client *http.Client, defaultMaxPages int) map[string]SourceAdapter {
	if client == nil {
		client = NewHTTPClient(0)
	}

	adapters := make(map[string]SourceAdapter, len(sources))
	for _, cfg := range sources {
		if !cfg.Enabled {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
		case "torrentio":
			adapters[cfg.Name] = NewTorrentioAdapter(cfg, client)
		case "jsonapi":
			adapters[cfg.Name] = NewJSONAPIAdapter(cfg, client, defaultMaxPages)
		default:
			log.Warn().Str("source", cfg.Name).Str("kind", cfg.Kind).Msg("unknown source kind, skipping")
		}
	}
	return adapters
}

func setRequestHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent)
}
