// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scraper

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/autobrr/dredgr/internal/domain"
)

const defaultPageSize = 50

// JSONAPIAdapter speaks a generic paginated search endpoint:
// GET {base}?q={query}&page={n} returns a JSON array of results. Pages are
// fetched sequentially and fetching stops on an empty or short page, even
// though different sources proceed in parallel above this adapter.
type JSONAPIAdapter struct {
	name     string
	baseURL  string
	maxPages int
	client   *http.Client
}

type jsonAPIResult struct {
	Title    string `json:"title"`
	InfoHash string `json:"info_hash"`
	Magnet   string `json:"magnet"`
	Size     int64  `json:"size"`
	Seeders  *int   `json:"seeders"`
}

// NewJSONAPIAdapter builds an adapter for one generic JSON search source.
// The source's own maxPages wins; otherwise the global defaultMaxPages
// applies, and with neither set a single page is fetched.
func NewJSONAPIAdapter(cfg domain.SourceConfig, client *http.Client, defaultMaxPages int) *JSONAPIAdapter {
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	if maxPages <= 0 {
		maxPages = 1
	}
	return &JSONAPIAdapter{
		name:     cfg.Name,
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		maxPages: maxPages,
		client:   client,
	}
}

func (a *JSONAPIAdapter) Name() string {
	return a.name
}

func (a *JSONAPIAdapter) Search(ctx context.Context, req domain.SearchRequest, languageHint string) ([]RawResult, error) {
	var all []RawResult

	for page := 1; page <= a.maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var rows []jsonAPIResult
		if err := fetchJSON(ctx, a.client, a.pageURL(req, languageHint, page), &rows); err != nil {
			// Results already gathered are not thrown away over a
			// failed later page.
			if page > 1 {
				return all, nil
			}
			return nil, err
		}

		for _, row := range rows {
			seeders := domain.SeedersUnknown
			if row.Seeders != nil {
				seeders = *row.Seeders
			}
			all = append(all, RawResult{
				Title:     row.Title,
				InfoHash:  row.InfoHash,
				MagnetURI: row.Magnet,
				Size:      row.Size,
				Seeders:   seeders,
			})
		}

		if len(rows) == 0 || len(rows) < defaultPageSize {
			break
		}
	}

	return all, nil
}

func (a *JSONAPIAdapter) pageURL(req domain.SearchRequest, languageHint string, page int) string {
	params := url.Values{}
	params.Set("q", req.Query)
	params.Set("page", strconv.Itoa(page))
	if req.Season != nil {
		params.Set("season", strconv.Itoa(*req.Season))
	}
	if req.Episode != nil {
		params.Set("episode", strconv.Itoa(*req.Episode))
	}
	if languageHint != "" {
		params.Set("lang", languageHint)
	}
	return a.baseURL + "?" + params.Encode()
}
