// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/autobrr/dredgr/internal/domain"
)

// TorrentioAdapter speaks the torrentio-style stream JSON endpoint:
// GET {base}/stream/{type}/{id}.json returns {"streams": [...]} where each
// stream carries an infoHash and a free-text title with seeders and size.
type TorrentioAdapter struct {
	name    string
	baseURL string
	client  *http.Client
}

type torrentioStream struct {
	Name          string `json:"name"`
	Title         string `json:"title"`
	InfoHash      string `json:"infoHash"`
	FileIdx       int    `json:"fileIdx,omitempty"`
	BehaviorHints struct {
		Filename string `json:"filename,omitempty"`
	} `json:"behaviorHints"`
}

type torrentioResponse struct {
	Streams []torrentioStream `json:"streams"`
}

var (
	seedersPattern = regexp.MustCompile(`👤\s*(\d+)`)
	sizePattern    = regexp.MustCompile(`💾\s*([\d.]+)\s*(TB|GB|MB|KB)`)
)

// NewTorrentioAdapter builds an adapter for one torrentio-compatible source.
func NewTorrentioAdapter(cfg domain.SourceConfig, client *http.Client) *TorrentioAdapter {
	return &TorrentioAdapter{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		client:  client,
	}
}

func (a *TorrentioAdapter) Name() string {
	return a.name
}

func (a *TorrentioAdapter) Search(ctx context.Context, req domain.SearchRequest, languageHint string) ([]RawResult, error) {
	contentID := req.ContentID
	if req.Season != nil && req.Episode != nil {
		contentID = fmt.Sprintf("%s:%d:%d", contentID, *req.Season, *req.Episode)
	}

	endpoint := fmt.Sprintf("%s/stream/%s/%s.json",
		a.baseURL, url.PathEscape(req.ContentType), url.PathEscape(contentID))

	var payload torrentioResponse
	if err := fetchJSON(ctx, a.client, endpoint, &payload); err != nil {
		return nil, err
	}

	results := make([]RawResult, 0, len(payload.Streams))
	for _, stream := range payload.Streams {
		if stream.InfoHash == "" {
			continue
		}
		results = append(results, RawResult{
			Title:    streamTitle(stream),
			InfoHash: stream.InfoHash,
			Size:     parseStreamSize(stream.Title),
			Seeders:  parseStreamSeeders(stream.Title),
		})
	}
	return results, nil
}

// streamTitle prefers the release filename over the decorated display title.
func streamTitle(stream torrentioStream) string {
	if stream.BehaviorHints.Filename != "" {
		return stream.BehaviorHints.Filename
	}
	// The display title's first line is the release name; the rest is
	// seeder/size decoration.
	if idx := strings.IndexByte(stream.Title, '\n'); idx > 0 {
		return strings.TrimSpace(stream.Title[:idx])
	}
	return strings.TrimSpace(stream.Title)
}

func parseStreamSeeders(title string) int {
	match := seedersPattern.FindStringSubmatch(title)
	if match == nil {
		return domain.SeedersUnknown
	}
	seeders, err := strconv.Atoi(match[1])
	if err != nil {
		return domain.SeedersUnknown
	}
	return seeders
}

func parseStreamSize(title string) int64 {
	match := sizePattern.FindStringSubmatch(title)
	if match == nil {
		return 0
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0
	}

	var unit int64
	switch match[2] {
	case "TB":
		unit = 1 << 40
	case "GB":
		unit = 1 << 30
	case "MB":
		unit = 1 << 20
	case "KB":
		unit = 1 << 10
	}
	return int64(value * float64(unit))
}
