// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tracker

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/dredgr/internal/models"
)

// SelectSources picks the sources worth querying next.
//
// Penalized sources are excluded first; if that empties the pool the full
// input list comes back so a bad streak never locks every source out.
// Eligible sources are ranked by score descending and those at or above
// minScore are returned, capped at topN. When nothing clears minScore the
// top N are returned regardless. The result is never empty for a non-empty
// input.
func (t *Tracker) SelectSources(ctx context.Context, allSources []string, topN int, minScore float64) []string {
	if len(allSources) == 0 {
		return nil
	}
	if topN <= 0 {
		topN = len(allSources)
	}

	eligible := make([]string, 0, len(allSources))
	for _, source := range allSources {
		if !t.IsPenalized(ctx, source) {
			eligible = append(eligible, source)
		}
	}
	if len(eligible) == 0 {
		log.Debug().Int("sources", len(allSources)).Msg("every source penalized, falling back to full list")
		return append([]string(nil), allSources...)
	}

	type scored struct {
		name  string
		score float64
	}
	ranked := make([]scored, 0, len(eligible))
	for _, source := range eligible {
		ranked = append(ranked, scored{name: source, score: t.Score(ctx, source)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	selected := make([]string, 0, topN)
	for _, entry := range ranked {
		if entry.score < minScore {
			continue
		}
		selected = append(selected, entry.name)
		if len(selected) == topN {
			break
		}
	}

	if len(selected) == 0 {
		for _, entry := range ranked {
			selected = append(selected, entry.name)
			if len(selected) == topN {
				break
			}
		}
	}

	return selected
}

// SourceHealth is a point-in-time view of one source for the ops API.
type SourceHealth struct {
	Source              string     `json:"source"`
	Score               float64    `json:"score"`
	TotalRequests       int        `json:"totalRequests"`
	SuccessCount        int        `json:"successCount"`
	FailureCount        int        `json:"failureCount"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastSuccess         *time.Time `json:"lastSuccess,omitempty"`
	LastFailure         *time.Time `json:"lastFailure,omitempty"`
	Penalized           bool       `json:"penalized"`
	PenaltyKind         string     `json:"penaltyKind,omitempty"`
	PenaltyExpiresAt    *time.Time `json:"penaltyExpiresAt,omitempty"`
}

// Snapshot reports health for each named source.
func (t *Tracker) Snapshot(ctx context.Context, sources []string) []SourceHealth {
	out := make([]SourceHealth, 0, len(sources))
	for _, source := range sources {
		health := SourceHealth{Source: source, Score: 50}

		record := &PerformanceRecord{}
		if t.store.GetJSON(ctx, models.NamespacePerformance, source, record) {
			health.Score = record.Score
			health.TotalRequests = record.TotalRequests
			health.SuccessCount = record.SuccessCount
			health.FailureCount = record.FailureCount
			health.ConsecutiveFailures = record.ConsecutiveFailures
			if !record.LastSuccess.IsZero() {
				ts := record.LastSuccess
				health.LastSuccess = &ts
			}
			if !record.LastFailure.IsZero() {
				ts := record.LastFailure
				health.LastFailure = &ts
			}
		}

		var penalty Penalty
		if t.store.GetJSON(ctx, models.NamespacePenalty, source, &penalty) && t.now().UTC().Before(penalty.ExpiresAt) {
			health.Penalized = true
			health.PenaltyKind = penalty.Kind
			expires := penalty.ExpiresAt
			health.PenaltyExpiresAt = &expires
		}

		out = append(out, health)
	}
	return out
}
