// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package pipeline turns noisy per-source result lists into a clean,
// deduplicated set. Every stage is a pure function of its input and the
// configured target languages; running the pipeline on its own output is a
// no-op.
package pipeline

import (
	"slices"
	"strings"

	"github.com/moistari/rls"

	"github.com/autobrr/dredgr/internal/domain"
)

// Pipeline applies junk filtering, language detection and filtering, release
// metadata enrichment, and dedup-keep-largest, in that order.
type Pipeline struct {
	classifier      *Classifier
	targetLanguages []string
}

// New builds a pipeline. A nil classifier falls back to the defaults; empty
// targetLanguages disables the language filter entirely.
func New(classifier *Classifier, targetLanguages []string) *Pipeline {
	if classifier == nil {
		classifier = NewClassifier()
	}
	targets := make([]string, 0, len(targetLanguages))
	for _, lang := range targetLanguages {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang != "" && !slices.Contains(targets, lang) {
			targets = append(targets, lang)
		}
	}
	return &Pipeline{classifier: classifier, targetLanguages: targets}
}

// Run processes one adapter's raw output.
func (p *Pipeline) Run(results []domain.SearchResult) []domain.SearchResult {
	out := make([]domain.SearchResult, 0, len(results))
	for _, result := range results {
		if p.classifier.IsJunk(result.Title) {
			continue
		}

		if len(result.Languages) == 0 {
			result.Languages = p.classifier.DetectLanguages(result.Title)
		}

		if !p.keepLanguages(result.Languages) {
			continue
		}

		out = append(out, enrichRelease(result))
	}

	return Dedupe(out)
}

// keepLanguages applies the configured language selection.
//
// English-only selection drops anything carrying a non-English token, since
// absence of signal is treated as English. Any other selection keeps a title
// carrying any of the selected tokens; a title with no tokens at all is kept
// only when English is among the targets.
func (p *Pipeline) keepLanguages(detected []string) bool {
	if len(p.targetLanguages) == 0 {
		return true
	}

	if len(p.targetLanguages) == 1 && p.targetLanguages[0] == "en" {
		for _, code := range detected {
			if code != "en" {
				return false
			}
		}
		return true
	}

	if len(detected) == 0 {
		return slices.Contains(p.targetLanguages, "en")
	}
	for _, code := range detected {
		if slices.Contains(p.targetLanguages, code) {
			return true
		}
	}
	return false
}

// Dedupe collapses results sharing a normalized title key, keeping the record
// with the largest declared size. Ties keep the first-seen record.
func Dedupe(results []domain.SearchResult) []domain.SearchResult {
	order := make([]string, 0, len(results))
	best := make(map[string]domain.SearchResult, len(results))

	for _, result := range results {
		key := NormalizeTitleKey(result.Title)
		existing, ok := best[key]
		if !ok {
			best[key] = result
			order = append(order, key)
			continue
		}
		if result.SizeBytes > existing.SizeBytes {
			best[key] = result
		}
	}

	out := make([]domain.SearchResult, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

// NormalizeTitleKey produces the case- and whitespace-insensitive key used
// for dedup grouping.
func NormalizeTitleKey(title string) string {
	return strings.Join(tokenizeTitle(title), " ")
}

// NormalizeInfoHash lowercases a hash candidate and strips every non-hex
// character. Returns empty when nothing hex-like remains.
func NormalizeInfoHash(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToLower(raw) {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// enrichRelease fills resolution, codec and year from the parsed release name
// when the source did not provide them. Parsing the same title twice yields
// the same values, keeping the pipeline idempotent.
func enrichRelease(result domain.SearchResult) domain.SearchResult {
	if result.Title == "" {
		return result
	}
	if result.Resolution != "" && result.Codec != "" && result.Year != 0 {
		return result
	}

	release := rls.ParseString(result.Title)
	if result.Resolution == "" {
		result.Resolution = release.Resolution
	}
	if result.Codec == "" && len(release.Codec) > 0 {
		result.Codec = release.Codec[0]
	}
	if result.Year == 0 {
		result.Year = release.Year
	}
	return result
}
