// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package pipeline

import (
	"regexp"
	"sort"
	"strings"
)

// defaultJunkKeywords flag bootleg and pre-retail captures. Matching is
// whole-word and case-insensitive, so CAMPFIRE survives while CAM does not.
var defaultJunkKeywords = []string{
	"cam", "camrip", "hdcam",
	"ts", "hdts", "telesync",
	"tc", "telecine",
	"scr", "screener", "dvdscr", "bdscr",
	"r5",
	"workprint", "wp",
}

// defaultLanguageAliases maps a language code to the short-form tokens that
// release titles use for it.
var defaultLanguageAliases = map[string][]string{
	"en": {"english", "eng", "en"},
	"ru": {"russian", "rus", "ru"},
	"fr": {"french", "fra", "fre", "fr", "truefrench", "vf", "vff"},
	"es": {"spanish", "spa", "esp", "es", "castellano", "latino"},
	"de": {"german", "ger", "deu", "de"},
	"it": {"italian", "ita", "it"},
	"pt": {"portuguese", "por", "pt", "dublado"},
	"pl": {"polish", "pol", "pl", "lektor"},
}

var titleDelimiters = regexp.MustCompile(`[\[\]\(\)\{\}._,+\-:;/\\|]+`)

// Classifier holds the junk and language wordlists. The lists are plain data
// so they can grow without touching the pipeline control flow.
type Classifier struct {
	junkRe     *regexp.Regexp
	aliasIndex map[string][]string // token -> language codes
}

// ClassifierOption customizes the wordlists.
type ClassifierOption func(*classifierConfig)

type classifierConfig struct {
	junkKeywords    []string
	languageAliases map[string][]string
}

// WithJunkKeywords replaces the junk keyword list.
func WithJunkKeywords(keywords []string) ClassifierOption {
	return func(c *classifierConfig) {
		if len(keywords) > 0 {
			c.junkKeywords = keywords
		}
	}
}

// WithLanguageAliases replaces the language alias dictionary.
func WithLanguageAliases(aliases map[string][]string) ClassifierOption {
	return func(c *classifierConfig) {
		if len(aliases) > 0 {
			c.languageAliases = aliases
		}
	}
}

// NewClassifier builds a classifier from the default wordlists plus options.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	cfg := &classifierConfig{
		junkKeywords:    defaultJunkKeywords,
		languageAliases: defaultLanguageAliases,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	escaped := make([]string, 0, len(cfg.junkKeywords))
	for _, kw := range cfg.junkKeywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		escaped = append(escaped, regexp.QuoteMeta(kw))
	}

	index := make(map[string][]string)
	for code, aliases := range cfg.languageAliases {
		for _, alias := range aliases {
			alias = strings.ToLower(strings.TrimSpace(alias))
			if alias == "" {
				continue
			}
			index[alias] = append(index[alias], code)
		}
	}

	return &Classifier{
		junkRe:     regexp.MustCompile(`(?i)\b(?:` + strings.Join(escaped, "|") + `)\b`),
		aliasIndex: index,
	}
}

// IsJunk reports whether the title names a junk capture. Missing titles pass,
// they cannot be judged.
func (c *Classifier) IsJunk(title string) bool {
	if strings.TrimSpace(title) == "" {
		return false
	}
	return c.junkRe.MatchString(title)
}

// DetectLanguages returns the sorted, de-duplicated language codes whose
// alias tokens appear in the title. Zero matches means unspecified.
func (c *Classifier) DetectLanguages(title string) []string {
	if title == "" {
		return nil
	}

	seen := make(map[string]struct{})
	for _, token := range tokenizeTitle(title) {
		for _, code := range c.aliasIndex[token] {
			seen[code] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}

	codes := make([]string, 0, len(seen))
	for code := range seen {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func tokenizeTitle(title string) []string {
	normalized := titleDelimiters.ReplaceAllString(strings.ToLower(title), " ")
	return strings.Fields(normalized)
}
