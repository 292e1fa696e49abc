// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// ErrorKind classifies a failed source call for health tracking.
type ErrorKind string

const (
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindRateLimited       ErrorKind = "rate_limited"
	ErrorKindServerError       ErrorKind = "server_error"
	ErrorKindCaptchaDetected   ErrorKind = "captcha_detected"
	ErrorKindMalformedResponse ErrorKind = "malformed_response"
	ErrorKindCancelled         ErrorKind = "cancelled"
	ErrorKindUnknown           ErrorKind = "unknown"
)

// Typed reports whether the kind carries a specific failure signal, as opposed
// to the Unknown fallback. Cancellation is never a health signal.
func (k ErrorKind) Typed() bool {
	switch k {
	case ErrorKindTimeout, ErrorKindRateLimited, ErrorKindServerError,
		ErrorKindCaptchaDetected, ErrorKindMalformedResponse:
		return true
	}
	return false
}

// SearchRequest describes one orchestrated lookup.
type SearchRequest struct {
	ContentType string `json:"contentType"`
	ContentID   string `json:"contentId"`
	Query       string `json:"query"`
	Season      *int   `json:"season,omitempty"`
	Episode     *int   `json:"episode,omitempty"`

	// Sources restricts the lookup to the given source names. Empty means
	// the adaptive selector decides.
	Sources []string `json:"sources,omitempty"`

	// Languages are the user-selected target language codes.
	Languages []string `json:"languages,omitempty"`

	// BackgroundRefresh bypasses adaptive selection and queries every
	// enabled source unconditionally.
	BackgroundRefresh bool `json:"-"`
}

// SearchResult is a normalized record from one source. Transient; only lives
// in the short-TTL result cache.
type SearchResult struct {
	Title      string   `json:"title"`
	InfoHash   string   `json:"infoHash,omitempty"`
	SizeBytes  int64    `json:"sizeBytes"`
	Seeders    int      `json:"seeders"`
	Source     string   `json:"source"`
	Languages  []string `json:"languages,omitempty"`
	Resolution string   `json:"resolution,omitempty"`
	Codec      string   `json:"codec,omitempty"`
	Year       int      `json:"year,omitempty"`
}

// SeedersUnknown marks a result whose source did not report a seeder count.
const SeedersUnknown = -1
