// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scraper

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/autobrr/dredgr/internal/domain"
)

// StatusError preserves the HTTP status of a failed upstream call so the
// classifier can tell rate limiting from server breakage.
type StatusError struct {
	StatusCode int
	URL        string
	Snippet    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s returned status %d", e.URL, e.StatusCode)
}

func (e *StatusError) Is(target error) bool {
	_, ok := target.(*StatusError)
	return ok
}

var captchaMarkers = []string{"captcha", "cf-challenge", "cloudflare", "just a moment"}

// Classify maps an adapter failure onto the error taxonomy. Classification
// is best-effort from error types, status codes and message patterns, with
// Unknown as the documented fallback.
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return domain.ErrorKindUnknown
	}

	if errors.Is(err, context.Canceled) {
		return domain.ErrorKindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorKindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrorKindTimeout
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return domain.ErrorKindRateLimited
		case statusErr.StatusCode == http.StatusForbidden && containsCaptchaMarker(statusErr.Snippet):
			return domain.ErrorKindCaptchaDetected
		case statusErr.StatusCode >= http.StatusInternalServerError:
			return domain.ErrorKindServerError
		}
	}

	var (
		jsonSyntaxErr *json.SyntaxError
		jsonTypeErr   *json.UnmarshalTypeError
		xmlSyntaxErr  *xml.SyntaxError
	)
	if errors.As(err, &jsonSyntaxErr) || errors.As(err, &jsonTypeErr) ||
		errors.As(err, &xmlSyntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return domain.ErrorKindMalformedResponse
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsCaptchaMarker(msg):
		return domain.ErrorKindCaptchaDetected
	case strings.Contains(msg, "too many requests"), strings.Contains(msg, "rate limit"):
		return domain.ErrorKindRateLimited
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return domain.ErrorKindTimeout
	case strings.Contains(msg, "malformed"), strings.Contains(msg, "unexpected end of"):
		return domain.ErrorKindMalformedResponse
	}

	return domain.ErrorKindUnknown
}

func containsCaptchaMarker(s string) bool {
	s = strings.ToLower(s)
	for _, marker := range captchaMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
