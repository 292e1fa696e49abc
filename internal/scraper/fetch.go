// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/avast/retry-go"
)

const (
	maxResponseBytes  int64 = 8 << 20 // 8 MiB ceiling per source response
	fetchAttempts           = 3
	fetchRetryDelay         = 500 * time.Millisecond
	errorSnippetBytes       = 512
)

// fetchJSON performs a GET and decodes the JSON body into target. Transient
// failures (network errors, 5xx) are retried with backoff; anything else
// surfaces immediately so the classifier sees the original cause.
func fetchJSON(ctx context.Context, client *http.Client, url string, target any) error {
	var body []byte

	err := retry.Do(
		func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return fmt.Errorf("build request: %w", err)
			}
			setRequestHeaders(req)

			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
				snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorSnippetBytes))
				return &StatusError{StatusCode: resp.StatusCode, URL: url, Snippet: string(snippet)}
			}

			body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			if err != nil {
				return fmt.Errorf("read response body: %w", err)
			}
			return nil
		},
		retry.Attempts(fetchAttempts),
		retry.Delay(fetchRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if ctx.Err() != nil {
				return false
			}
			return isTransient(err)
		}),
	)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}

// isTransient reports whether a retry has any chance of helping.
func isTransient(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
