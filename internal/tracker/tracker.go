// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package tracker scores source health from recorded outcomes and time-boxes
// unhealthy sources out of rotation.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/dredgr/internal/domain"
	"github.com/autobrr/dredgr/internal/models"
)

const (
	windowSize       = 10
	recordIdleTTL    = 30 * time.Minute
	maxAcceptableMs  = 10_000
	repeatedFailures = 3

	weightSuccessRate = 0.35
	weightResults     = 0.25
	weightSpeed       = 0.20
	weightErrors      = 0.20
)

// PenaltyKindRepeatedFailure marks the penalty applied after a run of
// consecutive failures, independent of their individual kinds.
const PenaltyKindRepeatedFailure = "repeated_failure"

var penaltyDurations = map[domain.ErrorKind]time.Duration{
	domain.ErrorKindTimeout:         5 * time.Minute,
	domain.ErrorKindRateLimited:     15 * time.Minute,
	domain.ErrorKindServerError:     10 * time.Minute,
	domain.ErrorKindCaptchaDetected: 30 * time.Minute,
}

const repeatedFailurePenalty = 20 * time.Minute

// Outcome is one entry in a record's sliding window.
type Outcome struct {
	Success        bool      `json:"success"`
	ResultCount    int       `json:"resultCount"`
	ResponseTimeMs int64     `json:"responseTimeMs"`
	At             time.Time `json:"at"`
}

// PerformanceRecord accumulates per-source health state. Created lazily on
// the first event and expired from the store after sitting idle.
type PerformanceRecord struct {
	Source              string                   `json:"source"`
	TotalRequests       int                      `json:"totalRequests"`
	SuccessCount        int                      `json:"successCount"`
	FailureCount        int                      `json:"failureCount"`
	ErrorCounts         map[domain.ErrorKind]int `json:"errorCounts,omitempty"`
	Window              []Outcome                `json:"window,omitempty"`
	ConsecutiveFailures int                      `json:"consecutiveFailures"`
	Score               float64                  `json:"score"`
	TotalResults        int                      `json:"totalResults"`
	TotalResponseMs     int64                    `json:"totalResponseMs"`
	LastSuccess         time.Time                `json:"lastSuccess,omitzero"`
	LastFailure         time.Time                `json:"lastFailure,omitzero"`
}

// Penalty is a time-boxed exclusion from selection. It exists only while
// active; expired rows are lazily removed on the next check.
type Penalty struct {
	Source          string    `json:"source"`
	Kind            string    `json:"kind"`
	AppliedAt       time.Time `json:"appliedAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
	DurationMinutes int       `json:"durationMinutes"`
}

// Tracker owns PerformanceRecord and Penalty lifecycles on the shared store.
// Read-modify-write cycles are serialized per source key.
type Tracker struct {
	store *models.KVStore
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures optional tracker behaviour.
type Option func(*Tracker)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// New constructs a tracker on top of the shared store.
func New(store *models.KVStore, opts ...Option) *Tracker {
	t := &Tracker{
		store: store,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

func (t *Tracker) sourceLock(source string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	lock, ok := t.locks[source]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[source] = lock
	}
	return lock
}

func (t *Tracker) loadRecord(ctx context.Context, source string) *PerformanceRecord {
	record := &PerformanceRecord{Source: source}
	t.store.GetJSON(ctx, models.NamespacePerformance, source, record)
	record.Source = source
	if record.ErrorCounts == nil {
		record.ErrorCounts = make(map[domain.ErrorKind]int)
	}
	return record
}

func (t *Tracker) saveRecord(ctx context.Context, record *PerformanceRecord) {
	t.store.SetJSON(ctx, models.NamespacePerformance, record.Source, record, recordIdleTTL)
}

// RecordSuccess registers a successful call and recomputes the score.
func (t *Tracker) RecordSuccess(ctx context.Context, source string, resultCount int, responseTime time.Duration) {
	lock := t.sourceLock(source)
	lock.Lock()
	defer lock.Unlock()

	record := t.loadRecord(ctx, source)
	now := t.now().UTC()

	record.TotalRequests++
	record.SuccessCount++
	record.TotalResults += resultCount
	record.TotalResponseMs += responseTime.Milliseconds()
	record.ConsecutiveFailures = 0
	record.LastSuccess = now
	record.appendOutcome(Outcome{Success: true, ResultCount: resultCount, ResponseTimeMs: responseTime.Milliseconds(), At: now})
	record.recomputeScore()

	t.saveRecord(ctx, record)

	log.Trace().
		Str("source", source).
		Int("results", resultCount).
		Float64("score", record.Score).
		Msg("recorded source success")
}

// RecordFailure registers a failed call, applies any penalty the failure kind
// earns, and recomputes the score. Cancelled calls are never scored.
func (t *Tracker) RecordFailure(ctx context.Context, source string, kind domain.ErrorKind, responseTime time.Duration) {
	if kind == domain.ErrorKindCancelled {
		return
	}

	lock := t.sourceLock(source)
	lock.Lock()
	defer lock.Unlock()

	record := t.loadRecord(ctx, source)
	now := t.now().UTC()

	record.TotalRequests++
	record.FailureCount++
	record.ErrorCounts[kind]++
	record.ConsecutiveFailures++
	record.TotalResponseMs += responseTime.Milliseconds()
	record.LastFailure = now
	record.appendOutcome(Outcome{Success: false, ResponseTimeMs: responseTime.Milliseconds(), At: now})
	record.recomputeScore()

	if duration, ok := penaltyDurations[kind]; ok {
		t.applyPenalty(ctx, source, string(kind), duration)
	}
	if record.ConsecutiveFailures >= repeatedFailures {
		t.applyPenalty(ctx, source, PenaltyKindRepeatedFailure, repeatedFailurePenalty)
	}

	t.saveRecord(ctx, record)

	log.Debug().
		Str("source", source).
		Str("kind", string(kind)).
		Int("consecutive", record.ConsecutiveFailures).
		Float64("score", record.Score).
		Msg("recorded source failure")
}

// applyPenalty writes a penalty unless a longer-lived one is already active.
func (t *Tracker) applyPenalty(ctx context.Context, source, kind string, duration time.Duration) {
	now := t.now().UTC()
	expiresAt := now.Add(duration)

	var existing Penalty
	if t.store.GetJSON(ctx, models.NamespacePenalty, source, &existing) {
		if existing.ExpiresAt.After(expiresAt) {
			return
		}
	}

	penalty := Penalty{
		Source:          source,
		Kind:            kind,
		AppliedAt:       now,
		ExpiresAt:       expiresAt,
		DurationMinutes: int(duration / time.Minute),
	}
	t.store.SetJSON(ctx, models.NamespacePenalty, source, penalty, duration)

	log.Info().
		Str("source", source).
		Str("kind", kind).
		Time("expires_at", expiresAt).
		Msg("source penalized")
}

// IsPenalized reports whether a penalty is currently active, removing the
// row when it finds one past expiry.
func (t *Tracker) IsPenalized(ctx context.Context, source string) bool {
	var penalty Penalty
	if !t.store.GetJSON(ctx, models.NamespacePenalty, source, &penalty) {
		return false
	}
	if !t.now().UTC().Before(penalty.ExpiresAt) {
		t.store.Delete(ctx, models.NamespacePenalty, source)
		return false
	}
	return true
}

// Score returns the current score for a source. Sources without history get
// a neutral 50 so new sources still enter rotation.
func (t *Tracker) Score(ctx context.Context, source string) float64 {
	record := &PerformanceRecord{}
	if !t.store.GetJSON(ctx, models.NamespacePerformance, source, record) {
		return 50
	}
	return record.Score
}

func (r *PerformanceRecord) appendOutcome(outcome Outcome) {
	r.Window = append(r.Window, outcome)
	if len(r.Window) > windowSize {
		r.Window = r.Window[len(r.Window)-windowSize:]
	}
}

// recomputeScore rebuilds the 0-100 score from the aggregate counters.
func (r *PerformanceRecord) recomputeScore() {
	if r.TotalRequests == 0 {
		r.Score = 0
		return
	}

	total := float64(r.TotalRequests)

	successRate := float64(r.SuccessCount) / total * 100

	var resultScore float64
	if r.SuccessCount > 0 {
		avgResults := float64(r.TotalResults) / float64(r.SuccessCount)
		resultScore = min(avgResults/50*100, 100)
	}

	avgResponseMs := float64(r.TotalResponseMs) / total
	speedScore := max(100-avgResponseMs/maxAcceptableMs*100, 0)

	var typedErrors int
	for kind, count := range r.ErrorCounts {
		if kind.Typed() {
			typedErrors += count
		}
	}
	errorScore := max(100-float64(typedErrors)/total*200, 0)

	score := successRate*weightSuccessRate +
		resultScore*weightResults +
		speedScore*weightSpeed +
		errorScore*weightErrors

	multiplier := max(1-float64(r.ConsecutiveFailures)*0.1, 0.5)
	r.Score = min(max(score*multiplier, 0), 100)
}
