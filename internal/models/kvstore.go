// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/dredgr/internal/database"
	"github.com/autobrr/dredgr/internal/dbinterface"
)

// Well-known namespaces sharing the kv_cache table. Each carries its own TTL
// policy; the rows are otherwise unrelated datasets.
const (
	NamespacePerformance  = "source_performance"
	NamespacePenalty      = "source_penalty"
	NamespaceResults      = "search_results"
	NamespaceAvailability = "hash_availability"
	NamespaceRecent       = "recent_searches"
)

const defaultSweepInterval = 5 * time.Minute

// KVStore is a durable keyed TTL cache backed by SQLite.
//
// Backend failures degrade every operation to a no-op: reads behave as a
// permanent miss and writes are dropped. Callers never see an error.
type KVStore struct {
	db            dbinterface.Querier
	sweepInterval time.Duration
	now           func() time.Time
}

// KVStoreOption configures optional behaviour on the store.
type KVStoreOption func(*KVStore)

// WithSweepInterval overrides the background cleanup cadence.
func WithSweepInterval(interval time.Duration) KVStoreOption {
	return func(s *KVStore) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) KVStoreOption {
	return func(s *KVStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewKVStore constructs a store on top of an open database handle.
func NewKVStore(db dbinterface.Querier, opts ...KVStoreOption) *KVStore {
	s := &KVStore{
		db:            db,
		sweepInterval: defaultSweepInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Get returns the stored value, or a miss when absent, expired, or the
// backend is unavailable. An expired row is deleted on the way out.
func (s *KVStore) Get(ctx context.Context, namespace, key string) ([]byte, bool) {
	if namespace == "" || key == "" {
		return nil, false
	}

	var (
		value     []byte
		expiresAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv_cache WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&value, &expiresAt)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Debug().Err(err).Str("namespace", namespace).Msg("kv cache read failed, treating as miss")
		}
		return nil, false
	}

	if s.now().UTC().After(expiresAt.UTC()) {
		s.Delete(ctx, namespace, key)
		return nil, false
	}

	return value, true
}

// Set writes value under (namespace, key) with the given TTL. A non-positive
// TTL drops the write.
func (s *KVStore) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) {
	if namespace == "" || key == "" || ttl <= 0 {
		return
	}

	now := s.now().UTC()
	const query = `
		INSERT INTO kv_cache (namespace, key, value, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`
	err := database.RetryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, query, namespace, key, value, now, now.Add(ttl))
		return execErr
	})
	if err != nil {
		log.Debug().Err(err).Str("namespace", namespace).Msg("kv cache write failed, dropping entry")
	}
}

// Delete removes a single entry. Missing rows and backend failures are ignored.
func (s *KVStore) Delete(ctx context.Context, namespace, key string) {
	if namespace == "" || key == "" {
		return
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_cache WHERE namespace = ? AND key = ?`, namespace, key,
	); err != nil {
		log.Debug().Err(err).Str("namespace", namespace).Msg("kv cache delete failed")
	}
}

// ListKeys returns the non-expired keys in a namespace matching prefix.
func (s *KVStore) ListKeys(ctx context.Context, namespace, prefix string) []string {
	if namespace == "" {
		return nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv_cache
		 WHERE namespace = ? AND key LIKE ? || '%' AND expires_at > ?`,
		namespace, prefix, s.now().UTC(),
	)
	if err != nil {
		log.Debug().Err(err).Str("namespace", namespace).Msg("kv cache list failed, treating as empty")
		return nil
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			log.Debug().Err(err).Msg("kv cache list scan failed")
			return keys
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		log.Debug().Err(err).Msg("kv cache list iteration failed")
	}
	return keys
}

// GetJSON unmarshals a cached value into target.
func (s *KVStore) GetJSON(ctx context.Context, namespace, key string, target any) bool {
	raw, ok := s.Get(ctx, namespace, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, target); err != nil {
		log.Debug().Err(err).Str("namespace", namespace).Str("key", key).Msg("kv cache decode failed, evicting entry")
		s.Delete(ctx, namespace, key)
		return false
	}
	return true
}

// SetJSON marshals value and stores it with the given TTL.
func (s *KVStore) SetJSON(ctx context.Context, namespace, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		log.Debug().Err(err).Str("namespace", namespace).Str("key", key).Msg("kv cache encode failed, dropping entry")
		return
	}
	s.Set(ctx, namespace, key, raw, ttl)
}

// CleanupExpired removes every row past expiry and reports how many went.
func (s *KVStore) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv_cache WHERE expires_at <= ?`, s.now().UTC())
	if err != nil {
		return 0, err
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// StartSweeper runs the periodic expiry sweep until ctx is cancelled. Each
// sweep is a single bounded DELETE so foreground reads and writes are never
// stalled behind it.
func (s *KVStore) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				deleted, err := s.CleanupExpired(sweepCtx)
				cancel()
				if err != nil {
					log.Debug().Err(err).Msg("kv cache sweep failed")
					continue
				}
				if deleted > 0 {
					log.Debug().Int64("deleted", deleted).Msg("kv cache sweep removed expired rows")
				}
			}
		}
	}()
}

// CacheStats summarizes the table for the ops API.
type CacheStats struct {
	Namespaces map[string]NamespaceStats `json:"namespaces"`
	TotalRows  int64                     `json:"totalRows"`
}

// NamespaceStats holds per-namespace row counts and payload size.
type NamespaceStats struct {
	Entries         int64 `json:"entries"`
	ApproxSizeBytes int64 `json:"approxSizeBytes"`
}

// Stats aggregates row counts per namespace.
func (s *KVStore) Stats(ctx context.Context) (*CacheStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT namespace, COUNT(*), COALESCE(SUM(LENGTH(value)), 0)
		FROM kv_cache
		WHERE expires_at > ?
		GROUP BY namespace
	`, s.now().UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &CacheStats{Namespaces: make(map[string]NamespaceStats)}
	for rows.Next() {
		var (
			namespace string
			entries   int64
			size      int64
		)
		if err := rows.Scan(&namespace, &entries, &size); err != nil {
			return nil, err
		}
		stats.Namespaces[strings.TrimSpace(namespace)] = NamespaceStats{Entries: entries, ApproxSizeBytes: size}
		stats.TotalRows += entries
	}
	return stats, rows.Err()
}
