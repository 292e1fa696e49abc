// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/dredgr/internal/models"
)

type CacheHandler struct {
	store *models.KVStore
}

func NewCacheHandler(store *models.KVStore) *CacheHandler {
	return &CacheHandler{store: store}
}

func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to collect cache stats")
		RespondError(w, http.StatusInternalServerError, "Failed to collect cache stats")
		return
	}

	RespondJSON(w, http.StatusOK, stats)
}

// Cleanup triggers an immediate sweep of expired rows.
func (h *CacheHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.store.CleanupExpired(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("cache cleanup failed")
		RespondError(w, http.StatusInternalServerError, "Cleanup failed")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
