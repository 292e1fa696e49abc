// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/dredgr/internal/availability"
)

type AvailabilityHandler struct {
	cache *availability.Cache
}

func NewAvailabilityHandler(cache *availability.Cache) *AvailabilityHandler {
	return &AvailabilityHandler{cache: cache}
}

func (h *AvailabilityHandler) Routes(r chi.Router) {
	r.Get("/availability/{provider}/{hash}", h.Get)
	r.Put("/availability/{provider}/{hash}", h.Set)
	r.Delete("/availability/{provider}/{hash}", h.Delete)
}

func (h *AvailabilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	hash := chi.URLParam(r, "hash")

	available, known := h.cache.Get(r.Context(), provider, hash)
	RespondJSON(w, http.StatusOK, map[string]bool{
		"known":     known,
		"available": available,
	})
}

func (h *AvailabilityHandler) Set(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Available bool `json:"available"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		log.Warn().Err(err).Msg("failed to decode availability request")
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	h.cache.Set(r.Context(), chi.URLParam(r, "provider"), chi.URLParam(r, "hash"), input.Available)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AvailabilityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.cache.Forget(r.Context(), chi.URLParam(r, "provider"), chi.URLParam(r, "hash"))
	w.WriteHeader(http.StatusNoContent)
}
