// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/dredgr/internal/domain"
	"github.com/autobrr/dredgr/internal/orchestrator"
)

type SearchHandler struct {
	orchestrator *orchestrator.Orchestrator
}

func NewSearchHandler(o *orchestrator.Orchestrator) *SearchHandler {
	return &SearchHandler{orchestrator: o}
}

type searchResponse struct {
	Results []domain.SearchResult `json:"results"`
	Count   int                   `json:"count"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req domain.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("failed to decode search request")
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if strings.TrimSpace(req.Query) == "" && strings.TrimSpace(req.ContentID) == "" {
		RespondError(w, http.StatusBadRequest, "Either query or contentId is required")
		return
	}

	results, err := h.orchestrator.Search(r.Context(), req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Client gave up, nothing sensible to write.
			return
		}
		log.Error().Err(err).Str("query", req.Query).Msg("search failed")
		RespondError(w, http.StatusBadGateway, "All sources failed")
		return
	}

	RespondJSON(w, http.StatusOK, searchResponse{Results: results, Count: len(results)})
}
