// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/autobrr/dredgr/internal/domain"
	"github.com/autobrr/dredgr/internal/tracker"
)

type SourcesHandler struct {
	cfg     *domain.Config
	tracker *tracker.Tracker
}

func NewSourcesHandler(cfg *domain.Config, trk *tracker.Tracker) *SourcesHandler {
	return &SourcesHandler{cfg: cfg, tracker: trk}
}

type sourceInfo struct {
	tracker.SourceHealth
	Kind    string `json:"kind"`
	Enabled bool   `json:"enabled"`
}

// List reports every configured source with its current health.
func (h *SourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.cfg.Sources))
	for _, src := range h.cfg.Sources {
		names = append(names, src.Name)
	}

	health := h.tracker.Snapshot(r.Context(), names)

	out := make([]sourceInfo, 0, len(health))
	for i, src := range h.cfg.Sources {
		out = append(out, sourceInfo{
			SourceHealth: health[i],
			Kind:         src.Kind,
			Enabled:      src.Enabled,
		})
	}

	RespondJSON(w, http.StatusOK, out)
}
