// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/dredgr/internal/domain"
)

func TestClassifierIsJunk(t *testing.T) {
	classifier := NewClassifier()

	tests := []struct {
		title string
		junk  bool
	}{
		{"Movie.2020.CAM.x264", true},
		{"Movie.2020.CAMPFIRE", false},
		{"Movie 2020 TELESYNC", true},
		{"Movie.2020.HDTS-GROUP", true},
		{"Movie.2020.DVDSCR.XviD", true},
		{"Movie.2020.R5.LiNE", true},
		{"Movie.2020.WORKPRINT", true},
		{"Movie.2020.1080p.BluRay.x264", false},
		{"Scrappy.Doo.2020.1080p", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.junk, classifier.IsJunk(tt.title))
		})
	}
}

func TestClassifierDetectLanguages(t *testing.T) {
	classifier := NewClassifier()

	tests := []struct {
		title string
		want  []string
	}{
		{"Movie.2020.FRENCH.1080p", []string{"fr"}},
		{"Movie.2020.MULTi.TRUEFRENCH", []string{"fr"}},
		{"Movie 2020 [RUS] WEB-DL", []string{"ru"}},
		{"Pelicula.2020.Castellano.HDRip", []string{"es"}},
		{"Film.2020.GERMAN.ITA.BluRay", []string{"de", "it"}},
		{"Filme.2020.Dublado.WEBRip", []string{"pt"}},
		{"Film.2020.Lektor.PL", []string{"pl"}},
		{"Movie.2020.1080p.WEB-DL", nil},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, classifier.DetectLanguages(tt.title))
		})
	}
}

func TestPipelineLanguageFilter(t *testing.T) {
	results := []domain.SearchResult{
		{Title: "Movie.2020.1080p.WEB-DL", SizeBytes: 100},
		{Title: "Movie.2020.FRENCH.1080p", SizeBytes: 200},
		{Title: "Movie.2020.RUS.WEB-DL", SizeBytes: 300},
	}

	t.Run("no targets keeps everything", func(t *testing.T) {
		out := New(nil, nil).Run(results)
		assert.Len(t, out, 3)
	})

	t.Run("english only drops foreign tokens", func(t *testing.T) {
		out := New(nil, []string{"en"}).Run(results)
		require.Len(t, out, 1)
		assert.Equal(t, "Movie.2020.1080p.WEB-DL", out[0].Title)
	})

	t.Run("specific selection keeps any match", func(t *testing.T) {
		out := New(nil, []string{"fr", "ru"}).Run(results)
		require.Len(t, out, 2)
		assert.Equal(t, "Movie.2020.FRENCH.1080p", out[0].Title)
		assert.Equal(t, "Movie.2020.RUS.WEB-DL", out[1].Title)
	})

	t.Run("english among selection keeps unspecified", func(t *testing.T) {
		out := New(nil, []string{"en", "fr"}).Run(results)
		assert.Len(t, out, 2)
	})
}

func TestPipelineDedupeKeepsLargest(t *testing.T) {
	p := New(nil, nil)

	out := p.Run([]domain.SearchResult{
		{Title: "A.2020.CAM", SizeBytes: 1},
		{Title: "A.2020", SizeBytes: 5},
		{Title: "A.2020", SizeBytes: 3},
	})

	require.Len(t, out, 1)
	assert.Equal(t, "A.2020", out[0].Title)
	assert.EqualValues(t, 5, out[0].SizeBytes)
}

func TestDedupeTiesKeepFirstSeen(t *testing.T) {
	out := Dedupe([]domain.SearchResult{
		{Title: "Show S01E01", SizeBytes: 10, Source: "first"},
		{Title: "show   s01e01", SizeBytes: 10, Source: "second"},
		{Title: "SHOW.S01E01", SizeBytes: 4, Source: "third"},
	})

	require.Len(t, out, 1)
	assert.Equal(t, "first", out[0].Source)
}

func TestDedupeInvariantLargestSurvives(t *testing.T) {
	in := []domain.SearchResult{
		{Title: "X", SizeBytes: 2},
		{Title: "x", SizeBytes: 9},
		{Title: "X ", SizeBytes: 4},
		{Title: "Y", SizeBytes: 1},
	}

	out := Dedupe(in)
	require.Len(t, out, 2)

	bySize := map[string]int64{}
	for _, r := range out {
		bySize[NormalizeTitleKey(r.Title)] = r.SizeBytes
	}
	assert.EqualValues(t, 9, bySize["x"])
	assert.EqualValues(t, 1, bySize["y"])
}

func TestPipelineIdempotent(t *testing.T) {
	p := New(nil, []string{"fr"})

	in := []domain.SearchResult{
		{Title: "Movie.2020.FRENCH.1080p.x264", SizeBytes: 100},
		{Title: "Movie.2020.FRENCH.720p", SizeBytes: 50},
		{Title: "Other.2019.VOSTFR.CAM", SizeBytes: 10},
		{Title: "Autre.2021.VFF.WEB-DL", SizeBytes: 70},
	}

	once := p.Run(in)
	twice := p.Run(once)
	assert.Equal(t, once, twice)
}

func TestPipelineEnrichesReleaseMetadata(t *testing.T) {
	p := New(nil, nil)

	out := p.Run([]domain.SearchResult{
		{Title: "Movie.2020.1080p.BluRay.x264-GROUP", SizeBytes: 100},
	})

	require.Len(t, out, 1)
	assert.Equal(t, "1080p", out[0].Resolution)
	assert.Equal(t, 2020, out[0].Year)
}

func TestNormalizeInfoHash(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ABCDEF0123456789ABCDEF0123456789ABCDEF01", "abcdef0123456789abcdef0123456789abcdef01"},
		{" ABC-DEF 0123 ", "abcdef0123"},
		{"xyz", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeInfoHash(tt.in))
	}
}

func TestNormalizeTitleKey(t *testing.T) {
	assert.Equal(t, NormalizeTitleKey("Show  S01E01"), NormalizeTitleKey("show.s01e01"))
	assert.Equal(t, NormalizeTitleKey(" A B "), NormalizeTitleKey("a\tb"))
}
