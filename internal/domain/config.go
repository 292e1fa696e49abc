// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// SourceConfig describes a single upstream scrape source.
type SourceConfig struct {
	Name           string `mapstructure:"name"`
	Kind           string `mapstructure:"kind"`
	URL            string `mapstructure:"url"`
	Enabled        bool   `mapstructure:"enabled"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
	MaxPages       int    `mapstructure:"maxPages"`
}

// Config is the top-level application configuration.
type Config struct {
	Version string

	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"baseUrl"`

	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"`
	LogMaxBackups int    `mapstructure:"logMaxBackups"`

	DataDir string `mapstructure:"dataDir"`

	MetricsEnabled bool `mapstructure:"metricsEnabled"`

	// Search behaviour
	TargetLanguages []string `mapstructure:"targetLanguages"`
	SelectionTopN   int      `mapstructure:"selectionTopN"`
	SelectionMin    float64  `mapstructure:"selectionMinScore"`

	// Cache TTLs
	SearchCacheTTLMinutes    int `mapstructure:"searchCacheTtlMinutes"`
	AvailabilityCacheTTLDays int `mapstructure:"availabilityCacheTtlDays"`
	SweepIntervalMinutes     int `mapstructure:"sweepIntervalMinutes"`

	// Per-call limits applied when a source does not override them
	SourceTimeoutSeconds int `mapstructure:"sourceTimeoutSeconds"`
	SourceMaxPages       int `mapstructure:"sourceMaxPages"`

	Sources []SourceConfig `mapstructure:"sources"`
}

// EnabledSourceNames returns the names of all enabled sources in config order.
func (c *Config) EnabledSourceNames() []string {
	names := make([]string, 0, len(c.Sources))
	for _, src := range c.Sources {
		if src.Enabled {
			names = append(names, src.Name)
		}
	}
	return names
}
