package config

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"gopkg.in/yaml.v2"

	"github.com/hookline/eventrouter/internal/plugin"
)

// FilterEntry is one plugin's event-name subscription, as loaded from a
// YAML filter file.
type FilterEntry struct {
	Plugin     string   `yaml:"plugin"`
	EventNames []string `yaml:"eventNames"`
	Enabled    bool     `yaml:"enabled"`
}

// filterFile is the top-level shape of a filter YAML document.
type filterFile struct {
	Filters []FilterEntry `yaml:"filters"`
}

// FilterLoader loads per-plugin event filters from a YAML file and builds
// plugin.EventFilter values from them.
type FilterLoader struct {
	logger  logr.Logger
	entries map[string]FilterEntry
}

// NewFilterLoader creates a new filter loader.
func NewFilterLoader(logger logr.Logger) *FilterLoader {
	return &FilterLoader{
		logger:  logger,
		entries: make(map[string]FilterEntry),
	}
}

// Load reads filter entries from a YAML file, replacing any previously
// loaded entries.
func (fl *FilterLoader) Load(filePath string) error {
	fl.logger.Info("Loading event filters", "file", filePath)

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read filter file %s: %w", filePath, err)
	}

	var doc filterFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse filter file %s: %w", filePath, err)
	}

	entries := make(map[string]FilterEntry, len(doc.Filters))
	for _, entry := range doc.Filters {
		if entry.Plugin == "" {
			fl.logger.Error(fmt.Errorf("missing plugin name"), "Invalid filter entry, skipping")
			continue
		}
		entries[entry.Plugin] = entry
	}

	fl.entries = entries
	fl.logger.Info("Loaded event filters", "count", len(fl.entries), "file", filePath)
	return nil
}

// Filter returns the plugin.EventFilter for the named plugin. A plugin
// absent from the loaded file, or explicitly disabled, gets the
// match-nothing filter.
func (fl *FilterLoader) Filter(pluginName string) plugin.EventFilter {
	entry, ok := fl.entries[pluginName]
	if !ok || !entry.Enabled {
		return plugin.NamesFilter()
	}
	if len(entry.EventNames) == 0 {
		return plugin.EventFilter{}
	}
	return plugin.NamesFilter(entry.EventNames...)
}

// AddFilter manually installs a filter entry, useful for tests and
// programmatic setup.
func (fl *FilterLoader) AddFilter(entry FilterEntry) {
	fl.entries[entry.Plugin] = entry
}
