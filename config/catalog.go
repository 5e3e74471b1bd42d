package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModelCatalog overrides the built-in model lists. Empty sections keep the defaults.
//
//	gemini: [gemini-2.0-flash, gemini-2.5-flash]
//	priority:
//	  practice: [gemini, openrouter]
//	ranked:
//	  groq:
//	    conversation: [llama-3.1-8b-instant]
type ModelCatalog struct {
	Gemini   []string                       `yaml:"gemini"`
	Priority map[string][]string            `yaml:"priority"`
	Ranked   map[string]map[string][]string `yaml:"ranked"`
}

// LoadCatalog reads a catalog file. An empty path returns an empty catalog.
func LoadCatalog(path string) (*ModelCatalog, error) {
	if path == "" {
		return &ModelCatalog{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes catalog YAML
func ParseCatalog(data []byte) (*ModelCatalog, error) {
	var c ModelCatalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse model catalog: %w", err)
	}
	for mode := range c.Priority {
		if mode != "practice" && mode != "conversation" {
			return nil, fmt.Errorf("unknown mode %q in catalog priority", mode)
		}
	}
	for provider, modes := range c.Ranked {
		for mode := range modes {
			if mode != "practice" && mode != "conversation" {
				return nil, fmt.Errorf("unknown mode %q in ranked models of %s", mode, provider)
			}
		}
	}
	return &c, nil
}
