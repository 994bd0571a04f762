// Package routingconfig loads the routing tables from YAML and reloads them on change.
package routingconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
	"github.com/kirillkom/kb-source-router/internal/core/ranking"
)

// Load reads and validates the routing file at path. An empty path yields the
// built-in defaults.
func Load(path string) (ranking.Config, error) {
	if path == "" {
		return ranking.DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ranking.Config{}, fmt.Errorf("read routing config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return ranking.Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a routing document. Tables left out of the document fall back to the
// built-in ones; unknown fields are rejected.
func Parse(data []byte) (ranking.Config, error) {
	var cfg ranking.Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return ranking.Config{}, domain.WrapError(domain.ErrConfigValidation, "decode routing yaml", err)
	}

	def := ranking.DefaultConfig()
	if cfg.Priorities == nil {
		cfg.Priorities = def.Priorities
	}
	if cfg.Keywords == nil {
		cfg.Keywords = def.Keywords
	}
	if cfg.Patterns == nil {
		cfg.Patterns = def.Patterns
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return ranking.Config{}, err
	}
	// Compile patterns now so a bad regex fails at load, not at first swap.
	if _, err := ranking.NewPatternTable(cfg.Keywords, cfg.Patterns); err != nil {
		return ranking.Config{}, domain.WrapError(domain.ErrConfigValidation, "compile routing patterns", err)
	}
	return cfg, nil
}
