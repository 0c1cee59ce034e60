package cli

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/provgraph/internal/ir"
)

// Config holds defaults read from the --config YAML file. Command-line
// flags override every field.
//
//	endpoint: https://example.org/provenance
//	database: ./provgraph.db
//	options:
//	  show_parameters: false
//	  show_reference_files: true
//	hints:
//	  row_spacing: wide
//	  column_spacing: 120
type Config struct {
	Endpoint string         `yaml:"endpoint,omitempty"`
	Database string         `yaml:"database,omitempty"`
	Options  ir.ViewOptions `yaml:"options,omitempty"`
	Hints    ir.RenderHints `yaml:"hints,omitempty"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{Hints: ir.DefaultRenderHints()}
}

// LoadConfig reads a YAML config file. Unknown fields are rejected and
// unset hints fall back to the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Hints.RowSpacing == "" {
		cfg.Hints.RowSpacing = ir.DefaultRenderHints().RowSpacing
	}
	if !ir.ValidRowSpacing(cfg.Hints.RowSpacing) {
		return nil, fmt.Errorf("config %s: unknown row_spacing %q", path, cfg.Hints.RowSpacing)
	}
	if cfg.Hints.ColumnSpacing <= 0 {
		cfg.Hints.ColumnSpacing = ir.DefaultRenderHints().ColumnSpacing
	}
	return cfg, nil
}
