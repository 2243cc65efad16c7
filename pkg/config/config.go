// Package config loads run configurations: YAML files checked against an
// embedded JSON schema and turned into assembly options and strategy
// parameters.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chazu/snapgen/pkg/assembly"
	"github.com/chazu/snapgen/pkg/collide"
	"github.com/chazu/snapgen/pkg/piece"
	"github.com/chazu/snapgen/pkg/strategy"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

var schema = jsonschema.MustCompileString("snapgen.schema.json", schemaJSON)

// Config is one run's configuration as read from YAML. Fields left out of
// the file keep the values from Default.
type Config struct {
	Seed    *int64 `yaml:"seed,omitempty" json:"seed,omitempty"`
	Library string `yaml:"library,omitempty" json:"library,omitempty"`

	MaxPieces          int     `yaml:"max_pieces" json:"max_pieces"`
	MaxFailuresPerStep int     `yaml:"max_failures_per_step" json:"max_failures_per_step"`
	Distance           float64 `yaml:"distance" json:"distance"`
	PinTolerance       uint    `yaml:"pin_tolerance" json:"pin_tolerance"`
	StartTolerance     int     `yaml:"start_tolerance" json:"start_tolerance"`

	Rules []string `yaml:"rules" json:"rules"`
	// ColourMatrix maps a guide colour to the candidate colours it accepts.
	// Entries are one way; list both directions for a symmetric pair.
	ColourMatrix map[string][]string `yaml:"colour_matrix,omitempty" json:"colour_matrix,omitempty"`

	CheckOverlaps    bool    `yaml:"check_overlaps" json:"check_overlaps"`
	OverlapTolerance float64 `yaml:"overlap_tolerance" json:"overlap_tolerance"`
	VoxelThreshold   float64 `yaml:"voxel_threshold" json:"voxel_threshold"`

	Strategy strategy.Params `yaml:"strategy" json:"strategy"`
}

// Default returns the configuration every file is layered over.
func Default() Config {
	return Config{
		MaxPieces:          50,
		MaxFailuresPerStep: assembly.DefaultMaxFailuresPerStep,
		Rules:              []string{"pins"},
		CheckOverlaps:      true,
		OverlapTolerance:   collide.DefaultTolerance,
		VoxelThreshold:     collide.DefaultThreshold,
		Strategy:           strategy.Params{Name: "arena"},
	}
}

// Load reads a YAML configuration. A relative library path is resolved
// against the file's directory.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(raw)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if cfg.Library != "" && !filepath.IsAbs(cfg.Library) {
		cfg.Library = filepath.Join(filepath.Dir(path), cfg.Library)
	}
	return cfg, nil
}

// Parse validates raw YAML against the schema and decodes it over
// Default.
func Parse(raw []byte) (Config, error) {
	cfg := Default()

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if doc == nil {
		return cfg, fmt.Errorf("config: empty document")
	}
	// Round-trip through JSON so the validator sees JSON types.
	js, err := json.Marshal(doc)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	var inst any
	if err := json.Unmarshal(js, &inst); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

// Normalize fills fields that default from other fields.
func (c *Config) Normalize() {
	c.Strategy.Name = strings.ToLower(strings.TrimSpace(c.Strategy.Name))
	if c.Strategy.MaxPieces == 0 {
		c.Strategy.MaxPieces = c.MaxPieces
	}
}

// Colours builds the colour matrix, or nil when none is configured. Each
// key is a guide colour and its list the candidate colours it takes.
func (c Config) Colours() (*piece.ColourMatrix, error) {
	if len(c.ColourMatrix) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(c.ColourMatrix))
	for k := range c.ColourMatrix {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var m piece.ColourMatrix
	for _, k := range keys {
		a, err := piece.ParseColour(k)
		if err != nil {
			return nil, fmt.Errorf("config: colour_matrix: %w", err)
		}
		for _, name := range c.ColourMatrix[k] {
			b, err := piece.ParseColour(name)
			if err != nil {
				return nil, fmt.Errorf("config: colour_matrix[%s]: %w", k, err)
			}
			m.Set(a, b)
		}
	}
	return &m, nil
}

// Options converts the configuration into assembly options. Logger and
// Verbose are left to the caller.
func (c Config) Options() (assembly.Options, error) {
	rules, err := piece.ParseRules(c.Rules)
	if err != nil {
		return assembly.Options{}, fmt.Errorf("config: rules: %w", err)
	}
	colours, err := c.Colours()
	if err != nil {
		return assembly.Options{}, err
	}
	return assembly.Options{
		Rules:              rules,
		PinTolerance:       c.PinTolerance,
		Colours:            colours,
		Seed:               c.Seed,
		MaxPieces:          c.MaxPieces,
		MaxFailuresPerStep: c.MaxFailuresPerStep,
		Distance:           c.Distance,
		CheckOverlaps:      c.CheckOverlaps,
		Oracle:             &collide.Geometric{Tolerance: c.OverlapTolerance, Threshold: c.VoxelThreshold},
		StartTolerance:     c.StartTolerance,
	}, nil
}

// NewStrategy builds a fresh strategy for one run.
func (c Config) NewStrategy() (strategy.Strategy, error) {
	return strategy.New(c.Strategy)
}
