// Package config loads run descriptions from YAML or JSON files, with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/san-kum/fmulab/internal/batch"
	"github.com/san-kum/fmulab/internal/integrators"
	"github.com/san-kum/fmulab/internal/sim"
)

// Config is a complete run description: the model to load, how to drive it,
// and optionally a sweep over its start values.
type Config struct {
	// FMU is the path of a model package. Mutually exclusive with Model.
	FMU string `json:"fmu"`
	// Model names a built-in reference model instead of an FMU.
	Model string `json:"model"`
	// Mode selects the execution interface, "cs" or "me".
	Mode string `json:"mode"`

	Run    RunConfig    `json:"run"`
	Sweep  *batch.Sweep `json:"sweep"`
	Batch  BatchConfig  `json:"batch"`
	Output OutputConfig `json:"output"`
}

// RunConfig mirrors sim.Config in file form.
type RunConfig struct {
	Start       float64        `json:"start"`
	Stop        float64        `json:"stop"`
	Step        float64        `json:"step"`
	Tolerance   float64        `json:"tolerance"`
	MinStep     float64        `json:"min_step"`
	MaxStep     float64        `json:"max_step"`
	Integrator  string         `json:"integrator"`
	Record      []string       `json:"record"`
	StartValues map[string]any `json:"start_values"`
}

type BatchConfig struct {
	Workers  int  `json:"workers"`
	FailFast bool `json:"fail_fast"`
}

type OutputConfig struct {
	// Dir is the run store root. Empty disables persistence.
	Dir string `json:"dir"`
	// Format selects the export encoding, "csv" or "json".
	Format string `json:"format"`
}

const (
	ModeCS = "cs"
	ModeME = "me"
)

// Load reads the file at path, applies FMULAB_* environment overrides
// (FMULAB_RUN__STOP=5 sets run.stop) and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("config: unsupported format %q", filepath.Ext(path))
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := k.Load(env.Provider("FMULAB_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "fmulab_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Mode == "" {
		c.Mode = ModeCS
	}
	if c.Run.Integrator == "" {
		c.Run.Integrator = "rk4"
	}
	if c.Output.Format == "" {
		c.Output.Format = "csv"
	}
}

// Validate rejects configurations with no model, an ambiguous model, or
// values the simulator would refuse later anyway.
func (c *Config) Validate() error {
	if c.FMU == "" && c.Model == "" {
		return fmt.Errorf("config: either fmu or model must be set")
	}
	if c.FMU != "" && c.Model != "" {
		return fmt.Errorf("config: fmu and model are mutually exclusive")
	}
	if c.Mode != ModeCS && c.Mode != ModeME {
		return fmt.Errorf("config: mode must be %q or %q, got %q", ModeCS, ModeME, c.Mode)
	}
	if _, ok := integrators.New(c.Run.Integrator); !ok {
		return fmt.Errorf("config: unknown integrator %q", c.Run.Integrator)
	}
	if c.Output.Format != "csv" && c.Output.Format != "json" {
		return fmt.Errorf("config: output format must be csv or json, got %q", c.Output.Format)
	}
	if c.Batch.Workers < 0 {
		return fmt.Errorf("config: batch workers must not be negative")
	}
	if c.Sweep != nil {
		if _, err := c.Sweep.Cases(); err != nil {
			return err
		}
	}
	return nil
}

// SimConfig converts the file form into the simulator's config.
func (c *Config) SimConfig() (sim.Config, error) {
	integ, ok := integrators.New(c.Run.Integrator)
	if !ok {
		return sim.Config{}, fmt.Errorf("config: unknown integrator %q", c.Run.Integrator)
	}
	return sim.Config{
		StartTime:   c.Run.Start,
		StopTime:    c.Run.Stop,
		StepSize:    c.Run.Step,
		Tolerance:   c.Run.Tolerance,
		MinStep:     c.Run.MinStep,
		MaxStep:     c.Run.MaxStep,
		Record:      c.Run.Record,
		StartValues: c.Run.StartValues,
		Integrator:  integ,
	}, nil
}

// Template is the starting point written by config-init.
const Template = `# fmulab run description.
# Exactly one of fmu / model must be set.
fmu: model.fmu
# model: bouncing_ball

# cs drives the model's own solver, me integrates it externally.
mode: cs

run:
  stop: 10.0
  step: 0.01
  # integrator applies in me mode: euler, rk4 or rk45.
  integrator: rk4
  record: []
  start_values: {}

# Uncomment to sweep start values over a grid.
# sweep:
#   mode: product
#   params:
#     - name: k
#       values: [1.0, 2.0, 4.0]

batch:
  workers: 0
  fail_fast: false

output:
  dir: runs
  format: csv
`

// WriteTemplate writes the annotated starter config, refusing to clobber an
// existing file.
func WriteTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists", path)
	}
	return os.WriteFile(path, []byte(Template), 0o644)
}
