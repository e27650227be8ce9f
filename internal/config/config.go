package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"fedlocal/internal/common"
	"fedlocal/internal/device"
	"fedlocal/internal/optim"
)

const (
	defaultSGDMomentum     = 0.5
	defaultAdamWeightDecay = 1e-4
	defaultLogEvery        = 10
)

// Config captures the local training knobs shared by every client.
type Config struct {
	LocalEpochs  int      `yaml:"local_epochs"`
	BatchSize    int      `yaml:"batch_size"`
	Optimizer    string   `yaml:"optimizer"`
	LearningRate float64  `yaml:"learning_rate"`
	Momentum     *float64 `yaml:"momentum"`
	WeightDecay  *float64 `yaml:"weight_decay"`
	Verbose      bool     `yaml:"verbose"`
	LogEvery     int      `yaml:"log_every"`
	Seed         int64    `yaml:"seed"`
	Device       string   `yaml:"device"`
	MetricsDB    string   `yaml:"metrics_db"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	LocalEpochs  int
	BatchSize    int
	Optimizer    string
	LearningRate float64
	Verbose      bool
	Seed         int64
	Device       string
	MetricsDB    string
}

// Default returns the settings used when no file is supplied.
func Default() *Config {
	return &Config{
		LocalEpochs:  10,
		BatchSize:    10,
		Optimizer:    "sgd",
		LearningRate: 0.01,
		LogEvery:     defaultLogEvery,
		Device:       "cpu",
	}
}

// Load reads and validates a Config from YAML. Keys missing from the file
// keep their Default values; unknown keys are rejected.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML from r on top of Default.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.LocalEpochs > 0 {
		c.LocalEpochs = o.LocalEpochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.Optimizer != "" {
		c.Optimizer = o.Optimizer
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.Verbose {
		c.Verbose = true
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.Device != "" {
		c.Device = o.Device
	}
	if o.MetricsDB != "" {
		c.MetricsDB = o.MetricsDB
	}
}

// Validate verifies the config is runnable without modifying it. Every
// failure wraps common.ErrInvalidArgument.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", common.ErrInvalidArgument)
	}
	if c.LocalEpochs <= 0 {
		return fmt.Errorf("%w: local_epochs must be > 0 (got %d)", common.ErrInvalidArgument, c.LocalEpochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be > 0 (got %d)", common.ErrInvalidArgument, c.BatchSize)
	}
	if c.LearningRate <= 0 || math.IsNaN(c.LearningRate) || math.IsInf(c.LearningRate, 0) {
		return fmt.Errorf("%w: learning_rate must be > 0 (got %g)", common.ErrInvalidArgument, c.LearningRate)
	}
	if _, err := c.OptimizerSpec(); err != nil {
		return err
	}
	if _, err := device.Parse(c.Device); err != nil {
		return err
	}
	return nil
}

// LogInterval is the verbose progress cadence in batches. A non-positive
// log_every means the default of 10.
func (c *Config) LogInterval() int {
	if c.LogEvery <= 0 {
		return defaultLogEvery
	}
	return c.LogEvery
}

// OptimizerSpec builds the optimizer variant selected by the config.
// SGD defaults to momentum 0.5 and Adam to weight decay 1e-4 unless the
// file sets them.
func (c *Config) OptimizerSpec() (optim.Spec, error) {
	kind, err := optim.ParseKind(c.Optimizer)
	if err != nil {
		return nil, err
	}
	var spec optim.Spec
	switch kind {
	case optim.KindSGD:
		spec = optim.SGDSpec{
			LearningRate: c.LearningRate,
			Momentum:     valueOr(c.Momentum, defaultSGDMomentum),
			WeightDecay:  valueOr(c.WeightDecay, 0),
		}
	case optim.KindAdam:
		spec = optim.AdamSpec{
			LearningRate: c.LearningRate,
			WeightDecay:  valueOr(c.WeightDecay, defaultAdamWeightDecay),
		}
	}
	if _, err := optim.New(spec, nil); err != nil {
		return nil, err
	}
	return spec, nil
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
