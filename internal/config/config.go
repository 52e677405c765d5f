// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads and saves the YAML description of a fit run.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/curioloop/dqed/dqed"
)

const (
	DefaultModel     = "expfit"
	DefaultTolerance = 1e-5
	DefaultMaxIter   = 100
	DefaultStoreDir  = ".dqed"
)

type Config struct {
	Model     string        `yaml:"model"`
	Start     []float64     `yaml:"start,omitempty"`
	Bounds    []BoundConfig `yaml:"bounds,omitempty"`
	Stop      StopConfig    `yaml:"stop"`
	TimeLimit float64       `yaml:"time_limit"`
	Verbose   bool          `yaml:"verbose"`
	StoreDir  string        `yaml:"store_dir"`
}

type StopConfig struct {
	FTol    float64 `yaml:"ftol"`
	DTol    float64 `yaml:"dtol"`
	XTol    float64 `yaml:"xtol"`
	SNTol   float64 `yaml:"sntol"`
	MaxIter int     `yaml:"max_iter"`
}

// BoundConfig is one box entry with nullable sides, so that a bare
// `- {}` element reads as an unbounded variable rather than a pin to zero.
type BoundConfig struct {
	Lower *float64 `yaml:"lower"`
	Upper *float64 `yaml:"upper"`
}

func DefaultConfig() *Config {
	return &Config{
		Model: DefaultModel,
		Stop: StopConfig{
			FTol:    DefaultTolerance,
			DTol:    DefaultTolerance,
			XTol:    DefaultTolerance,
			SNTol:   DefaultTolerance,
			MaxIter: DefaultMaxIter,
		},
		StoreDir: DefaultStoreDir,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Termination maps the stop section onto the solver tolerances. The time
// limit rounds up to the whole seconds the solver quota counts in, so any
// positive limit stays enforceable.
func (c *Config) Termination() dqed.Termination {
	quota := 0
	if c.TimeLimit > 0 {
		quota = int(math.Ceil(c.TimeLimit))
	}
	return dqed.Termination{
		FTolerance:      c.Stop.FTol,
		DTolerance:      c.Stop.DTol,
		XTolerance:      c.Stop.XTol,
		SNTolerance:     c.Stop.SNTol,
		MaxIterations:   c.Stop.MaxIter,
		MaxComputations: quota,
	}
}

// BoundList maps the nullable bound entries onto solver bounds, with an
// absent side marked NaN.
func (c *Config) BoundList() []dqed.Bound {
	if len(c.Bounds) == 0 {
		return nil
	}
	out := make([]dqed.Bound, len(c.Bounds))
	for i, b := range c.Bounds {
		lo, up := math.NaN(), math.NaN()
		if b.Lower != nil {
			lo = *b.Lower
		}
		if b.Upper != nil {
			up = *b.Upper
		}
		out[i] = dqed.Bound{Lower: lo, Upper: up}
	}
	return out
}

func (c *Config) Validate() error {
	if c.Model == "" {
		return errors.New("model name is required")
	}
	if c.Stop.FTol < 0 || c.Stop.DTol < 0 || c.Stop.XTol < 0 || c.Stop.SNTol < 0 {
		return errors.New("tolerances must not be negative")
	}
	if c.Stop.MaxIter < 0 {
		return errors.New("iteration limit must not be negative")
	}
	if c.TimeLimit < 0 {
		return errors.New("time limit must not be negative")
	}
	for i, b := range c.Bounds {
		if b.Lower != nil && b.Upper != nil && *b.Lower > *b.Upper {
			return fmt.Errorf("bound %d has lower %v above upper %v", i, *b.Lower, *b.Upper)
		}
	}
	return nil
}
