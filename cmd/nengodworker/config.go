package main

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the YAML run configuration for one worker process (SPEC_FULL.md
// §10: "dt/seed/barrier-period/flush-every/merged-mode/peer table"). Every
// field has an equivalent command-line flag; flags override whatever a
// loaded config file sets, since PersistentPreRunE applies the file first.
type Config struct {
	Rank          int      `yaml:"rank"`
	NProcs        int      `yaml:"nprocs"`
	Peers         []string `yaml:"peers"`
	Dt            float64  `yaml:"dt"`
	Seed          int64    `yaml:"seed"`
	Merged        bool     `yaml:"merged"`
	BarrierPeriod int      `yaml:"barrier_period"`
	FlushEvery    int      `yaml:"flush_every"`
	SinkPath      string   `yaml:"sink_path"`
	LogLevel      string   `yaml:"log_level"`
}

// loadConfig reads and strictly parses a YAML config file, rejecting unknown
// fields so a typo'd key fails loudly instead of silently defaulting
// (grounded on roach88-nysm's harness.LoadScenario).
func loadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "nengodworker: read config")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrap(err, "nengodworker: parse config")
	}
	return cfg, nil
}
