// Package config describes a simulated platform: the chip, the polling
// timeouts and the engine feature switches. Descriptions are read from
// YAML or TOML files and can be overridden from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/grengine/gpusim"
	"github.com/sarchlab/grengine/gr"
	"github.com/sarchlab/grengine/poll"
)

// Environment variables LoadEnv applies.
const (
	EnvIdleTimeout = "GRENGINE_IDLE_TIMEOUT"
	EnvCyclestats  = "GRENGINE_CYCLESTATS"
	EnvVPR         = "GRENGINE_VPR"
	EnvElcgMode    = "GRENGINE_ELCG_MODE"
)

// ErrUnknownFormat is returned for files that are neither YAML nor TOML.
var ErrUnknownFormat = errors.New("config: unknown file format")

// Timeouts bound every polling loop of the engine.
type Timeouts struct {
	IdleTimeout       time.Duration `yaml:"idle_timeout" toml:"idle_timeout"`
	IdleCheckDelayMin time.Duration `yaml:"idle_check_delay_min" toml:"idle_check_delay_min"`
	IdleCheckDelayMax time.Duration `yaml:"idle_check_delay_max" toml:"idle_check_delay_max"`
}

// Features are the engine switches in their file form.
type Features struct {
	Cyclestats      bool   `yaml:"cyclestats" toml:"cyclestats"`
	VPR             bool   `yaml:"vpr" toml:"vpr"`
	Timeslice       bool   `yaml:"timeslice" toml:"timeslice"`
	ElcgMode        string `yaml:"elcg_mode" toml:"elcg_mode"`
	MaxComptagMemMB uint32 `yaml:"max_comptag_mem_mb" toml:"max_comptag_mem_mb"`
}

// Memory sizes the simulated video memory.
type Memory struct {
	CapacityMB  uint64 `yaml:"capacity_mb" toml:"capacity_mb"`
	ProtectedMB uint64 `yaml:"protected_mb" toml:"protected_mb"`
}

// Config is everything needed to build a platform.
type Config struct {
	Chip     gpusim.Chip `yaml:"chip" toml:"chip"`
	Timeouts Timeouts    `yaml:"timeouts" toml:"timeouts"`
	Features Features    `yaml:"features" toml:"features"`
	Memory   Memory      `yaml:"memory" toml:"memory"`
	Channels int         `yaml:"channels" toml:"channels"`
}

// Default describes a gk20a board.
func Default() *Config {
	p := poll.DefaultConfig()
	f := gr.DefaultFeatures()

	return &Config{
		Chip: gpusim.Gk20a(),
		Timeouts: Timeouts{
			IdleTimeout:       p.Timeout,
			IdleCheckDelayMin: p.MinDelay,
			IdleCheckDelayMax: p.MaxDelay,
		},
		Features: Features{
			Cyclestats:      f.Cyclestats,
			VPR:             f.VPR,
			Timeslice:       f.Timeslice,
			ElcgMode:        f.ElcgMode.String(),
			MaxComptagMemMB: f.MaxComptagMemMB,
		},
		Memory: Memory{
			CapacityMB: 128,
		},
		Channels: 128,
	}
}

// Load reads a description on top of the defaults. The extension picks the
// format: .yaml and .yml for YAML, .toml for TOML. Keys missing from the
// file keep their default values.
func Load(path string) (*Config, error) {
	c := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.DecodeFile(path, c); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return c, nil
}

// LoadEnv applies the GRENGINE_* overrides. Values come from the process
// environment first and from the dotenv file second; a missing dotenv file
// is not an error. An empty path skips the file.
func (c *Config) LoadEnv(dotenv string) error {
	fileVars := map[string]string{}

	if dotenv != "" {
		vars, err := godotenv.Read(dotenv)
		switch {
		case err == nil:
			fileVars = vars
		case errors.Is(err, os.ErrNotExist):
		default:
			return fmt.Errorf("config %s: %w", dotenv, err)
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}

		v, ok := fileVars[key]

		return v, ok
	}

	if v, ok := lookup(EnvIdleTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvIdleTimeout, err)
		}

		c.Timeouts.IdleTimeout = d
	}

	if v, ok := lookup(EnvCyclestats); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCyclestats, err)
		}

		c.Features.Cyclestats = b
	}

	if v, ok := lookup(EnvVPR); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvVPR, err)
		}

		c.Features.VPR = b
	}

	if v, ok := lookup(EnvElcgMode); ok {
		if _, err := gr.ParseElcgMode(v); err != nil {
			return fmt.Errorf("%s: %w", EnvElcgMode, err)
		}

		c.Features.ElcgMode = v
	}

	return nil
}

// Validate checks the description.
func (c *Config) Validate() error {
	if err := c.Chip.Validate(); err != nil {
		return err
	}

	t := c.Timeouts
	if t.IdleTimeout <= 0 || t.IdleCheckDelayMin <= 0 ||
		t.IdleCheckDelayMax < t.IdleCheckDelayMin {
		return fmt.Errorf("invalid timeouts %+v", t)
	}

	if _, err := gr.ParseElcgMode(c.Features.ElcgMode); err != nil {
		return err
	}

	if c.Memory.CapacityMB == 0 {
		return errors.New("no video memory")
	}

	if c.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", c.Channels)
	}

	return nil
}

// PollConfig converts the timeouts.
func (c *Config) PollConfig() poll.Config {
	return poll.Config{
		Timeout:  c.Timeouts.IdleTimeout,
		MinDelay: c.Timeouts.IdleCheckDelayMin,
		MaxDelay: c.Timeouts.IdleCheckDelayMax,
	}
}

// GrFeatures converts the feature switches.
func (c *Config) GrFeatures() (gr.Features, error) {
	mode, err := gr.ParseElcgMode(c.Features.ElcgMode)
	if err != nil {
		return gr.Features{}, err
	}

	return gr.Features{
		Cyclestats:      c.Features.Cyclestats,
		VPR:             c.Features.VPR,
		Timeslice:       c.Features.Timeslice,
		ElcgMode:        mode,
		MaxComptagMemMB: c.Features.MaxComptagMemMB,
	}, nil
}

// PlatformBuilder returns a platform builder set up from the description.
func (c *Config) PlatformBuilder(logger *logrus.Logger) (gpusim.Builder, error) {
	if err := c.Validate(); err != nil {
		return gpusim.Builder{}, err
	}

	features, err := c.GrFeatures()
	if err != nil {
		return gpusim.Builder{}, err
	}

	return gpusim.MakeBuilder().
		WithChip(c.Chip).
		WithFeatures(features).
		WithPollConfig(c.PollConfig()).
		WithLogger(logger).
		WithMemory(c.Memory.CapacityMB<<20, c.Memory.ProtectedMB<<20).
		WithNumChannels(c.Channels), nil
}
