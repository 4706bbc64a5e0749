// Package config loads editor settings from defaults, an optional YAML file,
// a .env file and LAYERKIT_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Fepozopo/layerkit/pkg/composite"
	"github.com/Fepozopo/layerkit/pkg/history"
	"github.com/Fepozopo/layerkit/pkg/logging"
	"github.com/Fepozopo/layerkit/pkg/session"
)

// DefaultFile is read from the working directory when LAYERKIT_CONFIG is unset.
const DefaultFile = "layerkit.yaml"

// DefaultRepo is the GitHub slug checked by the update command.
const DefaultRepo = "Fepozopo/layerkit"

type History struct {
	MaxUndo  int  `yaml:"max_undo"`
	MaxRedo  int  `yaml:"max_redo"`
	Compress bool `yaml:"compress"`
}

type Composite struct {
	Workers     int    `yaml:"workers"`
	Background  string `yaml:"background"`
	CheckerSize int    `yaml:"checker_size"`
}

type Log struct {
	Level string `yaml:"level"`
}

type Update struct {
	Repo string `yaml:"repo"`
}

// Config is the full settings tree.
type Config struct {
	History   History   `yaml:"history"`
	Composite Composite `yaml:"composite"`
	Log       Log       `yaml:"log"`
	Update    Update    `yaml:"update"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		History:   History{MaxUndo: history.DefaultMax, MaxRedo: history.DefaultMax},
		Composite: Composite{Background: "checkerboard", CheckerSize: 8},
		Log:       Log{Level: "warn"},
		Update:    Update{Repo: DefaultRepo},
	}
}

// Load builds a validated Config. A missing YAML or .env file is not an
// error; a malformed one is.
func Load() (Config, error) {
	cfg := Default()
	path := os.Getenv("LAYERKIT_CONFIG")
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := cfg.readFile(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || explicit {
			return Config{}, err
		}
	}
	// godotenv.Load never overrides variables already set in the process.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	logging.Logger().Debug("configuration loaded", "file", path, "max_undo", cfg.History.MaxUndo, "background", cfg.Composite.Background)
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	ints := []struct {
		key string
		dst *int
	}{
		{"LAYERKIT_MAX_UNDO", &c.History.MaxUndo},
		{"LAYERKIT_MAX_REDO", &c.History.MaxRedo},
		{"LAYERKIT_WORKERS", &c.Composite.Workers},
		{"LAYERKIT_CHECKER_SIZE", &c.Composite.CheckerSize},
	}
	for _, e := range ints {
		v, ok := os.LookupEnv(e.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", e.key, v)
		}
		*e.dst = n
	}
	if v := os.Getenv("LAYERKIT_COMPRESS_HISTORY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LAYERKIT_COMPRESS_HISTORY: invalid boolean %q", v)
		}
		c.History.Compress = b
	}
	if v := os.Getenv("LAYERKIT_BACKGROUND"); v != "" {
		c.Composite.Background = v
	}
	if v := os.Getenv("LAYERKIT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LAYERKIT_UPDATE_REPO"); v != "" {
		c.Update.Repo = v
	}
	return nil
}

// Validate rejects settings no session can run with.
func (c Config) Validate() error {
	if c.History.MaxUndo <= 0 || c.History.MaxRedo <= 0 {
		return fmt.Errorf("history bounds must be positive (max_undo=%d, max_redo=%d)", c.History.MaxUndo, c.History.MaxRedo)
	}
	if _, err := composite.ParseBackground(c.Composite.Background); err != nil {
		return err
	}
	if c.Composite.CheckerSize < 0 {
		return fmt.Errorf("checker_size must not be negative")
	}
	if c.Update.Repo != "" && strings.Count(c.Update.Repo, "/") != 1 {
		return fmt.Errorf("update repo %q is not owner/name", c.Update.Repo)
	}
	return nil
}

// CompositeOptions converts the composite section. Call after Validate.
func (c Config) CompositeOptions() composite.Options {
	bg, _ := composite.ParseBackground(c.Composite.Background)
	return composite.Options{
		Workers:     c.Composite.Workers,
		Background:  bg,
		CheckerSize: c.Composite.CheckerSize,
	}
}

// SessionOptions converts the history and composite sections.
func (c Config) SessionOptions() session.Options {
	return session.Options{
		MaxUndo:   c.History.MaxUndo,
		MaxRedo:   c.History.MaxRedo,
		Compress:  c.History.Compress,
		Composite: c.CompositeOptions(),
	}
}
