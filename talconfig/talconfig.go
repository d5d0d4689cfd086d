// Copyright 2024 The Talaria Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package talconfig reads the ambient configuration knobs: the
// TALARIA_* environment variables, layered over an optional on-disk
// config.toml default.
package talconfig

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config holds every ambient knob the core recognizes. The (out-of-scope)
// CLI collaborator may add its own flags on top, but never bypasses this
// struct - it is the single source of truth for ambient behavior.
type Config struct {
	// Home is TALARIA_HOME, the root of the on-disk layout.
	Home string `toml:"home"`
	// Threads is TALARIA_THREADS; 0 means "use runtime.NumCPU()".
	Threads int `toml:"threads"`
	// LogLevel is TALARIA_LOG.
	LogLevel string `toml:"log_level"`
	// DeadlockDetection is TALARIA_DEADLOCK_DETECTION.
	DeadlockDetection bool `toml:"deadlock_detection"`
	// DeadlockIntervalMS is TALARIA_DEADLOCK_INTERVAL_MS.
	DeadlockIntervalMS int `toml:"deadlock_interval_ms"`
}

// Default returns the zero-knob configuration: home under ~/.talaria, auto
// thread count, info logging, deadlock detection off.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		Home:               filepath.Join(home, ".talaria"),
		Threads:            0,
		LogLevel:           "info",
		DeadlockDetection:  false,
		DeadlockIntervalMS: 1000,
	}
}

// Load builds a Config by starting from Default, overlaying config.toml
// found under home (if present), then overlaying TALARIA_* environment
// variables, which always win.
func Load() (Config, error) {
	cfg := Default()

	// An explicit TALARIA_HOME changes where we look for config.toml, so
	// resolve it before reading the file.
	if home := os.Getenv("TALARIA_HOME"); home != "" {
		cfg.Home = home
	}

	tomlPath := filepath.Join(cfg.Home, "config.toml")
	if _, err := os.Stat(tomlPath); err == nil {
		if _, err := toml.DecodeFile(tomlPath, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "talconfig: decode %s", tomlPath)
		}
	}

	if home := os.Getenv("TALARIA_HOME"); home != "" {
		cfg.Home = home
	}
	if threads := os.Getenv("TALARIA_THREADS"); threads != "" {
		n, err := strconv.Atoi(threads)
		if err != nil {
			return cfg, errors.Wrap(err, "talconfig: TALARIA_THREADS")
		}
		cfg.Threads = n
	}
	if level := os.Getenv("TALARIA_LOG"); level != "" {
		cfg.LogLevel = level
	}
	if dd := os.Getenv("TALARIA_DEADLOCK_DETECTION"); dd != "" {
		b, err := strconv.ParseBool(dd)
		if err != nil {
			return cfg, errors.Wrap(err, "talconfig: TALARIA_DEADLOCK_DETECTION")
		}
		cfg.DeadlockDetection = b
	}
	if interval := os.Getenv("TALARIA_DEADLOCK_INTERVAL_MS"); interval != "" {
		n, err := strconv.Atoi(interval)
		if err != nil {
			return cfg, errors.Wrap(err, "talconfig: TALARIA_DEADLOCK_INTERVAL_MS")
		}
		cfg.DeadlockIntervalMS = n
	}
	return cfg, nil
}

// ParseLogLevel converts Config.LogLevel into a logrus.Level, defaulting
// to Info on an unrecognized value rather than failing startup over a
// typo'd log level.
func ParseLogLevel(s string) logrus.Level {
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// ChunksDir, SequencesDir, TaxonomyDir, WorkspacesDir and CheckpointsDir
// return the well-known subdirectories of Config.Home's on-disk layout.
func (c Config) ChunksDir() string      { return filepath.Join(c.Home, "chunks") }
func (c Config) SequencesDir() string   { return filepath.Join(c.Home, "sequences") }
func (c Config) TaxonomyDir() string    { return filepath.Join(c.Home, "taxonomy") }
func (c Config) WorkspacesDir() string  { return filepath.Join(c.Home, "workspaces") }
func (c Config) CheckpointsDir() string { return filepath.Join(c.Home, "checkpoints") }
func (c Config) DatabasesDir() string   { return c.Home }

// DatabaseDir returns the per-database root, e.g. <home>/<db_name>.
func (c Config) DatabaseDir(dbName string) string { return filepath.Join(c.Home, dbName) }
