// Package config handles atomvm.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
)

// Config represents an atomvm.toml runtime configuration.
type Config struct {
	Runtime   Runtime   `toml:"runtime"`
	CrashDump CrashDump `toml:"crashdump"`
	Log       Log       `toml:"log"`

	// Dir is the directory containing the atomvm.toml file (set at load
	// time).
	Dir string `toml:"-"`
}

// Runtime tunes the process runtime.
type Runtime struct {
	// DefaultHeapSize is the initial heap of new processes, in words.
	DefaultHeapSize int `toml:"default-heap-size"`

	// MinHeapSize bounds heap shrinking, in words.
	MinHeapSize int `toml:"min-heap-size"`

	// MaxHeapSize caps process heaps, in words. Zero means unbounded.
	MaxHeapSize int `toml:"max-heap-size"`

	// Schedulers is the number of scheduler threads.
	Schedulers int `toml:"schedulers"`
}

// CrashDump configures the crash-dump store.
type CrashDump struct {
	// Path of the SQLite database; empty disables crash recording.
	Path string `toml:"path"`
}

// Log configures runtime logging.
type Log struct {
	// Verbosity as understood by commonlog: 0 is quiet, higher is noisier.
	Verbosity int `toml:"verbosity"`

	// Path of the log file; empty logs to stderr.
	Path string `toml:"path"`
}

// Load parses an atomvm.toml file from the given directory. A missing
// file yields the defaults.
func Load(dir string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(dir, "atomvm.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.Dir = dir
			return cfg, nil
		}
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	cfg.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Runtime: Runtime{
			DefaultHeapSize: 128,
			Schedulers:      1,
		},
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Runtime.DefaultHeapSize <= 0 {
		cfg.Runtime.DefaultHeapSize = 128
	}
	if cfg.Runtime.Schedulers <= 0 {
		cfg.Runtime.Schedulers = 1
	}
}

// ConfigureLogging applies the log section to the commonlog backend.
func (cfg *Config) ConfigureLogging() {
	var path *string
	if cfg.Log.Path != "" {
		path = &cfg.Log.Path
	}
	commonlog.Configure(cfg.Log.Verbosity, path)
}
