// Package config provides configuration management for the LeapFlow CLI.
package config

import (
	"time"

	"github.com/leapstack-labs/leapflow/internal/project"
)

// Config holds all CLI configuration options.
type Config struct {
	ProjectDir    string        `koanf:"project_dir"`
	AdaptersDir   string        `koanf:"adapters_dir"`
	ModelsDir     string        `koanf:"models_dir"`
	StateDriver   string        `koanf:"state_driver"`
	StatePath     string        `koanf:"state_path"`
	StateDSN      string        `koanf:"state_dsn"`
	DeltaDir      string        `koanf:"delta_dir"`
	MaxParallel   int           `koanf:"max_parallel"`
	WatchDebounce time.Duration `koanf:"watch_debounce"`
	LogLevel      string        `koanf:"log_level"`
	Verbose       bool          `koanf:"verbose"`
	OutputFormat  string        `koanf:"output"`

	// ConfigFile is the file the configuration was read from, if any.
	ConfigFile string `koanf:"-"`
}

// Default configuration values.
const (
	DefaultAdaptersDir   = project.DefaultAdaptersDir
	DefaultModelsDir     = project.DefaultModelsDir
	DefaultStateDriver   = "sqlite"
	DefaultStateFile     = ".leapflow/state.db"
	DefaultDeltaDir      = ".leapflow/deltas"
	DefaultWatchDebounce = project.DefaultDebounce
	DefaultLogLevel      = "warn"
	DefaultOutput        = "auto" // Auto-detect: TTY=text, non-TTY=markdown
)

// ConfigFileNames are the file names searched for in the project root.
var ConfigFileNames = []string{"leapflow.yaml", "leapflow.yml"}

// Defaults returns a configuration holding only default values.
func Defaults() *Config {
	return &Config{
		ProjectDir:    ".",
		AdaptersDir:   DefaultAdaptersDir,
		ModelsDir:     DefaultModelsDir,
		StateDriver:   DefaultStateDriver,
		StatePath:     DefaultStateFile,
		DeltaDir:      DefaultDeltaDir,
		WatchDebounce: DefaultWatchDebounce,
		LogLevel:      DefaultLogLevel,
		OutputFormat:  DefaultOutput,
	}
}
