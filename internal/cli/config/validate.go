package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/leapstack-labs/leapflow/internal/state"
)

// OutputFormats are the accepted values of the output key.
var OutputFormats = []string{"auto", "text", "markdown", "json"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	dialect, err := state.ParseDialect(c.StateDriver)
	if err != nil {
		return err
	}
	if dialect == state.DialectPostgres && c.StateDSN == "" {
		return errors.New("state_dsn is required when state_driver is postgres")
	}
	if c.MaxParallel < 0 {
		return fmt.Errorf("max_parallel must not be negative, got %d", c.MaxParallel)
	}
	if c.WatchDebounce < 0 {
		return fmt.Errorf("watch_debounce must not be negative, got %s", c.WatchDebounce)
	}
	if !slices.Contains(OutputFormats, c.OutputFormat) {
		return fmt.Errorf("unknown output format %q (expected one of %v)", c.OutputFormat, OutputFormats)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// ValidateDirectories checks that the project directory exists.
func (c *Config) ValidateDirectories() error {
	info, err := os.Stat(c.ProjectDir)
	if os.IsNotExist(err) {
		return fmt.Errorf("project directory does not exist: %s\nHint: use --project-dir to point at a LeapFlow project", c.ProjectDir)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("project path is not a directory: %s", c.ProjectDir)
	}
	return nil
}

// StateBackend returns the state dialect and its DSN: the state file for
// SQLite, state_dsn for PostgreSQL.
func (c *Config) StateBackend() (state.Dialect, string, error) {
	dialect, err := state.ParseDialect(c.StateDriver)
	if err != nil {
		return "", "", err
	}
	if dialect == state.DialectPostgres {
		return dialect, c.StateDSN, nil
	}
	return dialect, c.StatePath, nil
}

// Level returns the log level. Verbose forces debug.
func (c *Config) Level() (slog.Level, error) {
	if c.Verbose {
		return slog.LevelDebug, nil
	}
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelWarn, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
