package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapflow/internal/state"
)

func writeConfig(t *testing.T, content string) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "leapflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return dir, path
}

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config", "", "")
	flags.String("project-dir", "", "")
	flags.String("models-dir", "", "")
	flags.String("state", "", "")
	flags.Int("max-parallel", 0, "")
	flags.BoolP("verbose", "v", false, "")
	flags.StringP("output", "o", "", "")
	return flags
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	flags := newFlags()
	require.NoError(t, flags.Set("project-dir", dir))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ProjectDir)
	assert.Equal(t, filepath.Join(dir, "adapters"), cfg.AdaptersDir)
	assert.Equal(t, filepath.Join(dir, "models"), cfg.ModelsDir)
	assert.Equal(t, filepath.Join(dir, ".leapflow", "state.db"), cfg.StatePath)
	assert.Equal(t, filepath.Join(dir, ".leapflow", "deltas"), cfg.DeltaDir)
	assert.Equal(t, "sqlite", cfg.StateDriver)
	assert.Equal(t, DefaultWatchDebounce, cfg.WatchDebounce)
	assert.Equal(t, "auto", cfg.OutputFormat)
	assert.Empty(t, cfg.ConfigFile)
}

func TestLoad_File(t *testing.T) {
	dir, path := writeConfig(t, `models_dir: sql
state_path: state/leapflow.db
max_parallel: 4
watch_debounce: 750ms
log_level: info
output: json
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ProjectDir)
	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, filepath.Join(dir, "sql"), cfg.ModelsDir)
	assert.Equal(t, filepath.Join(dir, "state", "leapflow.db"), cfg.StatePath)
	assert.Equal(t, 4, cfg.MaxParallel)
	assert.Equal(t, 750*time.Millisecond, cfg.WatchDebounce)
	assert.Equal(t, "json", cfg.OutputFormat)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoad_FileFoundInProjectDir(t *testing.T) {
	dir, path := writeConfig(t, "max_parallel: 2\n")
	flags := newFlags()
	require.NoError(t, flags.Set("project-dir", dir))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, 2, cfg.MaxParallel)
}

func TestLoad_ProjectDirFromFile(t *testing.T) {
	dir, path := writeConfig(t, "project_dir: pipelines\n")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "pipelines"), cfg.ProjectDir)
	assert.Equal(t, filepath.Join(dir, "pipelines", "models"), cfg.ModelsDir)
}

func TestLoad_FlagPrecedence(t *testing.T) {
	_, path := writeConfig(t, "max_parallel: 2\n")
	t.Setenv("LEAPFLOW_MAX_PARALLEL", "3")

	flags := newFlags()
	require.NoError(t, flags.Set("max-parallel", "5"))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxParallel, "flag value should override config file and env var")
}

func TestLoad_EnvPrecedenceOverFile(t *testing.T) {
	dir, path := writeConfig(t, "models_dir: from_file\nwatch_debounce: 1s\n")
	t.Setenv("LEAPFLOW_MODELS_DIR", "from_env")
	t.Setenv("LEAPFLOW_WATCH_DEBOUNCE", "50ms")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "from_env"), cfg.ModelsDir, "env var should override config file")
	assert.Equal(t, 50*time.Millisecond, cfg.WatchDebounce)
}

func TestLoad_FlagNotSetUsesEnv(t *testing.T) {
	_, path := writeConfig(t, "max_parallel: 2\n")
	t.Setenv("LEAPFLOW_MAX_PARALLEL", "3")

	cfg, err := Load(path, newFlags())
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxParallel, "env var should be used when flag is not set")
}

func TestLoad_PathFlagsAreRelativeToWorkingDirectory(t *testing.T) {
	dir, path := writeConfig(t, "")
	flags := newFlags()
	require.NoError(t, flags.Set("models-dir", "elsewhere/models"))
	require.NoError(t, flags.Set("state", "state.db"))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "elsewhere", "models"), cfg.ModelsDir)
	assert.Equal(t, filepath.Join(cwd, "state.db"), cfg.StatePath)
	assert.Equal(t, filepath.Join(dir, "adapters"), cfg.AdaptersDir)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		errSubstr string
	}{
		{"bad driver", "state_driver: mysql\n", "unsupported state driver"},
		{"postgres without dsn", "state_driver: postgres\n", "state_dsn is required"},
		{"negative parallelism", "max_parallel: -1\n", "max_parallel"},
		{"bad output", "output: html\n", "unknown output format"},
		{"bad log level", "log_level: loud\n", "invalid log_level"},
		{"bad duration", "watch_debounce: soon\n", "decode"},
		{"bad yaml", "models_dir: [\n", "error reading config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, path := writeConfig(t, tt.content)
			_, err := Load(path, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestConfig_StateBackend(t *testing.T) {
	cfg := Defaults()
	cfg.StatePath = "/tmp/state.db"

	dialect, dsn, err := cfg.StateBackend()
	require.NoError(t, err)
	assert.Equal(t, state.DialectSQLite, dialect)
	assert.Equal(t, "/tmp/state.db", dsn)

	cfg.StateDriver = "postgresql"
	cfg.StateDSN = "postgres://localhost/leapflow"
	dialect, dsn, err = cfg.StateBackend()
	require.NoError(t, err)
	assert.Equal(t, state.DialectPostgres, dialect)
	assert.Equal(t, "postgres://localhost/leapflow", dsn)
}

func TestConfig_Level(t *testing.T) {
	cfg := Defaults()
	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	cfg.Verbose = true
	level, err = cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, Defaults(), FromContext(ctx))
	assert.NotNil(t, GetLogger(ctx))

	cfg := &Config{ProjectDir: "/p"}
	ctx = WithConfig(ctx, cfg)
	assert.Same(t, cfg, FromContext(ctx))

	logger := slog.New(slog.DiscardHandler)
	ctx = WithLogger(ctx, logger)
	assert.Same(t, logger, GetLogger(ctx))
}
