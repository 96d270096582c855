package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "LEAPFLOW_"

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// pathFlags are flags holding paths. Values given on the command line are
// relative to the working directory, not to the project root.
var pathFlags = map[string]string{
	"adapters-dir": "adapters_dir",
	"models-dir":   "models_dir",
	"state":        "state_path",
	"delta-dir":    "delta_dir",
}

// configExistsIn returns the config file in dir, if any.
func configExistsIn(dir string) string {
	for _, name := range ConfigFileNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findProjectRootUpward searches upward from startDir for a leapflow config file.
// Returns empty string if not found within maxUpwardSearchLevels.
func findProjectRootUpward(startDir string) string {
	dir := startDir
	for range maxUpwardSearchLevels {
		if configExistsIn(dir) != "" {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// inferProjectRoot determines the project root.
// Priority:
//  1. Explicit --project-dir flag
//  2. Directory of an explicit config file
//  3. Search upward from CWD for leapflow.yaml
//  4. Current working directory
func inferProjectRoot(cfgFile string, flags *pflag.FlagSet) string {
	if flags != nil && flags.Changed("project-dir") {
		if projectDir, _ := flags.GetString("project-dir"); projectDir != "" {
			return absPath(projectDir)
		}
	}

	if cfgFile != "" {
		return filepath.Dir(absPath(cfgFile))
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	if root := findProjectRootUpward(cwd); root != "" {
		return root
	}
	return cwd
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) || path == ":memory:" {
		return path
	}
	return filepath.Join(baseDir, path)
}

// Load loads configuration from defaults, the config file, environment
// variables and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	projectRoot := inferProjectRoot(cfgFile, flags)

	// Path flags are resolved against CWD up front so that the project-root
	// resolution below leaves them alone.
	flagPaths := make(map[string]string)
	if flags != nil {
		for name, key := range pathFlags {
			if f := flags.Lookup(name); f != nil && f.Changed && f.Value.String() != "" {
				flagPaths[key] = absPath(f.Value.String())
			}
		}
	}

	// 1. Load defaults
	defaults := Defaults()
	if err := k.Load(confmap.Provider(map[string]any{
		"adapters_dir":   defaults.AdaptersDir,
		"models_dir":     defaults.ModelsDir,
		"state_driver":   defaults.StateDriver,
		"state_path":     defaults.StatePath,
		"delta_dir":      defaults.DeltaDir,
		"max_parallel":   0,
		"watch_debounce": defaults.WatchDebounce.String(),
		"log_level":      defaults.LogLevel,
		"verbose":        false,
		"output":         defaults.OutputFormat,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	configFile := cfgFile
	if configFile == "" {
		configFile = configExistsIn(projectRoot)
	}
	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	// 3. Load environment variables
	// Transform: LEAPFLOW_MODELS_DIR -> models_dir
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if key == "state" {
				return "state_path", posflag.FlagVal(flags, f)
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
			WeaklyTypedInput: true,
			Result:           &cfg,
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Resolve paths. A project_dir from the file or env is relative to the
	// inferred root; other paths are relative to the project dir.
	if flags == nil || !flags.Changed("project-dir") {
		cfg.ProjectDir = resolvePathRelativeTo(cfg.ProjectDir, projectRoot)
	}
	if cfg.ProjectDir == "" {
		cfg.ProjectDir = projectRoot
	}
	cfg.ProjectDir = absPath(cfg.ProjectDir)

	cfg.AdaptersDir = resolvePathRelativeTo(cfg.AdaptersDir, cfg.ProjectDir)
	cfg.ModelsDir = resolvePathRelativeTo(cfg.ModelsDir, cfg.ProjectDir)
	cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, cfg.ProjectDir)
	cfg.DeltaDir = resolvePathRelativeTo(cfg.DeltaDir, cfg.ProjectDir)
	for key, path := range flagPaths {
		switch key {
		case "adapters_dir":
			cfg.AdaptersDir = path
		case "models_dir":
			cfg.ModelsDir = path
		case "state_path":
			cfg.StatePath = path
		case "delta_dir":
			cfg.DeltaDir = path
		}
	}

	if configFile != "" {
		cfg.ConfigFile = absPath(configFile)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
