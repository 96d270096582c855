// Package project loads adapter and model declarations from a project directory.
//
// A project looks like:
//
//	leapflow.yaml
//	adapters/
//	    raw/users.yml        -> table raw_users
//	    order_items.yaml     -> table order_items
//	models/
//	    users.sql            -> table users
//	    marts/orders.sql     -> table marts_orders
//
// Table names derive from the path relative to adapters/ or models/ with the
// extension stripped and path separators replaced by underscores.
package project

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapflow/pkg/core"
)

// Default directory names inside a project.
const (
	DefaultAdaptersDir = "adapters"
	DefaultModelsDir   = "models"
)

// Options configures Load. Relative directories resolve against the project root.
type Options struct {
	AdaptersDir string
	ModelsDir   string
}

func (o Options) withDefaults() Options {
	if o.AdaptersDir == "" {
		o.AdaptersDir = DefaultAdaptersDir
	}
	if o.ModelsDir == "" {
		o.ModelsDir = DefaultModelsDir
	}
	return o
}

// LoadError reports a file that could not be loaded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// adapterFile is the on-disk schema of an adapter declaration.
type adapterFile struct {
	Connection     string              `yaml:"connection,omitempty"`
	Source         sourceFile          `yaml:"source"`
	UpdateStrategy *updateStrategyFile `yaml:"update_strategy,omitempty"`
}

type sourceFile struct {
	Type     string        `yaml:"type"`
	File     *fileSource   `yaml:"file,omitempty"`
	Database *databaseFile `yaml:"database,omitempty"`
}

type fileSource struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format,omitempty"`
}

type databaseFile struct {
	Table string `yaml:"table"`
}

type updateStrategyFile struct {
	Detection     string     `yaml:"detection,omitempty"`
	TimestampFrom string     `yaml:"timestamp_from,omitempty"`
	Range         *rangeFile `yaml:"range,omitempty"`
}

type rangeFile struct {
	Since string `yaml:"since,omitempty"`
	Until string `yaml:"until,omitempty"`
}

// Resolve returns dir joined to root unless dir is absolute.
func Resolve(root, dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}

// Load reads every adapter and model of the project rooted at root.
// Adapters and models are returned in lexical path order. Missing adapter or
// model directories are treated as empty.
func Load(root string, opts Options) (*core.ProjectConfig, error) {
	opts = opts.withDefaults()

	info, err := os.Stat(root)
	if err != nil {
		return nil, &LoadError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &LoadError{Path: root, Err: errors.New("project root is not a directory")}
	}

	cfg := &core.ProjectConfig{}

	adaptersDir := Resolve(root, opts.AdaptersDir)
	err = walkFiles(adaptersDir, []string{".yml", ".yaml"}, func(path, name string) error {
		adapter, err := loadAdapter(path, name)
		if err != nil {
			return &LoadError{Path: path, Err: err}
		}
		cfg.Adapters = append(cfg.Adapters, *adapter)
		return nil
	})
	if err != nil {
		return nil, err
	}

	modelsDir := Resolve(root, opts.ModelsDir)
	err = walkFiles(modelsDir, []string{".sql"}, func(path, name string) error {
		content, err := os.ReadFile(path) //nolint:gosec // G304: path comes from WalkDir under the project root
		if err != nil {
			return &LoadError{Path: path, Err: err}
		}
		cfg.Models = append(cfg.Models, core.ModelConfig{Name: name, FilePath: path, SQL: string(content)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// walkFiles calls fn for every file under dir with one of the extensions,
// passing the derived table name.
func walkFiles(dir string, exts []string, fn func(path, name string) error) error {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return &LoadError{Path: path, Err: walkErr}
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !hasExt(path, exts) {
			return nil
		}

		name, err := TableName(dir, path)
		if err != nil {
			return &LoadError{Path: path, Err: err}
		}
		return fn(path, name)
	})
}

func hasExt(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// TableName derives a table name from a file path relative to its base directory.
func TableName(baseDir, path string) (string, error) {
	rel, err := filepath.Rel(baseDir, path)
	if err != nil {
		return "", err
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	rel = filepath.ToSlash(rel)
	if rel == "" || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path is outside %s", baseDir)
	}
	return strings.ReplaceAll(rel, "/", "_"), nil
}

func loadAdapter(path, name string) (*core.AdapterConfig, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path comes from WalkDir under the project root
	if err != nil {
		return nil, err
	}

	var file adapterFile
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid adapter yaml: %w", err)
	}

	adapter := &core.AdapterConfig{
		Name:       name,
		FilePath:   path,
		Connection: file.Connection,
	}
	if adapter.Source, err = file.Source.toCore(); err != nil {
		return nil, err
	}
	if file.UpdateStrategy != nil {
		if adapter.UpdateStrategy, err = file.UpdateStrategy.toCore(); err != nil {
			return nil, err
		}
	}
	return adapter, nil
}

func (s sourceFile) toCore() (core.AdapterSource, error) {
	switch core.SourceKind(s.Type) {
	case core.SourceKindFile:
		if s.File == nil || s.File.Path == "" {
			return nil, errors.New("source type file requires source.file.path")
		}
		if s.Database != nil {
			return nil, errors.New("source type file cannot have source.database")
		}
		return core.FileSource{Path: s.File.Path, Format: s.File.Format}, nil
	case core.SourceKindDatabase:
		if s.Database == nil || s.Database.Table == "" {
			return nil, errors.New("source type database requires source.database.table")
		}
		if s.File != nil {
			return nil, errors.New("source type database cannot have source.file")
		}
		return core.DatabaseSource{Table: s.Database.Table}, nil
	case "":
		return nil, errors.New("source.type is required")
	default:
		return nil, fmt.Errorf("unknown source type %q (expected file or database)", s.Type)
	}
}

func (u *updateStrategyFile) toCore() (*core.UpdateStrategy, error) {
	us := &core.UpdateStrategy{Detection: u.Detection, TimestampFrom: u.TimestampFrom}
	if u.Range == nil {
		return us, nil
	}

	var err error
	if us.Range.Since, err = parseBound(u.Range.Since); err != nil {
		return nil, fmt.Errorf("update_strategy.range.since: %w", err)
	}
	if us.Range.Until, err = parseBound(u.Range.Until); err != nil {
		return nil, fmt.Errorf("update_strategy.range.until: %w", err)
	}
	if us.Range.Since != nil && us.Range.Until != nil && !us.Range.Since.Before(*us.Range.Until) {
		return nil, errors.New("update_strategy.range.since must be before until")
	}
	return us, nil
}

// parseBound accepts RFC 3339 timestamps and plain dates (UTC midnight).
func parseBound(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid timestamp %q (expected RFC 3339 or YYYY-MM-DD)", s)
}
