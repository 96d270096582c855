package core

import "time"

// NodeKind distinguishes table-producing units in the dependency graph.
type NodeKind string

// Node kind constants.
const (
	NodeKindAdapter NodeKind = "adapter"
	NodeKindModel   NodeKind = "model"
)

// SourceKind identifies the variant held by an AdapterSource.
type SourceKind string

// Source kind constants.
const (
	SourceKindFile     SourceKind = "file"
	SourceKindDatabase SourceKind = "database"
)

// AdapterSource is where an adapter reads its data from.
// It is a closed sum type: the only implementations are FileSource and DatabaseSource.
// Consumers switch on the concrete type.
type AdapterSource interface {
	Kind() SourceKind
	isAdapterSource()
}

// FileSource reads files (local paths or object-store URLs).
type FileSource struct {
	// Path may contain glob patterns.
	Path string
	// Format is the file format (parquet, csv, json).
	Format string
}

// Kind implements AdapterSource.
func (FileSource) Kind() SourceKind { return SourceKindFile }

func (FileSource) isAdapterSource() {}

// DatabaseSource reads a table of a remote database.
type DatabaseSource struct {
	// Table is the (optionally schema-qualified) remote table name.
	Table string
}

// Kind implements AdapterSource.
func (DatabaseSource) Kind() SourceKind { return SourceKindDatabase }

func (DatabaseSource) isAdapterSource() {}

// RangeConfig holds the lifetime bounds an incremental adapter may load.
// A nil bound means the adapter is always fully reloaded.
type RangeConfig struct {
	Since *time.Time
	Until *time.Time
}

// UpdateStrategy configures incremental loading for an adapter.
type UpdateStrategy struct {
	// Detection is the change detection mode (e.g. "timestamp").
	Detection string
	// TimestampFrom is the source column carrying the row timestamp.
	TimestampFrom string
	Range         RangeConfig
}

// AdapterConfig declares a data source. Adapters are leaves of the graph.
type AdapterConfig struct {
	// Name is the table name, derived from the config file path.
	Name string
	// FilePath is the config file the adapter was loaded from (empty when built in code).
	FilePath       string
	Connection     string
	Source         AdapterSource
	UpdateStrategy *UpdateStrategy
}

// IsIncremental reports whether the adapter declares an update strategy.
func (a *AdapterConfig) IsIncremental() bool {
	return a != nil && a.UpdateStrategy != nil
}

// ModelConfig declares a SQL transformation.
type ModelConfig struct {
	// Name is the table name, derived from the SQL file path.
	Name     string
	FilePath string
	SQL      string
}

// ProjectConfig is the full set of declared adapters and models.
// Order is significant: it is the insertion order of graph nodes.
type ProjectConfig struct {
	Adapters []AdapterConfig
	Models   []ModelConfig
}

// Adapter returns the adapter with the given name.
func (p *ProjectConfig) Adapter(name string) (*AdapterConfig, bool) {
	for i := range p.Adapters {
		if p.Adapters[i].Name == name {
			return &p.Adapters[i], true
		}
	}
	return nil, false
}

// Model returns the model with the given name.
func (p *ProjectConfig) Model(name string) (*ModelConfig, bool) {
	for i := range p.Models {
		if p.Models[i].Name == name {
			return &p.Models[i], true
		}
	}
	return nil, false
}
