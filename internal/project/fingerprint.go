package project

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapflow/pkg/core"
)

type modelFingerprint struct {
	SQL string `yaml:"sql"`
}

// Fingerprints returns a digest of each adapter and model configuration,
// keyed by table name. The digest covers the canonical YAML form, so
// formatting changes in the source file do not count as changes.
func Fingerprints(cfg *core.ProjectConfig) (map[string]string, error) {
	out := make(map[string]string, len(cfg.Adapters)+len(cfg.Models))
	for i := range cfg.Adapters {
		a := &cfg.Adapters[i]
		sum, err := digest(adapterToFile(a))
		if err != nil {
			return nil, fmt.Errorf("failed to fingerprint adapter %s: %w", a.Name, err)
		}
		out[a.Name] = sum
	}
	for _, m := range cfg.Models {
		sum, err := digest(modelFingerprint{SQL: m.SQL})
		if err != nil {
			return nil, fmt.Errorf("failed to fingerprint model %s: %w", m.Name, err)
		}
		out[m.Name] = sum
	}
	return out, nil
}

func digest(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:]), nil
}

// adapterToFile converts an adapter back into its on-disk schema.
func adapterToFile(a *core.AdapterConfig) adapterFile {
	f := adapterFile{Connection: a.Connection}

	switch src := a.Source.(type) {
	case core.FileSource:
		f.Source = sourceFile{Type: string(core.SourceKindFile), File: &fileSource{Path: src.Path, Format: src.Format}}
	case core.DatabaseSource:
		f.Source = sourceFile{Type: string(core.SourceKindDatabase), Database: &databaseFile{Table: src.Table}}
	}

	if us := a.UpdateStrategy; us != nil {
		f.UpdateStrategy = &updateStrategyFile{Detection: us.Detection, TimestampFrom: us.TimestampFrom}
		if us.Range.Since != nil || us.Range.Until != nil {
			f.UpdateStrategy.Range = &rangeFile{Since: formatBound(us.Range.Since), Until: formatBound(us.Range.Until)}
		}
	}
	return f
}

func formatBound(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
