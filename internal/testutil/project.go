// Package testutil provides fixture projects and loggers shared by package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// OrdersProject is a small project with two adapters and two models:
// raw_users -> users -> orders <- order_items.
var OrdersProject = map[string]string{
	"adapters/raw/users.yml": `connection: local
source:
  type: file
  file:
    path: data/users.csv
    format: csv
`,
	"adapters/order_items.yml": `connection: warehouse
source:
  type: database
  database:
    table: public.order_items
update_strategy:
  detection: timestamp
  timestamp_from: updated_at
  range:
    since: 2024-01-01
    until: 2024-12-31
`,
	"models/users.sql":  "SELECT id, name FROM raw_users\n",
	"models/orders.sql": "SELECT o.*, u.name FROM order_items o JOIN users u ON o.user_id = u.id\n",
}

// WriteProject writes files (relative path -> content) into a fresh temp
// directory and returns its path.
func WriteProject(t testing.TB, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		WriteFile(t, root, rel, content)
	}
	return root
}

// WriteFile writes one file below root, creating parent directories.
func WriteFile(t testing.TB, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", rel, err)
	}
}
