package dag

import (
	"fmt"
	"strings"
)

// CircularDependencyError reports a dependency cycle. Nodes lists the
// members of every cycle; Blocked lists nodes that could not be ordered
// only because they sit downstream of a cycle.
type CircularDependencyError struct {
	Nodes   []string
	Blocked []string
}

func (e *CircularDependencyError) Error() string {
	msg := "circular dependency detected between: " + strings.Join(e.Nodes, ", ")
	if len(e.Blocked) > 0 {
		msg += " (also blocks: " + strings.Join(e.Blocked, ", ") + ")"
	}
	return msg
}

// NonExistentTableReferenceError reports a model reading a table that no
// adapter or model produces.
type NonExistentTableReferenceError struct {
	ModelName string
	TableName string
}

func (e *NonExistentTableReferenceError) Error() string {
	return fmt.Sprintf("model %q references table %q which is not produced by any adapter or model",
		e.ModelName, e.TableName)
}

// SQLParseError wraps a failure to extract dependencies from a model.
type SQLParseError struct {
	ModelName string
	Message   string
	Err       error
}

func (e *SQLParseError) Error() string {
	return fmt.Sprintf("model %q: failed to parse SQL: %s", e.ModelName, e.Message)
}

func (e *SQLParseError) Unwrap() error {
	return e.Err
}

// DuplicateNodeError reports two adapters or models producing the same table.
type DuplicateNodeError struct {
	Name string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("duplicate table name %q: each adapter and model must produce a distinct table", e.Name)
}
