// Package core defines the shared language of the LeapFlow system.
//
// This package contains:
//   - Project configuration entities (AdapterConfig, ModelConfig, ProjectConfig)
//   - Scheduling entities (Action, TimeRange, Pipeline, ExecutedRange)
//   - Persisted records (Generation, PipelineRun, PipelineAction, DeltaMetadata)
//   - The Store interface implemented by internal/state
//
// The Golden Rule: pkg/core imports ONLY the standard library.
// All other packages depend on core, not the reverse.
package core
