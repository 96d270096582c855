package output

import "time"

// JSON output structures. Field names are stable for scripting.

// GraphNode is one node of the graph output.
type GraphNode struct {
	Name      string   `json:"name"`
	Kind      string   `json:"kind"`
	DependsOn []string `json:"depends_on,omitempty"`
	UsedBy    []string `json:"used_by,omitempty"`
}

// GraphLevel groups the nodes of one execution level.
type GraphLevel struct {
	Level int         `json:"level"`
	Nodes []GraphNode `json:"nodes"`
}

// GraphOutput is the JSON output of the graph command.
type GraphOutput struct {
	Levels     []GraphLevel `json:"levels"`
	TotalNodes int          `json:"total_nodes"`
	TotalEdges int          `json:"total_edges"`
}

// ChangesOutput describes graph changes.
type ChangesOutput struct {
	AddedNodes         []string `json:"added_nodes"`
	RemovedNodes       []string `json:"removed_nodes"`
	AddedEdges         []string `json:"added_edges"`
	RemovedEdges       []string `json:"removed_edges"`
	ConfigChangedNodes []string `json:"config_changed_nodes"`
}

// MigrateOutput is the JSON output of the migrate command.
type MigrateOutput struct {
	GenerationID int64          `json:"generation_id"`
	Created      bool           `json:"created"`
	Changes      *ChangesOutput `json:"changes,omitempty"`
	Affected     []string       `json:"affected"`
}

// ImpactOutput is the JSON output of the impact command.
type ImpactOutput struct {
	GenerationID int64          `json:"generation_id,omitempty"`
	Changes      *ChangesOutput `json:"changes,omitempty"`
	Affected     []string       `json:"affected"`
}

// PlanAction is one scheduled action.
type PlanAction struct {
	Table string     `json:"table"`
	Since *time.Time `json:"since,omitempty"`
	Until *time.Time `json:"until,omitempty"`
}

// PlanOutput is the JSON output of the plan command.
type PlanOutput struct {
	GenerationID int64          `json:"generation_id"`
	PipelineID   int64          `json:"pipeline_id,omitempty"`
	Levels       [][]PlanAction `json:"levels"`
}

// ActionStatus is one action of a pipeline.
type ActionStatus struct {
	ID          int64      `json:"id"`
	Table       string     `json:"table"`
	Level       int        `json:"level"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Since       *time.Time `json:"since,omitempty"`
	Until       *time.Time `json:"until,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// PipelineStatus is a pipeline with optional actions.
type PipelineStatus struct {
	ID           int64          `json:"id"`
	GenerationID int64          `json:"generation_id"`
	Status       string         `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Actions      []ActionStatus `json:"actions,omitempty"`
}
