// Package ecoguardian - workflow.go
// The WorkflowRun model produced by every orchestration pattern.

package ecoguardian

import "time"

// WorkflowPattern names the execution discipline of a run.
type WorkflowPattern string

const (
	PatternParallel   WorkflowPattern = "parallel"
	PatternSequential WorkflowPattern = "sequential"
	PatternLoop       WorkflowPattern = "loop"
	PatternHybrid     WorkflowPattern = "hybrid"
)

// WorkflowStatus is the lifecycle state of a run.
type WorkflowStatus string

const (
	StatusPending   WorkflowStatus = "pending"
	StatusRunning   WorkflowStatus = "running"
	StatusCompleted WorkflowStatus = "completed"
	StatusFailed    WorkflowStatus = "failed"
)

// StageResult records one completed stage, in execution order.
type StageResult struct {
	Name        string            `json:"name"`
	AgentID     string            `json:"agent_id"`
	Input       string            `json:"input,omitempty"`
	Output      any               `json:"output,omitempty"`
	Evaluation  *EvaluationResult `json:"evaluation,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt time.Time         `json:"completed_at"`
}

// BranchFailure records an isolated failure: a parallel branch, a loop tick
// or one city's pipeline inside a hybrid run.
type BranchFailure struct {
	Input  string `json:"input"`
	Reason string `json:"reason"`
}

// CityRanking is one row of a parallel comparison, best score first.
type CityRanking struct {
	City   string  `json:"city"`
	Score  float64 `json:"score"`
	AQI    int     `json:"aqi"`
	Status string  `json:"status"`
}

// WorkflowRun is the result of one orchestration invocation. The coordinator
// owns it; message bodies stay on the bus and are referenced here by id.
type WorkflowRun struct {
	ID             string            `json:"id"`
	Pattern        WorkflowPattern   `json:"pattern"`
	Status         WorkflowStatus    `json:"status"`
	Stages         []StageResult     `json:"stages,omitempty"`
	MessageIDs     []string          `json:"message_ids,omitempty"`
	BranchFailures []BranchFailure   `json:"branch_failures,omitempty"`
	Rankings       []CityRanking     `json:"rankings,omitempty"`
	Iterations     int               `json:"iterations,omitempty"`
	FailedStage    string            `json:"failed_stage,omitempty"`
	Error          string            `json:"error,omitempty"`
	Coordination   *EvaluationResult `json:"coordination,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	CompletedAt    time.Time         `json:"completed_at"`
}

// Stage returns the named stage result, if present.
func (r *WorkflowRun) Stage(name string) (*StageResult, bool) {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			return &r.Stages[i], true
		}
	}
	return nil, false
}
