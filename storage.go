// Package ecoguardian - storage.go
// Durable archive for workflow runs, bus logs and memory snapshots. The
// coordinator works entirely in memory; an archive is optional and attached
// by the host.

package ecoguardian

// Storage persists finished runs, their message logs and bank snapshots.
// Rows hold the artifacts as JSON documents, so both backends share one
// schema shape.
type Storage interface {
	SaveRun(run *WorkflowRun) error
	GetRun(runID string) (*WorkflowRun, error)
	ListRuns(limit int) ([]*WorkflowRun, error)

	SaveMessages(runID string, msgs []*AgentMessage) error
	LoadMessages(runID string) ([]*AgentMessage, error)

	SaveBankSnapshot(name string, snap *BankSnapshot) error
	LoadBankSnapshot(name string) (*BankSnapshot, error)

	Close() error
}
