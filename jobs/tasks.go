package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerReconcile is the task type for the ledger drift scan.
	TaskLedgerReconcile = "ledger:reconcile"
)

// ReconcilePayload scopes a reconciliation run. A nil tenant id means every
// tenant with inventory.
type ReconcilePayload struct {
	TenantID *uuid.UUID `json:"tenant_id,omitempty"`
}

// NewLedgerReconcileTask constructs an Asynq task.
func NewLedgerReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcile, data), nil
}
