package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/stocknest/stocknest/internal/ledger"
)

type fakeSource struct {
	tenants []uuid.UUID
	drifts  map[uuid.UUID][]ledger.Drift
	scanned []uuid.UUID
}

func (f *fakeSource) TenantIDs(_ context.Context) ([]uuid.UUID, error) {
	return f.tenants, nil
}

func (f *fakeSource) Reconcile(_ context.Context, tenantID uuid.UUID) ([]ledger.Drift, error) {
	f.scanned = append(f.scanned, tenantID)
	return f.drifts[tenantID], nil
}

func reconcileTask(t *testing.T, payload ReconcilePayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(TaskLedgerReconcile, data)
}

func TestReconcileScansAllTenants(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	source := &fakeSource{
		tenants: []uuid.UUID{a, b},
		drifts: map[uuid.UUID][]ledger.Drift{
			b: {{ItemID: uuid.New(), LocationID: uuid.New(), OnHand: 5, MovementSum: 3, Delta: 2}},
		},
	}
	job := NewReconcileJob(source, nil)

	require.NoError(t, job.Handle(context.Background(), reconcileTask(t, ReconcilePayload{})))
	require.Equal(t, []uuid.UUID{a, b}, source.scanned)
}

func TestReconcileScopedToOneTenant(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	source := &fakeSource{tenants: []uuid.UUID{a, b}}
	job := NewReconcileJob(source, nil)

	require.NoError(t, job.Handle(context.Background(), reconcileTask(t, ReconcilePayload{TenantID: &b})))
	require.Equal(t, []uuid.UUID{b}, source.scanned)
}

func TestReconcileBadPayloadSkipsRetry(t *testing.T) {
	job := NewReconcileJob(&fakeSource{}, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskLedgerReconcile, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
