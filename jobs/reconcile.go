package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/stocknest/stocknest/internal/ledger"
)

// LedgerSource is the slice of the ledger repository the scan needs.
type LedgerSource interface {
	TenantIDs(ctx context.Context) ([]uuid.UUID, error)
	Reconcile(ctx context.Context, tenantID uuid.UUID) ([]ledger.Drift, error)
}

// ReconcileJob walks every tenant's ledger and reports rows whose stored
// balance disagrees with the movement sum. It only reports; fixing drift is
// a manual adjustment after someone has looked at it.
type ReconcileJob struct {
	Source LedgerSource
	Logger *slog.Logger
	clock  func() time.Time
}

// NewReconcileJob initialises the reconciliation handler.
func NewReconcileJob(source LedgerSource, logger *slog.Logger) *ReconcileJob {
	return &ReconcileJob{
		Source: source,
		Logger: logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the drift scan.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil {
		return errors.New("ledger reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	logger := j.logger()
	logger.Info("starting ledger reconciliation")

	tenants, err := j.tenants(ctx, payload)
	if err != nil {
		logger.Error("list tenants", slog.Any("error", err))
		return err
	}

	var drifted int
	for _, tenantID := range tenants {
		drifts, err := j.Source.Reconcile(ctx, tenantID)
		if err != nil {
			logger.Error("reconcile tenant failed",
				slog.String("tenant_id", tenantID.String()),
				slog.Any("error", err),
			)
			return err
		}
		for _, d := range drifts {
			logger.Warn("ledger drift detected",
				slog.String("tenant_id", tenantID.String()),
				slog.String("item_id", d.ItemID.String()),
				slog.String("location_id", d.LocationID.String()),
				slog.Int64("on_hand", d.OnHand),
				slog.Int64("movement_sum", d.MovementSum),
				slog.Int64("delta", d.Delta),
			)
		}
		drifted += len(drifts)
	}

	logger.Info("completed ledger reconciliation",
		slog.Int("tenants", len(tenants)),
		slog.Int("drifts", drifted),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *ReconcileJob) tenants(ctx context.Context, payload ReconcilePayload) ([]uuid.UUID, error) {
	if payload.TenantID != nil {
		return []uuid.UUID{*payload.TenantID}, nil
	}
	return j.Source.TenantIDs(ctx)
}

func (j *ReconcileJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
