package adjustments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stocknest/stocknest/internal/catalog"
	"github.com/stocknest/stocknest/internal/ledger"
	"github.com/stocknest/stocknest/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenantID, id uuid.UUID) (Adjustment, []Line, error)
	List(ctx context.Context, tenantID uuid.UUID, f ListFilter) ([]Adjustment, shared.Pagination, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

const numberAttempts = 3

// Service orchestrates the stock adjustment workflow.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// LineInput is one requested adjustment line.
type LineInput struct {
	Item        catalog.Ref
	QtyExpected int64
	QtyActual   int64
	Note        string
}

// CreateInput describes adjustment creation.
type CreateInput struct {
	LocationID uuid.UUID
	Reason     string
	Lines      []LineInput
}

// Create persists a new DRAFT adjustment. Lines whose item reference cannot
// be resolved, and may not be created, are kept with a nil item id: the
// count happened, even if the catalog does not know the item.
func (s *Service) Create(ctx context.Context, tenant shared.Tenant, input CreateInput) (Adjustment, []Line, error) {
	if !tenant.Valid() {
		return Adjustment{}, nil, shared.Validationf("tenant scope is required")
	}
	if input.LocationID == uuid.Nil {
		return Adjustment{}, nil, shared.Validationf("adjustment requires a location")
	}
	if len(input.Lines) == 0 {
		return Adjustment{}, nil, shared.Validationf("adjustment requires at least one line")
	}
	for _, line := range input.Lines {
		if line.QtyExpected < 0 || line.QtyActual < 0 {
			return Adjustment{}, nil, shared.Validationf("quantities must not be negative")
		}
	}

	var created Adjustment
	var lines []Line
	var err error
	for attempt := 0; attempt < numberAttempts; attempt++ {
		created = Adjustment{}
		lines = nil
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			number, err := tx.NextNumber(ctx, tenant.TenantID)
			if err != nil {
				return err
			}
			adj := Adjustment{
				ID:         uuid.New(),
				TenantID:   tenant.TenantID,
				Number:     number,
				Status:     StatusDraft,
				LocationID: input.LocationID,
				Reason:     input.Reason,
				CreatedBy:  tenant.ActorID,
			}
			if err := tx.InsertAdjustment(ctx, adj); err != nil {
				return err
			}
			inserted, err := insertLines(ctx, tx, tenant.TenantID, adj.ID, input.Lines)
			if err != nil {
				return err
			}
			created = adj
			lines = inserted
			return nil
		})
		if err == nil || !shared.IsUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return Adjustment{}, nil, shared.Conflictf("document number collision")
		}
		return Adjustment{}, nil, err
	}
	s.recordAudit(ctx, tenant, "ADJ_CREATE", created.ID, map[string]any{"number": created.Number})
	return created, lines, nil
}

func insertLines(ctx context.Context, tx TxRepository, tenantID, adjustmentID uuid.UUID, inputs []LineInput) ([]Line, error) {
	lines := make([]Line, 0, len(inputs))
	for i, in := range inputs {
		line := Line{
			ID:           uuid.New(),
			AdjustmentID: adjustmentID,
			LineNo:       i + 1,
			Identifier:   in.Item.Identifier,
			QtyExpected:  in.QtyExpected,
			QtyActual:    in.QtyActual,
			Note:         in.Note,
		}
		item, _, err := tx.ResolveItem(ctx, tenantID, in.Item)
		switch {
		case err == nil:
			id := item.ID
			line.ItemID = &id
			line.Item = item.Summary()
		case shared.IsNotFound(err):
			// unresolved reference, no auto-create: keep the line itemless
		default:
			return nil, err
		}
		if err := tx.InsertLine(ctx, tenantID, line); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// ReplaceLines swaps the full line set. DRAFT only; every line re-resolves.
func (s *Service) ReplaceLines(ctx context.Context, tenant shared.Tenant, adjustmentID uuid.UUID, inputs []LineInput) ([]Line, error) {
	if len(inputs) == 0 {
		return nil, shared.Validationf("adjustment requires at least one line")
	}
	var lines []Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		adj, err := tx.GetAdjustmentForUpdate(ctx, tenant.TenantID, adjustmentID)
		if err != nil {
			return err
		}
		if adj.Status != StatusDraft {
			return shared.Transitionf("lines are mutable only in %s, adjustment is %s", StatusDraft, adj.Status)
		}
		if err := tx.DeleteLines(ctx, tenant.TenantID, adjustmentID); err != nil {
			return err
		}
		lines, err = insertLines(ctx, tx, tenant.TenantID, adjustmentID, inputs)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, tenant, "ADJ_REPLACE_LINES", adjustmentID, map[string]any{"lines": len(lines)})
	return lines, nil
}

// Approve moves DRAFT to APPROVED and applies one movement of qty_diff per
// resolved line with a non-zero difference. Itemless lines and zero
// differences are skipped.
func (s *Service) Approve(ctx context.Context, tenant shared.Tenant, adjustmentID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		adj, err := tx.GetAdjustmentForUpdate(ctx, tenant.TenantID, adjustmentID)
		if err != nil {
			return err
		}
		if adj.Status != StatusDraft {
			return shared.Transitionf("approve requires %s, adjustment is %s", StatusDraft, adj.Status)
		}
		lines, err := tx.GetLines(ctx, tenant.TenantID, adjustmentID)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if line.ItemID == nil || line.QtyDiff() == 0 {
				continue
			}
			if _, err := tx.ApplyMovement(ctx, ledger.Movement{
				TenantID:      tenant.TenantID,
				ItemID:        *line.ItemID,
				LocationID:    adj.LocationID,
				Quantity:      line.QtyDiff(),
				ReferenceType: ledger.ReferenceAdjustment,
				ReferenceID:   adjustmentID,
				CreatedBy:     tenant.ActorID,
			}); err != nil {
				return err
			}
		}
		return tx.SetApproved(ctx, tenant.TenantID, adjustmentID, tenant.ActorID, time.Now())
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenant, "ADJ_APPROVE", adjustmentID, nil)
	return nil
}

// Delete removes a DRAFT adjustment and its lines. Approved adjustments
// have moved stock and are permanent.
func (s *Service) Delete(ctx context.Context, tenant shared.Tenant, adjustmentID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		adj, err := tx.GetAdjustmentForUpdate(ctx, tenant.TenantID, adjustmentID)
		if err != nil {
			return err
		}
		if adj.Status != StatusDraft {
			return shared.Transitionf("delete requires %s, adjustment is %s", StatusDraft, adj.Status)
		}
		if err := tx.DeleteLines(ctx, tenant.TenantID, adjustmentID); err != nil {
			return err
		}
		return tx.DeleteAdjustment(ctx, tenant.TenantID, adjustmentID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenant, "ADJ_DELETE", adjustmentID, nil)
	return nil
}

// Get returns one adjustment with lines.
func (s *Service) Get(ctx context.Context, tenant shared.Tenant, adjustmentID uuid.UUID) (Adjustment, []Line, error) {
	return s.repo.Get(ctx, tenant.TenantID, adjustmentID)
}

// List returns adjustments matching the filter.
func (s *Service) List(ctx context.Context, tenant shared.Tenant, f ListFilter) ([]Adjustment, shared.Pagination, error) {
	return s.repo.List(ctx, tenant.TenantID, f)
}

func (s *Service) recordAudit(ctx context.Context, tenant shared.Tenant, action string, entityID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenant.TenantID,
		ActorID:  tenant.ActorID,
		Action:   action,
		Entity:   "adjustment",
		EntityID: entityID.String(),
		Meta:     meta,
	})
}
