package purchasing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stocknest/stocknest/internal/catalog"
	"github.com/stocknest/stocknest/internal/ledger"
	"github.com/stocknest/stocknest/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenantID, id uuid.UUID) (PurchaseOrder, []Line, error)
	List(ctx context.Context, tenantID uuid.UUID, f ListFilter) ([]PurchaseOrder, shared.Pagination, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// numberAttempts bounds collision retries when issuing a document number.
const numberAttempts = 3

// Service orchestrates the purchase order workflow.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// LineInput is one requested order line.
type LineInput struct {
	Item       catalog.Ref
	QtyOrdered int64
	UnitCost   decimal.Decimal
	Note       string
}

// CreateInput describes order creation.
type CreateInput struct {
	Supplier string
	Note     string
	Lines    []LineInput
}

// ReceiveLineInput is one received quantity against an existing line.
type ReceiveLineInput struct {
	LineID uuid.UUID
	Qty    int64
}

// ReceiveInput describes one receive call. The location is per call, not
// carried on the order.
type ReceiveInput struct {
	LocationID uuid.UUID
	Lines      []ReceiveLineInput
}

// Create persists a new DRAFT order with resolved lines. The whole
// transaction is retried on a number collision, since a failed insert
// poisons the transaction it ran in.
func (s *Service) Create(ctx context.Context, tenant shared.Tenant, input CreateInput) (PurchaseOrder, []Line, error) {
	if !tenant.Valid() {
		return PurchaseOrder{}, nil, shared.Validationf("tenant scope is required")
	}
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, nil, shared.Validationf("purchase order requires at least one line")
	}
	for _, line := range input.Lines {
		if line.QtyOrdered <= 0 {
			return PurchaseOrder{}, nil, shared.Validationf("qty_ordered must be positive")
		}
		if line.UnitCost.IsNegative() {
			return PurchaseOrder{}, nil, shared.Validationf("unit_cost must not be negative")
		}
	}

	var created PurchaseOrder
	var lines []Line
	var err error
	for attempt := 0; attempt < numberAttempts; attempt++ {
		created = PurchaseOrder{}
		lines = nil
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			number, err := tx.NextNumber(ctx, tenant.TenantID)
			if err != nil {
				return err
			}
			po := PurchaseOrder{
				ID:        uuid.New(),
				TenantID:  tenant.TenantID,
				Number:    number,
				Status:    StatusDraft,
				Supplier:  input.Supplier,
				Note:      input.Note,
				CreatedBy: tenant.ActorID,
			}
			if err := tx.InsertOrder(ctx, po); err != nil {
				return err
			}
			inserted, err := insertLines(ctx, tx, tenant.TenantID, po.ID, input.Lines)
			if err != nil {
				return err
			}
			created = po
			lines = inserted
			return nil
		})
		if err == nil || !shared.IsUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return PurchaseOrder{}, nil, shared.Conflictf("document number collision")
		}
		return PurchaseOrder{}, nil, err
	}
	s.recordAudit(ctx, tenant, "PO_CREATE", created.ID, map[string]any{"number": created.Number})
	return created, lines, nil
}

func insertLines(ctx context.Context, tx TxRepository, tenantID, orderID uuid.UUID, inputs []LineInput) ([]Line, error) {
	lines := make([]Line, 0, len(inputs))
	for i, in := range inputs {
		item, _, err := tx.ResolveItem(ctx, tenantID, in.Item)
		if err != nil {
			return nil, err
		}
		line := Line{
			ID:         uuid.New(),
			OrderID:    orderID,
			LineNo:     i + 1,
			ItemID:     item.ID,
			Item:       item.Summary(),
			QtyOrdered: in.QtyOrdered,
			UnitCost:   in.UnitCost,
			Note:       in.Note,
		}
		if err := tx.InsertLine(ctx, tenantID, line); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// ReplaceLines swaps the full line set. Only DRAFT orders are mutable; every
// replacement line is re-resolved.
func (s *Service) ReplaceLines(ctx context.Context, tenant shared.Tenant, orderID uuid.UUID, inputs []LineInput) ([]Line, error) {
	if len(inputs) == 0 {
		return nil, shared.Validationf("purchase order requires at least one line")
	}
	for _, line := range inputs {
		if line.QtyOrdered <= 0 {
			return nil, shared.Validationf("qty_ordered must be positive")
		}
	}
	var lines []Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetOrderForUpdate(ctx, tenant.TenantID, orderID)
		if err != nil {
			return err
		}
		if po.Status != StatusDraft {
			return shared.Transitionf("lines are mutable only in %s, order is %s", StatusDraft, po.Status)
		}
		if err := tx.DeleteLines(ctx, tenant.TenantID, orderID); err != nil {
			return err
		}
		lines, err = insertLines(ctx, tx, tenant.TenantID, orderID, inputs)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, tenant, "PO_REPLACE_LINES", orderID, map[string]any{"lines": len(lines)})
	return lines, nil
}

// Approve moves DRAFT to APPROVED. No ledger effect.
func (s *Service) Approve(ctx context.Context, tenant shared.Tenant, orderID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetOrderForUpdate(ctx, tenant.TenantID, orderID)
		if err != nil {
			return err
		}
		if po.Status != StatusDraft {
			return shared.Transitionf("approve requires %s, order is %s", StatusDraft, po.Status)
		}
		if err := tx.SetStatus(ctx, tenant.TenantID, orderID, StatusApproved); err != nil {
			return err
		}
		return tx.SetApproval(ctx, tenant.TenantID, orderID, tenant.ActorID, time.Now())
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenant, "PO_APPROVE", orderID, nil)
	return nil
}

// Receive records received quantities against lines, applies one inbound
// ledger movement per positive quantity at the given location, and
// recomputes the order status. Cumulative qty_received never exceeds
// qty_ordered.
func (s *Service) Receive(ctx context.Context, tenant shared.Tenant, orderID uuid.UUID, input ReceiveInput) (Status, error) {
	if input.LocationID == uuid.Nil {
		return "", shared.Validationf("receive requires a location")
	}
	if len(input.Lines) == 0 {
		return "", shared.Validationf("receive requires at least one line")
	}
	var status Status
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetOrderForUpdate(ctx, tenant.TenantID, orderID)
		if err != nil {
			return err
		}
		// RECEIVED is accepted as a source so that over-receiving a finished
		// order surfaces as a quantity validation error, not a transition one.
		if po.Status != StatusApproved && po.Status != StatusPartial && po.Status != StatusReceived {
			return shared.Transitionf("receive requires %s or %s, order is %s", StatusApproved, StatusPartial, po.Status)
		}
		lines, err := tx.GetLines(ctx, tenant.TenantID, orderID)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]*Line, len(lines))
		for i := range lines {
			byID[lines[i].ID] = &lines[i]
		}
		for _, in := range input.Lines {
			if in.Qty <= 0 {
				return shared.Validationf("qty_received must be positive")
			}
			line, ok := byID[in.LineID]
			if !ok {
				return shared.NotFoundf("purchase order line")
			}
			next := line.QtyReceived + in.Qty
			if next > line.QtyOrdered {
				return shared.Validationf("line %d: receiving %d exceeds ordered %d", line.LineNo, next, line.QtyOrdered)
			}
			if err := tx.UpdateLineReceived(ctx, tenant.TenantID, line.ID, next); err != nil {
				return err
			}
			line.QtyReceived = next
			if _, err := tx.ApplyMovement(ctx, ledger.Movement{
				TenantID:      tenant.TenantID,
				ItemID:        line.ItemID,
				LocationID:    input.LocationID,
				Quantity:      in.Qty,
				ReferenceType: ledger.ReferencePurchaseOrder,
				ReferenceID:   orderID,
				CreatedBy:     tenant.ActorID,
			}); err != nil {
				return err
			}
		}
		status = recomputeStatus(lines)
		if status != po.Status {
			if err := tx.SetStatus(ctx, tenant.TenantID, orderID, status); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	s.recordAudit(ctx, tenant, "PO_RECEIVE", orderID, map[string]any{"status": status, "location_id": input.LocationID})
	return status, nil
}

// Close moves any non-terminal order to CLOSED. No ledger effect.
func (s *Service) Close(ctx context.Context, tenant shared.Tenant, orderID uuid.UUID) error {
	return s.finalize(ctx, tenant, orderID, StatusClosed, "PO_CLOSE")
}

// Cancel moves an order with no received stock to CANCELED. Once stock has
// arrived the ledger effect stands, so cancellation is rejected.
func (s *Service) Cancel(ctx context.Context, tenant shared.Tenant, orderID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetOrderForUpdate(ctx, tenant.TenantID, orderID)
		if err != nil {
			return err
		}
		if po.Status != StatusDraft && po.Status != StatusApproved {
			return shared.Transitionf("cancel requires %s or %s, order is %s", StatusDraft, StatusApproved, po.Status)
		}
		return tx.SetStatus(ctx, tenant.TenantID, orderID, StatusCanceled)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenant, "PO_CANCEL", orderID, nil)
	return nil
}

func (s *Service) finalize(ctx context.Context, tenant shared.Tenant, orderID uuid.UUID, target Status, action string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetOrderForUpdate(ctx, tenant.TenantID, orderID)
		if err != nil {
			return err
		}
		if po.Status.Terminal() {
			return shared.Transitionf("order is already %s", po.Status)
		}
		if err := tx.SetStatus(ctx, tenant.TenantID, orderID, target); err != nil {
			return err
		}
		return tx.SetClosed(ctx, tenant.TenantID, orderID, tenant.ActorID, time.Now())
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenant, action, orderID, nil)
	return nil
}

// Get returns one order with lines.
func (s *Service) Get(ctx context.Context, tenant shared.Tenant, orderID uuid.UUID) (PurchaseOrder, []Line, error) {
	return s.repo.Get(ctx, tenant.TenantID, orderID)
}

// List returns orders matching the filter.
func (s *Service) List(ctx context.Context, tenant shared.Tenant, f ListFilter) ([]PurchaseOrder, shared.Pagination, error) {
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
		Entity:   "purchase_order",
		EntityID: entityID.String(),
		Meta:     meta,
	})
}
