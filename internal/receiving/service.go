package receiving

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
	Get(ctx context.Context, tenantID, id uuid.UUID) (GoodsReceipt, []Line, error)
	List(ctx context.Context, tenantID uuid.UUID, f ListFilter) ([]GoodsReceipt, shared.Pagination, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

const numberAttempts = 3

// Service orchestrates the goods receipt workflow.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// LineInput is one requested receipt line.
type LineInput struct {
	Item     catalog.Ref
	Qty      int64
	UnitCost decimal.Decimal
	Note     string
}

// CreateInput describes receipt creation.
type CreateInput struct {
	LocationID uuid.UUID
	Supplier   string
	Note       string
	Lines      []LineInput
}

// Create persists a new DRAFT receipt with resolved lines.
func (s *Service) Create(ctx context.Context, tenant shared.Tenant, input CreateInput) (GoodsReceipt, []Line, error) {
	if !tenant.Valid() {
		return GoodsReceipt{}, nil, shared.Validationf("tenant scope is required")
	}
	if len(input.Lines) == 0 {
		return GoodsReceipt{}, nil, shared.Validationf("goods receipt requires at least one line")
	}
	for _, line := range input.Lines {
		if line.Qty < 0 {
			return GoodsReceipt{}, nil, shared.Validationf("qty must not be negative")
		}
		if line.UnitCost.IsNegative() {
			return GoodsReceipt{}, nil, shared.Validationf("unit_cost must not be negative")
		}
	}

	var created GoodsReceipt
	var lines []Line
	var err error
	for attempt := 0; attempt < numberAttempts; attempt++ {
		created = GoodsReceipt{}
		lines = nil
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			number, err := tx.NextNumber(ctx, tenant.TenantID)
			if err != nil {
				return err
			}
			gr := GoodsReceipt{
				ID:        uuid.New(),
				TenantID:  tenant.TenantID,
				Number:    number,
				Status:    StatusDraft,
				Supplier:  input.Supplier,
				Note:      input.Note,
				CreatedBy: tenant.ActorID,
			}
			if input.LocationID != uuid.Nil {
				loc := input.LocationID
				gr.LocationID = &loc
			}
			if err := tx.InsertReceipt(ctx, gr); err != nil {
				return err
			}
			inserted, err := insertLines(ctx, tx, tenant.TenantID, gr.ID, input.Lines)
			if err != nil {
				return err
			}
			created = gr
			lines = inserted
			return nil
		})
		if err == nil || !shared.IsUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return GoodsReceipt{}, nil, shared.Conflictf("document number collision")
		}
		return GoodsReceipt{}, nil, err
	}
	s.recordAudit(ctx, tenant, "GR_CREATE", created.ID, map[string]any{"number": created.Number})
	return created, lines, nil
}

func insertLines(ctx context.Context, tx TxRepository, tenantID, receiptID uuid.UUID, inputs []LineInput) ([]Line, error) {
	lines := make([]Line, 0, len(inputs))
	for i, in := range inputs {
		item, _, err := tx.ResolveItem(ctx, tenantID, in.Item)
		if err != nil {
			return nil, err
		}
		line := Line{
			ID:        uuid.New(),
			ReceiptID: receiptID,
			LineNo:    i + 1,
			ItemID:    item.ID,
			Item:      item.Summary(),
			Qty:       in.Qty,
			UnitCost:  in.UnitCost,
			Note:      in.Note,
		}
		if err := tx.InsertLine(ctx, tenantID, line); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// ReplaceLines swaps the full line set. DRAFT only; every line re-resolves.
func (s *Service) ReplaceLines(ctx context.Context, tenant shared.Tenant, receiptID uuid.UUID, inputs []LineInput) ([]Line, error) {
	if len(inputs) == 0 {
		return nil, shared.Validationf("goods receipt requires at least one line")
	}
	var lines []Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		gr, err := tx.GetReceiptForUpdate(ctx, tenant.TenantID, receiptID)
		if err != nil {
			return err
		}
		if gr.Status != StatusDraft {
			return shared.Transitionf("lines are mutable only in %s, receipt is %s", StatusDraft, gr.Status)
		}
		if err := tx.DeleteLines(ctx, tenant.TenantID, receiptID); err != nil {
			return err
		}
		lines, err = insertLines(ctx, tx, tenant.TenantID, receiptID, inputs)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, tenant, "GR_REPLACE_LINES", receiptID, map[string]any{"lines": len(lines)})
	return lines, nil
}

// Approve moves DRAFT to APPROVED and stamps the approver.
func (s *Service) Approve(ctx context.Context, tenant shared.Tenant, receiptID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		gr, err := tx.GetReceiptForUpdate(ctx, tenant.TenantID, receiptID)
		if err != nil {
			return err
		}
		if gr.Status != StatusDraft {
			return shared.Transitionf("approve requires %s, receipt is %s", StatusDraft, gr.Status)
		}
		if err := tx.SetStatus(ctx, tenant.TenantID, receiptID, StatusApproved); err != nil {
			return err
		}
		return tx.SetApproval(ctx, tenant.TenantID, receiptID, tenant.ActorID, time.Now())
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenant, "GR_APPROVE", receiptID, nil)
	return nil
}

// PostInput optionally supplies the location at post time when the receipt
// was drafted without one.
type PostInput struct {
	LocationID uuid.UUID
}

// Post moves APPROVED to POSTED and applies one inbound movement per line
// with positive quantity, all in one transaction. A location is required.
func (s *Service) Post(ctx context.Context, tenant shared.Tenant, receiptID uuid.UUID, input PostInput) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		gr, err := tx.GetReceiptForUpdate(ctx, tenant.TenantID, receiptID)
		if err != nil {
			return err
		}
		if gr.Status != StatusApproved {
			return shared.Transitionf("post requires %s, receipt is %s", StatusApproved, gr.Status)
		}
		location := input.LocationID
		if location == uuid.Nil && gr.LocationID != nil {
			location = *gr.LocationID
		}
		if location == uuid.Nil {
			return shared.Validationf("posting requires a location")
		}
		if gr.LocationID == nil || *gr.LocationID != location {
			if err := tx.SetLocation(ctx, tenant.TenantID, receiptID, location); err != nil {
				return err
			}
		}
		lines, err := tx.GetLines(ctx, tenant.TenantID, receiptID)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if line.Qty <= 0 {
				continue
			}
			if _, err := tx.ApplyMovement(ctx, ledger.Movement{
				TenantID:      tenant.TenantID,
				ItemID:        line.ItemID,
				LocationID:    location,
				Quantity:      line.Qty,
				ReferenceType: ledger.ReferenceGoodsReceipt,
				ReferenceID:   receiptID,
				CreatedBy:     tenant.ActorID,
			}); err != nil {
				return err
			}
		}
		if err := tx.SetStatus(ctx, tenant.TenantID, receiptID, StatusPosted); err != nil {
			return err
		}
		return tx.SetPosted(ctx, tenant.TenantID, receiptID, tenant.ActorID, time.Now())
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenant, "GR_POST", receiptID, nil)
	return nil
}

// Close moves any non-terminal receipt to CLOSED. No ledger effect.
func (s *Service) Close(ctx context.Context, tenant shared.Tenant, receiptID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		gr, err := tx.GetReceiptForUpdate(ctx, tenant.TenantID, receiptID)
		if err != nil {
			return err
		}
		if gr.Status.Terminal() {
			return shared.Transitionf("receipt is already %s", gr.Status)
		}
		return tx.SetStatus(ctx, tenant.TenantID, receiptID, StatusClosed)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenant, "GR_CLOSE", receiptID, nil)
	return nil
}

// Cancel is allowed while no ledger effect has been applied.
func (s *Service) Cancel(ctx context.Context, tenant shared.Tenant, receiptID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		gr, err := tx.GetReceiptForUpdate(ctx, tenant.TenantID, receiptID)
		if err != nil {
			return err
		}
		if gr.Status != StatusDraft && gr.Status != StatusApproved {
			return shared.Transitionf("cancel requires %s or %s, receipt is %s", StatusDraft, StatusApproved, gr.Status)
		}
		return tx.SetStatus(ctx, tenant.TenantID, receiptID, StatusCanceled)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenant, "GR_CANCEL", receiptID, nil)
	return nil
}

// Get returns one receipt with lines.
func (s *Service) Get(ctx context.Context, tenant shared.Tenant, receiptID uuid.UUID) (GoodsReceipt, []Line, error) {
	return s.repo.Get(ctx, tenant.TenantID, receiptID)
}

// List returns receipts matching the filter.
func (s *Service) List(ctx context.Context, tenant shared.Tenant, f ListFilter) ([]GoodsReceipt, shared.Pagination, error) {
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
		Entity:   "goods_receipt",
		EntityID: entityID.String(),
		Meta:     meta,
	})
}
