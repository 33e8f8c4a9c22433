package transfers

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
	Get(ctx context.Context, tenantID, id uuid.UUID) (Transfer, []Line, error)
	List(ctx context.Context, tenantID uuid.UUID, f ListFilter) ([]Transfer, shared.Pagination, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

const numberAttempts = 3

// Service orchestrates the stock transfer workflow.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// LineInput is one requested transfer line.
type LineInput struct {
	Item catalog.Ref
	Qty  int64
	Note string
}

// CreateInput describes transfer creation.
type CreateInput struct {
	FromLocationID uuid.UUID
	ToLocationID   uuid.UUID
	Note           string
	Lines          []LineInput
}

// Create persists a new DRAFT transfer with resolved lines.
func (s *Service) Create(ctx context.Context, tenant shared.Tenant, input CreateInput) (Transfer, []Line, error) {
	if !tenant.Valid() {
		return Transfer{}, nil, shared.Validationf("tenant scope is required")
	}
	if input.FromLocationID == uuid.Nil || input.ToLocationID == uuid.Nil {
		return Transfer{}, nil, shared.Validationf("transfer requires both locations")
	}
	if input.FromLocationID == input.ToLocationID {
		return Transfer{}, nil, shared.Validationf("transfer locations must differ")
	}
	if len(input.Lines) == 0 {
		return Transfer{}, nil, shared.Validationf("transfer requires at least one line")
	}
	for _, line := range input.Lines {
		if line.Qty <= 0 {
			return Transfer{}, nil, shared.Validationf("qty must be positive")
		}
	}

	var created Transfer
	var lines []Line
	var err error
	for attempt := 0; attempt < numberAttempts; attempt++ {
		created = Transfer{}
		lines = nil
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			number, err := tx.NextNumber(ctx, tenant.TenantID)
			if err != nil {
				return err
			}
			tr := Transfer{
				ID:             uuid.New(),
				TenantID:       tenant.TenantID,
				Number:         number,
				Status:         StatusDraft,
				FromLocationID: input.FromLocationID,
				ToLocationID:   input.ToLocationID,
				Note:           input.Note,
				CreatedBy:      tenant.ActorID,
			}
			if err := tx.InsertTransfer(ctx, tr); err != nil {
				return err
			}
			inserted, err := insertLines(ctx, tx, tenant.TenantID, tr.ID, input.Lines)
			if err != nil {
				return err
			}
			created = tr
			lines = inserted
			return nil
		})
		if err == nil || !shared.IsUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return Transfer{}, nil, shared.Conflictf("document number collision")
		}
		return Transfer{}, nil, err
	}
	s.recordAudit(ctx, tenant, "TR_CREATE", created.ID, map[string]any{"number": created.Number})
	return created, lines, nil
}

func insertLines(ctx context.Context, tx TxRepository, tenantID, transferID uuid.UUID, inputs []LineInput) ([]Line, error) {
	lines := make([]Line, 0, len(inputs))
	for i, in := range inputs {
		item, _, err := tx.ResolveItem(ctx, tenantID, in.Item)
		if err != nil {
			return nil, err
		}
		line := Line{
			ID:         uuid.New(),
			TransferID: transferID,
			LineNo:     i + 1,
			ItemID:     item.ID,
			Item:       item.Summary(),
			Qty:        in.Qty,
			Note:       in.Note,
		}
		if err := tx.InsertLine(ctx, tenantID, line); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// ReplaceLines swaps the full line set. DRAFT only.
func (s *Service) ReplaceLines(ctx context.Context, tenant shared.Tenant, transferID uuid.UUID, inputs []LineInput) ([]Line, error) {
	if len(inputs) == 0 {
		return nil, shared.Validationf("transfer requires at least one line")
	}
	for _, line := range inputs {
		if line.Qty <= 0 {
			return nil, shared.Validationf("qty must be positive")
		}
	}
	var lines []Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tr, err := tx.GetTransferForUpdate(ctx, tenant.TenantID, transferID)
		if err != nil {
			return err
		}
		if tr.Status != StatusDraft {
			return shared.Transitionf("lines are mutable only in %s, transfer is %s", StatusDraft, tr.Status)
		}
		if err := tx.DeleteLines(ctx, tenant.TenantID, transferID); err != nil {
			return err
		}
		lines, err = insertLines(ctx, tx, tenant.TenantID, transferID, inputs)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, tenant, "TR_REPLACE_LINES", transferID, map[string]any{"lines": len(lines)})
	return lines, nil
}

// Approve moves DRAFT straight to IN_TRANSIT. The skipped APPROVED state is
// part of the external contract.
func (s *Service) Approve(ctx context.Context, tenant shared.Tenant, transferID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tr, err := tx.GetTransferForUpdate(ctx, tenant.TenantID, transferID)
		if err != nil {
			return err
		}
		if tr.Status != StatusDraft {
			return shared.Transitionf("approve requires %s, transfer is %s", StatusDraft, tr.Status)
		}
		return tx.SetStatus(ctx, tenant.TenantID, transferID, StatusInTransit)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenant, "TR_APPROVE", transferID, nil)
	return nil
}

// Ship moves IN_TRANSIT to RECEIVED and stamps shipped_at. No ledger effect;
// stock moves on receive. The action-to-status mapping is legacy but load
// bearing for clients.
func (s *Service) Ship(ctx context.Context, tenant shared.Tenant, transferID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tr, err := tx.GetTransferForUpdate(ctx, tenant.TenantID, transferID)
		if err != nil {
			return err
		}
		if tr.Status != StatusInTransit {
			return shared.Transitionf("ship requires %s, transfer is %s", StatusInTransit, tr.Status)
		}
		if err := tx.SetStatus(ctx, tenant.TenantID, transferID, StatusReceived); err != nil {
			return err
		}
		return tx.SetShipped(ctx, tenant.TenantID, transferID, time.Now())
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenant, "TR_SHIP", transferID, nil)
	return nil
}

// Receive completes the transfer: for every line it applies a paired
// outbound movement at the source and inbound movement at the destination,
// in one transaction, then stamps received_at.
func (s *Service) Receive(ctx context.Context, tenant shared.Tenant, transferID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tr, err := tx.GetTransferForUpdate(ctx, tenant.TenantID, transferID)
		if err != nil {
			return err
		}
		if tr.Status != StatusReceived {
			return shared.Transitionf("receive requires %s, transfer is %s", StatusReceived, tr.Status)
		}
		lines, err := tx.GetLines(ctx, tenant.TenantID, transferID)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if _, err := tx.ApplyMovement(ctx, ledger.Movement{
				TenantID:      tenant.TenantID,
				ItemID:        line.ItemID,
				LocationID:    tr.FromLocationID,
				Quantity:      -line.Qty,
				ReferenceType: ledger.ReferenceTransfer,
				ReferenceID:   transferID,
				CreatedBy:     tenant.ActorID,
			}); err != nil {
				return err
			}
			if _, err := tx.ApplyMovement(ctx, ledger.Movement{
				TenantID:      tenant.TenantID,
				ItemID:        line.ItemID,
				LocationID:    tr.ToLocationID,
				Quantity:      line.Qty,
				ReferenceType: ledger.ReferenceTransfer,
				ReferenceID:   transferID,
				CreatedBy:     tenant.ActorID,
			}); err != nil {
				return err
			}
		}
		if err := tx.SetStatus(ctx, tenant.TenantID, transferID, StatusCompleted); err != nil {
			return err
		}
		return tx.SetReceived(ctx, tenant.TenantID, transferID, time.Now())
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenant, "TR_RECEIVE", transferID, nil)
	return nil
}

// Cancel is allowed up to the point stock has moved.
func (s *Service) Cancel(ctx context.Context, tenant shared.Tenant, transferID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tr, err := tx.GetTransferForUpdate(ctx, tenant.TenantID, transferID)
		if err != nil {
			return err
		}
		if tr.Status.Terminal() {
			return shared.Transitionf("transfer is already %s", tr.Status)
		}
		return tx.SetStatus(ctx, tenant.TenantID, transferID, StatusCanceled)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenant, "TR_CANCEL", transferID, nil)
	return nil
}

// Get returns one transfer with lines.
func (s *Service) Get(ctx context.Context, tenant shared.Tenant, transferID uuid.UUID) (Transfer, []Line, error) {
	return s.repo.Get(ctx, tenant.TenantID, transferID)
}

// List returns transfers matching the filter.
func (s *Service) List(ctx context.Context, tenant shared.Tenant, f ListFilter) ([]Transfer, shared.Pagination, error) {
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
		Entity:   "transfer",
		EntityID: entityID.String(),
		Meta:     meta,
	})
}
