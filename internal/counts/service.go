package counts

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stocknest/stocknest/internal/catalog"
	"github.com/stocknest/stocknest/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenantID, id uuid.UUID) (CountBatch, []Line, error)
	List(ctx context.Context, tenantID uuid.UUID, f ListFilter) ([]CountBatch, shared.Pagination, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

const numberAttempts = 3

// Service orchestrates the count batch workflow. A batch is a worksheet:
// closing it freezes the numbers, it never touches the ledger.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// LineInput is one counted line.
type LineInput struct {
	Item        catalog.Ref
	QtyExpected int64
	QtyCounted  int64
	Note        string
}

// CreateInput describes batch creation. Lines are optional at creation;
// counting crews usually add them one scan at a time.
type CreateInput struct {
	LocationID uuid.UUID
	Note       string
	Lines      []LineInput
}

// Create persists a new OPEN batch.
func (s *Service) Create(ctx context.Context, tenant shared.Tenant, input CreateInput) (CountBatch, []Line, error) {
	if !tenant.Valid() {
		return CountBatch{}, nil, shared.Validationf("tenant scope is required")
	}
	if input.LocationID == uuid.Nil {
		return CountBatch{}, nil, shared.Validationf("count batch requires a location")
	}
	for _, line := range input.Lines {
		if line.QtyExpected < 0 || line.QtyCounted < 0 {
			return CountBatch{}, nil, shared.Validationf("quantities must not be negative")
		}
	}

	var created CountBatch
	var lines []Line
	var err error
	for attempt := 0; attempt < numberAttempts; attempt++ {
		created = CountBatch{}
		lines = nil
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			number, err := tx.NextNumber(ctx, tenant.TenantID)
			if err != nil {
				return err
			}
			cb := CountBatch{
				ID:         uuid.New(),
				TenantID:   tenant.TenantID,
				Number:     number,
				Status:     StatusOpen,
				LocationID: input.LocationID,
				Note:       input.Note,
				CreatedBy:  tenant.ActorID,
			}
			if err := tx.InsertBatch(ctx, cb); err != nil {
				return err
			}
			for _, in := range input.Lines {
				line, err := buildLine(ctx, tx, tenant.TenantID, cb.ID, in)
				if err != nil {
					return err
				}
				if err := tx.InsertLine(ctx, tenant.TenantID, line); err != nil {
					return err
				}
				lines = append(lines, line)
			}
			created = cb
			return nil
		})
		if err == nil || !shared.IsUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return CountBatch{}, nil, shared.Conflictf("document number collision")
		}
		return CountBatch{}, nil, err
	}
	s.recordAudit(ctx, tenant, "CNT_CREATE", created.ID, map[string]any{"number": created.Number})
	return created, lines, nil
}

// buildLine resolves the item reference. Unresolved references are kept
// itemless, same as adjustments: the count happened regardless.
func buildLine(ctx context.Context, tx TxRepository, tenantID, batchID uuid.UUID, in LineInput) (Line, error) {
	line := Line{
		ID:          uuid.New(),
		BatchID:     batchID,
		Identifier:  in.Item.Identifier,
		QtyExpected: in.QtyExpected,
		QtyCounted:  in.QtyCounted,
		Note:        in.Note,
	}
	item, _, err := tx.ResolveItem(ctx, tenantID, in.Item)
	switch {
	case err == nil:
		id := item.ID
		line.ItemID = &id
		line.Item = item.Summary()
	case shared.IsNotFound(err):
	default:
		return Line{}, err
	}
	return line, nil
}

func (s *Service) lockOpenBatch(ctx context.Context, tx TxRepository, tenantID, batchID uuid.UUID) (CountBatch, error) {
	cb, err := tx.GetBatchForUpdate(ctx, tenantID, batchID)
	if err != nil {
		return CountBatch{}, err
	}
	if cb.Status != StatusOpen {
		return CountBatch{}, shared.Transitionf("lines are mutable only in %s, batch is %s", StatusOpen, cb.Status)
	}
	return cb, nil
}

// AddLine appends one line to an open batch.
func (s *Service) AddLine(ctx context.Context, tenant shared.Tenant, batchID uuid.UUID, in LineInput) (Line, error) {
	if in.QtyExpected < 0 || in.QtyCounted < 0 {
		return Line{}, shared.Validationf("quantities must not be negative")
	}
	var line Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := s.lockOpenBatch(ctx, tx, tenant.TenantID, batchID); err != nil {
			return err
		}
		var err error
		line, err = buildLine(ctx, tx, tenant.TenantID, batchID, in)
		if err != nil {
			return err
		}
		return tx.InsertLine(ctx, tenant.TenantID, line)
	})
	if err != nil {
		return Line{}, err
	}
	s.recordAudit(ctx, tenant, "CNT_ADD_LINE", batchID, map[string]any{"line_id": line.ID.String()})
	return line, nil
}

// UpdateLineInput carries the mutable line fields.
type UpdateLineInput struct {
	QtyExpected int64
	QtyCounted  int64
	Note        string
}

// UpdateLine rewrites quantities and note on an existing line.
func (s *Service) UpdateLine(ctx context.Context, tenant shared.Tenant, batchID, lineID uuid.UUID, in UpdateLineInput) (Line, error) {
	if in.QtyExpected < 0 || in.QtyCounted < 0 {
		return Line{}, shared.Validationf("quantities must not be negative")
	}
	var line Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := s.lockOpenBatch(ctx, tx, tenant.TenantID, batchID); err != nil {
			return err
		}
		existing, err := tx.GetLine(ctx, tenant.TenantID, lineID)
		if err != nil {
			return err
		}
		if existing.BatchID != batchID {
			return shared.NotFoundf("count line")
		}
		existing.QtyExpected = in.QtyExpected
		existing.QtyCounted = in.QtyCounted
		existing.Note = in.Note
		if err := tx.UpdateLine(ctx, tenant.TenantID, existing); err != nil {
			return err
		}
		line = existing
		return nil
	})
	if err != nil {
		return Line{}, err
	}
	s.recordAudit(ctx, tenant, "CNT_UPDATE_LINE", batchID, map[string]any{"line_id": lineID.String()})
	return line, nil
}

// DeleteLine removes one line from an open batch.
func (s *Service) DeleteLine(ctx context.Context, tenant shared.Tenant, batchID, lineID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := s.lockOpenBatch(ctx, tx, tenant.TenantID, batchID); err != nil {
			return err
		}
		existing, err := tx.GetLine(ctx, tenant.TenantID, lineID)
		if err != nil {
			return err
		}
		if existing.BatchID != batchID {
			return shared.NotFoundf("count line")
		}
		return tx.DeleteLine(ctx, tenant.TenantID, lineID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenant, "CNT_DELETE_LINE", batchID, map[string]any{"line_id": lineID.String()})
	return nil
}

// Close freezes an open batch. The recorded variances stay available for a
// follow-up adjustment but nothing moves here.
func (s *Service) Close(ctx context.Context, tenant shared.Tenant, batchID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cb, err := tx.GetBatchForUpdate(ctx, tenant.TenantID, batchID)
		if err != nil {
			return err
		}
		if cb.Status != StatusOpen {
			return shared.Transitionf("close requires %s, batch is %s", StatusOpen, cb.Status)
		}
		return tx.SetClosed(ctx, tenant.TenantID, batchID, tenant.ActorID, time.Now())
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenant, "CNT_CLOSE", batchID, nil)
	return nil
}

// Get returns one batch with lines.
func (s *Service) Get(ctx context.Context, tenant shared.Tenant, batchID uuid.UUID) (CountBatch, []Line, error) {
	return s.repo.Get(ctx, tenant.TenantID, batchID)
}

// List returns batches matching the filter.
func (s *Service) List(ctx context.Context, tenant shared.Tenant, f ListFilter) ([]CountBatch, shared.Pagination, error) {
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
		Entity:   "count_batch",
		EntityID: entityID.String(),
		Meta:     meta,
	})
}
