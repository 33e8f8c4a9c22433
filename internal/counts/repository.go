package counts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocknest/stocknest/internal/catalog"
	"github.com/stocknest/stocknest/internal/docflow"
	"github.com/stocknest/stocknest/internal/platform/db"
	"github.com/stocknest/stocknest/internal/sequence"
	"github.com/stocknest/stocknest/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations available inside one transaction.
type TxRepository interface {
	NextNumber(ctx context.Context, tenantID uuid.UUID) (string, error)
	ResolveItem(ctx context.Context, tenantID uuid.UUID, ref catalog.Ref) (catalog.Item, bool, error)

	InsertBatch(ctx context.Context, cb CountBatch) error
	GetBatchForUpdate(ctx context.Context, tenantID, id uuid.UUID) (CountBatch, error)
	InsertLine(ctx context.Context, tenantID uuid.UUID, line Line) error
	UpdateLine(ctx context.Context, tenantID uuid.UUID, line Line) error
	DeleteLine(ctx context.Context, tenantID, lineID uuid.UUID) error
	GetLine(ctx context.Context, tenantID, lineID uuid.UUID) (Line, error)
	SetClosed(ctx context.Context, tenantID, id, actorID uuid.UUID, at time.Time) error
}

type txRepo struct {
	docflow.TxDeps
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{TxDeps: docflow.NewTxDeps(tx), tx: tx})
	})
}

func (t *txRepo) NextNumber(ctx context.Context, tenantID uuid.UUID) (string, error) {
	return t.TxDeps.NextNumber(ctx, tenantID, sequence.PrefixCountBatch)
}

func (t *txRepo) InsertBatch(ctx context.Context, cb CountBatch) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO count_batches (id, tenant_id, number, status, location_id, note, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW())`,
		cb.ID, cb.TenantID, cb.Number, cb.Status, cb.LocationID, cb.Note, cb.CreatedBy)
	return err
}

func (t *txRepo) GetBatchForUpdate(ctx context.Context, tenantID, id uuid.UUID) (CountBatch, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM count_batches
WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id)
	return scanBatch(row)
}

func (t *txRepo) InsertLine(ctx context.Context, tenantID uuid.UUID, line Line) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO count_batch_lines (id, tenant_id, batch_id, item_id, identifier, qty_expected, qty_counted, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())`,
		line.ID, tenantID, line.BatchID, line.ItemID, line.Identifier, line.QtyExpected, line.QtyCounted, line.Note)
	return err
}

func (t *txRepo) UpdateLine(ctx context.Context, tenantID uuid.UUID, line Line) error {
	tag, err := t.tx.Exec(ctx, `UPDATE count_batch_lines SET qty_expected=$3, qty_counted=$4, note=$5 WHERE tenant_id=$1 AND id=$2`,
		tenantID, line.ID, line.QtyExpected, line.QtyCounted, line.Note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("count line")
	}
	return nil
}

func (t *txRepo) DeleteLine(ctx context.Context, tenantID, lineID uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM count_batch_lines WHERE tenant_id=$1 AND id=$2`, tenantID, lineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("count line")
	}
	return nil
}

func (t *txRepo) GetLine(ctx context.Context, tenantID, lineID uuid.UUID) (Line, error) {
	row := t.tx.QueryRow(ctx, `SELECT l.id, l.batch_id, l.item_id, COALESCE(l.identifier,''),
COALESCE(i.sku,''), COALESCE(i.name,''), COALESCE(i.unit_of_measure,''), COALESCE(i.cost,0),
l.qty_expected, l.qty_counted, COALESCE(l.note,''), l.created_at
FROM count_batch_lines l
LEFT JOIN items i ON i.id = l.item_id AND i.tenant_id = l.tenant_id
WHERE l.tenant_id=$1 AND l.id=$2`, tenantID, lineID)
	return scanLine(row)
}

func (t *txRepo) SetClosed(ctx context.Context, tenantID, id, actorID uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE count_batches SET status=$3, closed_by=$4, closed_at=$5, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`,
		tenantID, id, StatusClosed, actorID, at)
	return err
}

const batchColumns = `id, tenant_id, number, status, location_id, COALESCE(note,''), closed_by, closed_at, created_by, created_at, updated_at`

const lineQuery = `SELECT l.id, l.batch_id, l.item_id, COALESCE(l.identifier,''),
COALESCE(i.sku,''), COALESCE(i.name,''), COALESCE(i.unit_of_measure,''), COALESCE(i.cost,0),
l.qty_expected, l.qty_counted, COALESCE(l.note,''), l.created_at
FROM count_batch_lines l
LEFT JOIN items i ON i.id = l.item_id AND i.tenant_id = l.tenant_id
WHERE l.tenant_id=$1 AND l.batch_id=$2
ORDER BY l.created_at, l.id`

func scanBatch(row pgx.Row) (CountBatch, error) {
	var cb CountBatch
	err := row.Scan(&cb.ID, &cb.TenantID, &cb.Number, &cb.Status, &cb.LocationID, &cb.Note,
		&cb.ClosedBy, &cb.ClosedAt, &cb.CreatedBy, &cb.CreatedAt, &cb.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CountBatch{}, shared.NotFoundf("count batch")
		}
		return CountBatch{}, err
	}
	return cb, nil
}

func scanLine(row pgx.Row) (Line, error) {
	var l Line
	err := row.Scan(&l.ID, &l.BatchID, &l.ItemID, &l.Identifier,
		&l.Item.SKU, &l.Item.Name, &l.Item.UnitOfMeasure, &l.Item.Cost,
		&l.QtyExpected, &l.QtyCounted, &l.Note, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Line{}, shared.NotFoundf("count line")
		}
		return Line{}, err
	}
	if l.ItemID != nil {
		l.Item.ID = *l.ItemID
	}
	return l, nil
}

// Get loads one batch with its lines.
func (r *Repository) Get(ctx context.Context, tenantID, id uuid.UUID) (CountBatch, []Line, error) {
	cb, err := scanBatch(r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM count_batches WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		return CountBatch{}, nil, err
	}
	rows, err := r.pool.Query(ctx, lineQuery, tenantID, id)
	if err != nil {
		return CountBatch{}, nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return CountBatch{}, nil, err
		}
		lines = append(lines, l)
	}
	return cb, lines, rows.Err()
}

// ListFilter narrows batch listings.
type ListFilter struct {
	Status  Status
	Page    int
	PerPage int
}

// List returns batches matching the filter, newest first.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID, f ListFilter) ([]CountBatch, shared.Pagination, error) {
	conditions := []string{"tenant_id=$1"}
	args := []any{tenantID}
	if f.Status != "" {
		args = append(args, f.Status)
		conditions = append(conditions, fmt.Sprintf("status=$%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM count_batches WHERE `+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(f.Page, f.PerPage, total)

	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf(`SELECT `+batchColumns+` FROM count_batches WHERE %s
ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()

	batches := make([]CountBatch, 0, page.PerPage)
	for rows.Next() {
		cb, err := scanBatch(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		batches = append(batches, cb)
	}
	return batches, page, rows.Err()
}
