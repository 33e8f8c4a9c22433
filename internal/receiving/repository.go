package receiving

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
	"github.com/stocknest/stocknest/internal/ledger"
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
	ApplyMovement(ctx context.Context, m ledger.Movement) (ledger.Movement, error)

	InsertReceipt(ctx context.Context, gr GoodsReceipt) error
	GetReceiptForUpdate(ctx context.Context, tenantID, id uuid.UUID) (GoodsReceipt, error)
	GetLines(ctx context.Context, tenantID, receiptID uuid.UUID) ([]Line, error)
	InsertLine(ctx context.Context, tenantID uuid.UUID, line Line) error
	DeleteLines(ctx context.Context, tenantID, receiptID uuid.UUID) error
	SetStatus(ctx context.Context, tenantID, id uuid.UUID, status Status) error
	SetApproval(ctx context.Context, tenantID, id, actorID uuid.UUID, at time.Time) error
	SetPosted(ctx context.Context, tenantID, id, actorID uuid.UUID, at time.Time) error
	SetLocation(ctx context.Context, tenantID, id, locationID uuid.UUID) error
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
	return t.TxDeps.NextNumber(ctx, tenantID, sequence.PrefixGoodsReceipt)
}

func (t *txRepo) InsertReceipt(ctx context.Context, gr GoodsReceipt) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO goods_receipts (id, tenant_id, number, status, location_id, supplier, note, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())`,
		gr.ID, gr.TenantID, gr.Number, gr.Status, gr.LocationID, gr.Supplier, gr.Note, gr.CreatedBy)
	return err
}

func (t *txRepo) GetReceiptForUpdate(ctx context.Context, tenantID, id uuid.UUID) (GoodsReceipt, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+receiptColumns+` FROM goods_receipts
WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id)
	return scanReceipt(row)
}

func (t *txRepo) GetLines(ctx context.Context, tenantID, receiptID uuid.UUID) ([]Line, error) {
	rows, err := t.tx.Query(ctx, lineQuery, tenantID, receiptID)
	if err != nil {
		return nil, err
	}
	return scanLines(rows)
}

func (t *txRepo) InsertLine(ctx context.Context, tenantID uuid.UUID, line Line) error {
	var itemID any
	if line.ItemID != uuid.Nil {
		itemID = line.ItemID
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO goods_receipt_lines (id, tenant_id, receipt_id, line_no, item_id, qty, unit_cost, note)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		line.ID, tenantID, line.ReceiptID, line.LineNo, itemID, line.Qty, line.UnitCost, line.Note)
	return err
}

func (t *txRepo) DeleteLines(ctx context.Context, tenantID, receiptID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM goods_receipt_lines WHERE tenant_id=$1 AND receipt_id=$2`, tenantID, receiptID)
	return err
}

func (t *txRepo) SetStatus(ctx context.Context, tenantID, id uuid.UUID, status Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE goods_receipts SET status=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, id, status)
	return err
}

func (t *txRepo) SetApproval(ctx context.Context, tenantID, id, actorID uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE goods_receipts SET approved_by=$3, approved_at=$4, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, id, actorID, at)
	return err
}

func (t *txRepo) SetPosted(ctx context.Context, tenantID, id, actorID uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE goods_receipts SET posted_by=$3, posted_at=$4, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, id, actorID, at)
	return err
}

func (t *txRepo) SetLocation(ctx context.Context, tenantID, id, locationID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `UPDATE goods_receipts SET location_id=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, id, locationID)
	return err
}

const receiptColumns = `id, tenant_id, number, status, location_id, COALESCE(supplier,''), COALESCE(note,''), approved_by, approved_at, posted_by, posted_at, created_by, created_at, updated_at`

const lineQuery = `SELECT l.id, l.receipt_id, l.line_no, COALESCE(l.item_id, '00000000-0000-0000-0000-000000000000'::uuid),
COALESCE(i.sku,''), COALESCE(i.name,''), COALESCE(i.unit_of_measure,''), COALESCE(i.cost,0),
l.qty, l.unit_cost, COALESCE(l.note,'')
FROM goods_receipt_lines l
LEFT JOIN items i ON i.id = l.item_id AND i.tenant_id = l.tenant_id
WHERE l.tenant_id=$1 AND l.receipt_id=$2
ORDER BY l.line_no`

func scanReceipt(row pgx.Row) (GoodsReceipt, error) {
	var gr GoodsReceipt
	err := row.Scan(&gr.ID, &gr.TenantID, &gr.Number, &gr.Status, &gr.LocationID, &gr.Supplier, &gr.Note,
		&gr.ApprovedBy, &gr.ApprovedAt, &gr.PostedBy, &gr.PostedAt, &gr.CreatedBy, &gr.CreatedAt, &gr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GoodsReceipt{}, shared.NotFoundf("goods receipt")
		}
		return GoodsReceipt{}, err
	}
	return gr, nil
}

func scanLines(rows pgx.Rows) ([]Line, error) {
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.ReceiptID, &l.LineNo, &l.ItemID,
			&l.Item.SKU, &l.Item.Name, &l.Item.UnitOfMeasure, &l.Item.Cost,
			&l.Qty, &l.UnitCost, &l.Note); err != nil {
			return nil, err
		}
		l.Item.ID = l.ItemID
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Get loads one receipt with its lines.
func (r *Repository) Get(ctx context.Context, tenantID, id uuid.UUID) (GoodsReceipt, []Line, error) {
	gr, err := scanReceipt(r.pool.QueryRow(ctx, `SELECT `+receiptColumns+` FROM goods_receipts WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		return GoodsReceipt{}, nil, err
	}
	rows, err := r.pool.Query(ctx, lineQuery, tenantID, id)
	if err != nil {
		return GoodsReceipt{}, nil, err
	}
	lines, err := scanLines(rows)
	if err != nil {
		return GoodsReceipt{}, nil, err
	}
	return gr, lines, nil
}

// ListFilter narrows receipt listings.
type ListFilter struct {
	Status  Status
	Search  string
	Page    int
	PerPage int
}

// List returns receipts matching the filter, newest first.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID, f ListFilter) ([]GoodsReceipt, shared.Pagination, error) {
	conditions := []string{"tenant_id=$1"}
	args := []any{tenantID}
	if f.Status != "" {
		args = append(args, f.Status)
		conditions = append(conditions, fmt.Sprintf("status=$%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(number ILIKE $%d OR supplier ILIKE $%d)", len(args), len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM goods_receipts WHERE `+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(f.Page, f.PerPage, total)

	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf(`SELECT `+receiptColumns+` FROM goods_receipts WHERE %s
ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()

	receipts := make([]GoodsReceipt, 0, page.PerPage)
	for rows.Next() {
		gr, err := scanReceipt(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		receipts = append(receipts, gr)
	}
	return receipts, page, rows.Err()
}
