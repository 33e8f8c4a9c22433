package purchasing

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

	InsertOrder(ctx context.Context, po PurchaseOrder) error
	GetOrderForUpdate(ctx context.Context, tenantID, id uuid.UUID) (PurchaseOrder, error)
	GetLines(ctx context.Context, tenantID, orderID uuid.UUID) ([]Line, error)
	InsertLine(ctx context.Context, tenantID uuid.UUID, line Line) error
	DeleteLines(ctx context.Context, tenantID, orderID uuid.UUID) error
	UpdateLineReceived(ctx context.Context, tenantID, lineID uuid.UUID, qtyReceived int64) error
	SetStatus(ctx context.Context, tenantID, id uuid.UUID, status Status) error
	SetApproval(ctx context.Context, tenantID, id, actorID uuid.UUID, at time.Time) error
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
	return t.TxDeps.NextNumber(ctx, tenantID, sequence.PrefixPurchaseOrder)
}

func (t *txRepo) InsertOrder(ctx context.Context, po PurchaseOrder) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO purchase_orders (id, tenant_id, number, status, supplier, note, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW())`,
		po.ID, po.TenantID, po.Number, po.Status, po.Supplier, po.Note, po.CreatedBy)
	return err
}

func (t *txRepo) GetOrderForUpdate(ctx context.Context, tenantID, id uuid.UUID) (PurchaseOrder, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders
WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id)
	return scanOrder(row)
}

func (t *txRepo) GetLines(ctx context.Context, tenantID, orderID uuid.UUID) ([]Line, error) {
	rows, err := t.tx.Query(ctx, lineQuery, tenantID, orderID)
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
	_, err := t.tx.Exec(ctx, `INSERT INTO purchase_order_lines (id, tenant_id, order_id, line_no, item_id, qty_ordered, qty_received, unit_cost, note)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		line.ID, tenantID, line.OrderID, line.LineNo, itemID, line.QtyOrdered, line.QtyReceived, line.UnitCost, line.Note)
	return err
}

func (t *txRepo) DeleteLines(ctx context.Context, tenantID, orderID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchase_order_lines WHERE tenant_id=$1 AND order_id=$2`, tenantID, orderID)
	return err
}

func (t *txRepo) UpdateLineReceived(ctx context.Context, tenantID, lineID uuid.UUID, qtyReceived int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_order_lines SET qty_received=$3 WHERE tenant_id=$1 AND id=$2`, tenantID, lineID, qtyReceived)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("purchase order line")
	}
	return nil
}

func (t *txRepo) SetStatus(ctx context.Context, tenantID, id uuid.UUID, status Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, id, status)
	return err
}

func (t *txRepo) SetApproval(ctx context.Context, tenantID, id, actorID uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET approved_by=$3, approved_at=$4, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, id, actorID, at)
	return err
}

func (t *txRepo) SetClosed(ctx context.Context, tenantID, id, actorID uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET closed_by=$3, closed_at=$4, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, id, actorID, at)
	return err
}

const orderColumns = `id, tenant_id, number, status, COALESCE(supplier,''), COALESCE(note,''), approved_by, approved_at, closed_by, closed_at, created_by, created_at, updated_at`

const lineQuery = `SELECT l.id, l.order_id, l.line_no, COALESCE(l.item_id, '00000000-0000-0000-0000-000000000000'::uuid),
COALESCE(i.sku,''), COALESCE(i.name,''), COALESCE(i.unit_of_measure,''), COALESCE(i.cost,0),
l.qty_ordered, l.qty_received, l.unit_cost, COALESCE(l.note,'')
FROM purchase_order_lines l
LEFT JOIN items i ON i.id = l.item_id AND i.tenant_id = l.tenant_id
WHERE l.tenant_id=$1 AND l.order_id=$2
ORDER BY l.line_no`

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.TenantID, &po.Number, &po.Status, &po.Supplier, &po.Note,
		&po.ApprovedBy, &po.ApprovedAt, &po.ClosedBy, &po.ClosedAt, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, shared.NotFoundf("purchase order")
		}
		return PurchaseOrder{}, err
	}
	return po, nil
}

func scanLines(rows pgx.Rows) ([]Line, error) {
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.LineNo, &l.ItemID,
			&l.Item.SKU, &l.Item.Name, &l.Item.UnitOfMeasure, &l.Item.Cost,
			&l.QtyOrdered, &l.QtyReceived, &l.UnitCost, &l.Note); err != nil {
			return nil, err
		}
		l.Item.ID = l.ItemID
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Get loads one order with its lines.
func (r *Repository) Get(ctx context.Context, tenantID, id uuid.UUID) (PurchaseOrder, []Line, error) {
	po, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	rows, err := r.pool.Query(ctx, lineQuery, tenantID, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	lines, err := scanLines(rows)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	return po, lines, nil
}

// ListFilter narrows order listings.
type ListFilter struct {
	Status  Status
	Search  string
	Page    int
	PerPage int
}

// List returns orders matching the filter, newest first.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID, f ListFilter) ([]PurchaseOrder, shared.Pagination, error) {
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
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders WHERE `+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(f.Page, f.PerPage, total)

	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf(`SELECT `+orderColumns+` FROM purchase_orders WHERE %s
ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()

	orders := make([]PurchaseOrder, 0, page.PerPage)
	for rows.Next() {
		po, err := scanOrder(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		orders = append(orders, po)
	}
	return orders, page, rows.Err()
}
