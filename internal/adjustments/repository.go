package adjustments

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

	InsertAdjustment(ctx context.Context, adj Adjustment) error
	GetAdjustmentForUpdate(ctx context.Context, tenantID, id uuid.UUID) (Adjustment, error)
	GetLines(ctx context.Context, tenantID, adjustmentID uuid.UUID) ([]Line, error)
	InsertLine(ctx context.Context, tenantID uuid.UUID, line Line) error
	DeleteLines(ctx context.Context, tenantID, adjustmentID uuid.UUID) error
	DeleteAdjustment(ctx context.Context, tenantID, id uuid.UUID) error
	SetApproved(ctx context.Context, tenantID, id, actorID uuid.UUID, at time.Time) error
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
	return t.TxDeps.NextNumber(ctx, tenantID, sequence.PrefixAdjustment)
}

func (t *txRepo) InsertAdjustment(ctx context.Context, adj Adjustment) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO adjustments (id, tenant_id, number, status, location_id, reason, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW())`,
		adj.ID, adj.TenantID, adj.Number, adj.Status, adj.LocationID, adj.Reason, adj.CreatedBy)
	return err
}

func (t *txRepo) GetAdjustmentForUpdate(ctx context.Context, tenantID, id uuid.UUID) (Adjustment, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM adjustments
WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id)
	return scanAdjustment(row)
}

func (t *txRepo) GetLines(ctx context.Context, tenantID, adjustmentID uuid.UUID) ([]Line, error) {
	rows, err := t.tx.Query(ctx, lineQuery, tenantID, adjustmentID)
	if err != nil {
		return nil, err
	}
	return scanLines(rows)
}

func (t *txRepo) InsertLine(ctx context.Context, tenantID uuid.UUID, line Line) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO adjustment_lines (id, tenant_id, adjustment_id, line_no, item_id, identifier, qty_expected, qty_actual, note)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		line.ID, tenantID, line.AdjustmentID, line.LineNo, line.ItemID, line.Identifier, line.QtyExpected, line.QtyActual, line.Note)
	return err
}

func (t *txRepo) DeleteLines(ctx context.Context, tenantID, adjustmentID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM adjustment_lines WHERE tenant_id=$1 AND adjustment_id=$2`, tenantID, adjustmentID)
	return err
}

func (t *txRepo) DeleteAdjustment(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM adjustments WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("adjustment")
	}
	return nil
}

func (t *txRepo) SetApproved(ctx context.Context, tenantID, id, actorID uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE adjustments SET status=$3, approved_by=$4, approved_at=$5, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`,
		tenantID, id, StatusApproved, actorID, at)
	return err
}

const adjustmentColumns = `id, tenant_id, number, status, location_id, COALESCE(reason,''), approved_by, approved_at, created_by, created_at, updated_at`

const lineQuery = `SELECT l.id, l.adjustment_id, l.line_no, l.item_id, COALESCE(l.identifier,''),
COALESCE(i.sku,''), COALESCE(i.name,''), COALESCE(i.unit_of_measure,''), COALESCE(i.cost,0),
l.qty_expected, l.qty_actual, COALESCE(l.note,'')
FROM adjustment_lines l
LEFT JOIN items i ON i.id = l.item_id AND i.tenant_id = l.tenant_id
WHERE l.tenant_id=$1 AND l.adjustment_id=$2
ORDER BY l.line_no`

func scanAdjustment(row pgx.Row) (Adjustment, error) {
	var adj Adjustment
	err := row.Scan(&adj.ID, &adj.TenantID, &adj.Number, &adj.Status, &adj.LocationID, &adj.Reason,
		&adj.ApprovedBy, &adj.ApprovedAt, &adj.CreatedBy, &adj.CreatedAt, &adj.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Adjustment{}, shared.NotFoundf("adjustment")
		}
		return Adjustment{}, err
	}
	return adj, nil
}

func scanLines(rows pgx.Rows) ([]Line, error) {
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.AdjustmentID, &l.LineNo, &l.ItemID, &l.Identifier,
			&l.Item.SKU, &l.Item.Name, &l.Item.UnitOfMeasure, &l.Item.Cost,
			&l.QtyExpected, &l.QtyActual, &l.Note); err != nil {
			return nil, err
		}
		if l.ItemID != nil {
			l.Item.ID = *l.ItemID
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Get loads one adjustment with its lines.
func (r *Repository) Get(ctx context.Context, tenantID, id uuid.UUID) (Adjustment, []Line, error) {
	adj, err := scanAdjustment(r.pool.QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM adjustments WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		return Adjustment{}, nil, err
	}
	rows, err := r.pool.Query(ctx, lineQuery, tenantID, id)
	if err != nil {
		return Adjustment{}, nil, err
	}
	lines, err := scanLines(rows)
	if err != nil {
		return Adjustment{}, nil, err
	}
	return adj, lines, nil
}

// ListFilter narrows adjustment listings.
type ListFilter struct {
	Status  Status
	Search  string
	Page    int
	PerPage int
}

// List returns adjustments matching the filter, newest first.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID, f ListFilter) ([]Adjustment, shared.Pagination, error) {
	conditions := []string{"tenant_id=$1"}
	args := []any{tenantID}
	if f.Status != "" {
		args = append(args, f.Status)
		conditions = append(conditions, fmt.Sprintf("status=$%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(number ILIKE $%d OR reason ILIKE $%d)", len(args), len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM adjustments WHERE `+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(f.Page, f.PerPage, total)

	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf(`SELECT `+adjustmentColumns+` FROM adjustments WHERE %s
ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()

	adjustments := make([]Adjustment, 0, page.PerPage)
	for rows.Next() {
		adj, err := scanAdjustment(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments, page, rows.Err()
}
