package transfers

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

	InsertTransfer(ctx context.Context, tr Transfer) error
	GetTransferForUpdate(ctx context.Context, tenantID, id uuid.UUID) (Transfer, error)
	GetLines(ctx context.Context, tenantID, transferID uuid.UUID) ([]Line, error)
	InsertLine(ctx context.Context, tenantID uuid.UUID, line Line) error
	DeleteLines(ctx context.Context, tenantID, transferID uuid.UUID) error
	SetStatus(ctx context.Context, tenantID, id uuid.UUID, status Status) error
	SetShipped(ctx context.Context, tenantID, id uuid.UUID, at time.Time) error
	SetReceived(ctx context.Context, tenantID, id uuid.UUID, at time.Time) error
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
	return t.TxDeps.NextNumber(ctx, tenantID, sequence.PrefixTransfer)
}

func (t *txRepo) InsertTransfer(ctx context.Context, tr Transfer) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO transfers (id, tenant_id, number, status, from_location_id, to_location_id, note, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())`,
		tr.ID, tr.TenantID, tr.Number, tr.Status, tr.FromLocationID, tr.ToLocationID, tr.Note, tr.CreatedBy)
	return err
}

func (t *txRepo) GetTransferForUpdate(ctx context.Context, tenantID, id uuid.UUID) (Transfer, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers
WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id)
	return scanTransfer(row)
}

func (t *txRepo) GetLines(ctx context.Context, tenantID, transferID uuid.UUID) ([]Line, error) {
	rows, err := t.tx.Query(ctx, lineQuery, tenantID, transferID)
	if err != nil {
		return nil, err
	}
	return scanLines(rows)
}

func (t *txRepo) InsertLine(ctx context.Context, tenantID uuid.UUID, line Line) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO transfer_lines (id, tenant_id, transfer_id, line_no, item_id, qty, note)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		line.ID, tenantID, line.TransferID, line.LineNo, line.ItemID, line.Qty, line.Note)
	return err
}

func (t *txRepo) DeleteLines(ctx context.Context, tenantID, transferID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM transfer_lines WHERE tenant_id=$1 AND transfer_id=$2`, tenantID, transferID)
	return err
}

func (t *txRepo) SetStatus(ctx context.Context, tenantID, id uuid.UUID, status Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE transfers SET status=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, id, status)
	return err
}

func (t *txRepo) SetShipped(ctx context.Context, tenantID, id uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE transfers SET shipped_at=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, id, at)
	return err
}

func (t *txRepo) SetReceived(ctx context.Context, tenantID, id uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE transfers SET received_at=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, id, at)
	return err
}

const transferColumns = `id, tenant_id, number, status, from_location_id, to_location_id, COALESCE(note,''), shipped_at, received_at, created_by, created_at, updated_at`

const lineQuery = `SELECT l.id, l.transfer_id, l.line_no, l.item_id,
COALESCE(i.sku,''), COALESCE(i.name,''), COALESCE(i.unit_of_measure,''), COALESCE(i.cost,0),
l.qty, COALESCE(l.note,'')
FROM transfer_lines l
LEFT JOIN items i ON i.id = l.item_id AND i.tenant_id = l.tenant_id
WHERE l.tenant_id=$1 AND l.transfer_id=$2
ORDER BY l.line_no`

func scanTransfer(row pgx.Row) (Transfer, error) {
	var tr Transfer
	err := row.Scan(&tr.ID, &tr.TenantID, &tr.Number, &tr.Status, &tr.FromLocationID, &tr.ToLocationID,
		&tr.Note, &tr.ShippedAt, &tr.ReceivedAt, &tr.CreatedBy, &tr.CreatedAt, &tr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, shared.NotFoundf("transfer")
		}
		return Transfer{}, err
	}
	return tr, nil
}

func scanLines(rows pgx.Rows) ([]Line, error) {
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.TransferID, &l.LineNo, &l.ItemID,
			&l.Item.SKU, &l.Item.Name, &l.Item.UnitOfMeasure, &l.Item.Cost,
			&l.Qty, &l.Note); err != nil {
			return nil, err
		}
		l.Item.ID = l.ItemID
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Get loads one transfer with its lines.
func (r *Repository) Get(ctx context.Context, tenantID, id uuid.UUID) (Transfer, []Line, error) {
	tr, err := scanTransfer(r.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		return Transfer{}, nil, err
	}
	rows, err := r.pool.Query(ctx, lineQuery, tenantID, id)
	if err != nil {
		return Transfer{}, nil, err
	}
	lines, err := scanLines(rows)
	if err != nil {
		return Transfer{}, nil, err
	}
	return tr, lines, nil
}

// ListFilter narrows transfer listings.
type ListFilter struct {
	Status     Status
	LocationID uuid.UUID
	Search     string
	Page       int
	PerPage    int
}

// List returns transfers matching the filter, newest first. A location
// filter matches either end of the transfer.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID, f ListFilter) ([]Transfer, shared.Pagination, error) {
	conditions := []string{"tenant_id=$1"}
	args := []any{tenantID}
	if f.Status != "" {
		args = append(args, f.Status)
		conditions = append(conditions, fmt.Sprintf("status=$%d", len(args)))
	}
	if f.LocationID != uuid.Nil {
		args = append(args, f.LocationID)
		conditions = append(conditions, fmt.Sprintf("(from_location_id=$%d OR to_location_id=$%d)", len(args), len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		conditions = append(conditions, fmt.Sprintf("number ILIKE $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transfers WHERE `+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(f.Page, f.PerPage, total)

	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf(`SELECT `+transferColumns+` FROM transfers WHERE %s
ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()

	transfers := make([]Transfer, 0, page.PerPage)
	for rows.Next() {
		tr, err := scanTransfer(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		transfers = append(transfers, tr)
	}
	return transfers, page, rows.Err()
}
