package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocknest/stocknest/internal/shared"
)

// LevelFilter narrows level listings.
type LevelFilter struct {
	ItemID     uuid.UUID
	LocationID uuid.UUID
	Page       int
	PerPage    int
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	ItemID        uuid.UUID
	LocationID    uuid.UUID
	ReferenceType ReferenceType
	From          time.Time
	To            time.Time
	Page          int
	PerPage       int
}

// Repository is the read side of the ledger plus reorder-policy maintenance.
// Writes stay in Apply.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const levelColumns = `tenant_id, item_id, location_id, on_hand, allocated, available, reorder_point, reorder_qty, updated_at`

func (r *Repository) GetLevel(ctx context.Context, tenantID, itemID, locationID uuid.UUID) (Level, error) {
	var lvl Level
	err := r.pool.QueryRow(ctx, `SELECT `+levelColumns+` FROM inventory_levels
WHERE tenant_id=$1 AND item_id=$2 AND location_id=$3`, tenantID, itemID, locationID).
		Scan(&lvl.TenantID, &lvl.ItemID, &lvl.LocationID, &lvl.OnHand, &lvl.Allocated, &lvl.Available,
			&lvl.ReorderPoint, &lvl.ReorderQty, &lvl.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No row means nothing ever moved here. Report zero rather than
			// not-found so callers need no special case.
			return Level{TenantID: tenantID, ItemID: itemID, LocationID: locationID}, nil
		}
		return Level{}, err
	}
	return lvl, nil
}

func (r *Repository) ListLevels(ctx context.Context, tenantID uuid.UUID, f LevelFilter) ([]Level, shared.Pagination, error) {
	conditions := []string{"tenant_id=$1"}
	args := []any{tenantID}
	if f.ItemID != uuid.Nil {
		args = append(args, f.ItemID)
		conditions = append(conditions, fmt.Sprintf("item_id=$%d", len(args)))
	}
	if f.LocationID != uuid.Nil {
		args = append(args, f.LocationID)
		conditions = append(conditions, fmt.Sprintf("location_id=$%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_levels WHERE `+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(f.Page, f.PerPage, total)

	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf(`SELECT `+levelColumns+` FROM inventory_levels WHERE %s
ORDER BY item_id, location_id LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()

	levels := make([]Level, 0, page.PerPage)
	for rows.Next() {
		var lvl Level
		if err := rows.Scan(&lvl.TenantID, &lvl.ItemID, &lvl.LocationID, &lvl.OnHand, &lvl.Allocated,
			&lvl.Available, &lvl.ReorderPoint, &lvl.ReorderQty, &lvl.UpdatedAt); err != nil {
			return nil, shared.Pagination{}, err
		}
		levels = append(levels, lvl)
	}
	return levels, page, rows.Err()
}

func (r *Repository) ListMovements(ctx context.Context, tenantID uuid.UUID, f MovementFilter) ([]Movement, shared.Pagination, error) {
	conditions := []string{"tenant_id=$1"}
	args := []any{tenantID}
	if f.ItemID != uuid.Nil {
		args = append(args, f.ItemID)
		conditions = append(conditions, fmt.Sprintf("item_id=$%d", len(args)))
	}
	if f.LocationID != uuid.Nil {
		args = append(args, f.LocationID)
		conditions = append(conditions, fmt.Sprintf("location_id=$%d", len(args)))
	}
	if f.ReferenceType != "" {
		args = append(args, f.ReferenceType)
		conditions = append(conditions, fmt.Sprintf("reference_type=$%d", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements WHERE `+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(f.Page, f.PerPage, total)

	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf(`SELECT id, tenant_id, item_id, location_id, quantity, reference_type, reference_id, COALESCE(note, ''), created_by, created_at
FROM stock_movements WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()

	movements := make([]Movement, 0, page.PerPage)
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.TenantID, &m.ItemID, &m.LocationID, &m.Quantity, &m.ReferenceType,
			&m.ReferenceID, &m.Note, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, shared.Pagination{}, err
		}
		movements = append(movements, m)
	}
	return movements, page, rows.Err()
}

// LowStock returns levels at or below their reorder point. Rows with a zero
// reorder point are skipped so untracked items never alert.
func (r *Repository) LowStock(ctx context.Context, tenantID uuid.UUID) ([]Level, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+levelColumns+` FROM inventory_levels
WHERE tenant_id=$1 AND reorder_point > 0 AND available <= reorder_point
ORDER BY available - reorder_point, item_id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var levels []Level
	for rows.Next() {
		var lvl Level
		if err := rows.Scan(&lvl.TenantID, &lvl.ItemID, &lvl.LocationID, &lvl.OnHand, &lvl.Allocated,
			&lvl.Available, &lvl.ReorderPoint, &lvl.ReorderQty, &lvl.UpdatedAt); err != nil {
			return nil, err
		}
		levels = append(levels, lvl)
	}
	return levels, rows.Err()
}

// Reconcile compares each stored level with the movement sum and returns the
// pairs that disagree. A clean ledger returns an empty slice.
func (r *Repository) Reconcile(ctx context.Context, tenantID uuid.UUID) ([]Drift, error) {
	rows, err := r.pool.Query(ctx, `SELECT l.item_id, l.location_id, l.on_hand, COALESCE(m.total, 0) AS movement_sum
FROM inventory_levels l
LEFT JOIN (
  SELECT item_id, location_id, SUM(quantity) AS total
  FROM stock_movements WHERE tenant_id=$1
  GROUP BY item_id, location_id
) m ON m.item_id = l.item_id AND m.location_id = l.location_id
WHERE l.tenant_id=$1 AND l.on_hand <> COALESCE(m.total, 0)
ORDER BY l.item_id, l.location_id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drifts []Drift
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.ItemID, &d.LocationID, &d.OnHand, &d.MovementSum); err != nil {
			return nil, err
		}
		d.Delta = d.OnHand - d.MovementSum
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}

// TenantIDs lists tenants that have any levels, for the reconciliation job.
func (r *Repository) TenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM inventory_levels ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateReorderPolicy sets the reorder point and quantity for a pair,
// creating the level row at zero stock if it does not exist yet.
func (r *Repository) UpdateReorderPolicy(ctx context.Context, tenantID, itemID, locationID uuid.UUID, point, qty int64) error {
	if point < 0 || qty < 0 {
		return shared.Validationf("reorder point and quantity must be non-negative")
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO inventory_levels (tenant_id, item_id, location_id, on_hand, allocated, available, reorder_point, reorder_qty, updated_at)
VALUES ($1, $2, $3, 0, 0, 0, $4, $5, NOW())
ON CONFLICT (tenant_id, item_id, location_id)
DO UPDATE SET reorder_point = EXCLUDED.reorder_point, reorder_qty = EXCLUDED.reorder_qty, updated_at = NOW()`,
		tenantID, itemID, locationID, point, qty)
	return err
}
