package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stocknest/stocknest/internal/platform/db"
	"github.com/stocknest/stocknest/internal/shared"
)

// Store is the lookup/insert surface the resolver runs against. The Postgres
// implementation works on a db.Queryer, so resolution performed during a
// document action shares that action's transaction.
type Store interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (Item, error)
	FindBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (Item, error)
	FindByNormalizedSKU(ctx context.Context, tenantID uuid.UUID, sku string) (Item, error)
	FindByBarcode(ctx context.Context, tenantID uuid.UUID, barcode string) (Item, error)
	FindByNameExact(ctx context.Context, tenantID uuid.UUID, name string) (Item, error)
	FindByNameSubstring(ctx context.Context, tenantID uuid.UUID, name string) (Item, error)
	Insert(ctx context.Context, item Item) error
	SummariesByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]Summary, error)
}

const itemColumns = `id, tenant_id, sku, COALESCE(barcode, ''), name, unit_of_measure, cost, price, is_active, created_at, updated_at`

// PGStore is the PostgreSQL implementation of Store.
type PGStore struct {
	q db.Queryer
}

// NewStore constructs a PGStore over a pool or an open transaction.
func NewStore(q db.Queryer) *PGStore {
	return &PGStore{q: q}
}

func (s *PGStore) GetByID(ctx context.Context, tenantID, id uuid.UUID) (Item, error) {
	return s.one(ctx, `SELECT `+itemColumns+` FROM items WHERE tenant_id=$1 AND id=$2`, tenantID, id)
}

func (s *PGStore) FindBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (Item, error) {
	return s.one(ctx, `SELECT `+itemColumns+` FROM items WHERE tenant_id=$1 AND sku=$2`, tenantID, sku)
}

// FindByNormalizedSKU matches with hyphens stripped on both sides.
func (s *PGStore) FindByNormalizedSKU(ctx context.Context, tenantID uuid.UUID, sku string) (Item, error) {
	normalized := strings.ReplaceAll(sku, "-", "")
	return s.one(ctx, `SELECT `+itemColumns+` FROM items WHERE tenant_id=$1 AND REPLACE(sku, '-', '')=$2`, tenantID, normalized)
}

func (s *PGStore) FindByBarcode(ctx context.Context, tenantID uuid.UUID, barcode string) (Item, error) {
	return s.one(ctx, `SELECT `+itemColumns+` FROM items WHERE tenant_id=$1 AND barcode=$2`, tenantID, barcode)
}

func (s *PGStore) FindByNameExact(ctx context.Context, tenantID uuid.UUID, name string) (Item, error) {
	return s.one(ctx, `SELECT `+itemColumns+` FROM items WHERE tenant_id=$1 AND LOWER(name)=LOWER($2) ORDER BY created_at, id LIMIT 1`, tenantID, name)
}

// FindByNameSubstring returns the oldest item whose name contains the term,
// so repeated resolutions of the same term are deterministic.
func (s *PGStore) FindByNameSubstring(ctx context.Context, tenantID uuid.UUID, name string) (Item, error) {
	return s.one(ctx, `SELECT `+itemColumns+` FROM items WHERE tenant_id=$1 AND name ILIKE '%' || $2 || '%' ORDER BY created_at, id LIMIT 1`, tenantID, name)
}

func (s *PGStore) Insert(ctx context.Context, item Item) error {
	var barcode any
	if item.Barcode != "" {
		barcode = item.Barcode
	}
	_, err := s.q.Exec(ctx, `INSERT INTO items (id, tenant_id, sku, barcode, name, unit_of_measure, cost, price, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW())`,
		item.ID, item.TenantID, item.SKU, barcode, item.Name, item.UnitOfMeasure, item.Cost, item.Price, item.IsActive)
	if err != nil {
		return fmt.Errorf("catalog: insert item: %w", err)
	}
	return nil
}

// SummariesByIDs loads line-level item projections in one round trip.
func (s *PGStore) SummariesByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]Summary, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]Summary{}, nil
	}
	rows, err := s.q.Query(ctx, `SELECT id, sku, name, unit_of_measure, cost FROM items WHERE tenant_id=$1 AND id = ANY($2)`, tenantID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	summaries := make(map[uuid.UUID]Summary, len(ids))
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.SKU, &sum.Name, &sum.UnitOfMeasure, &sum.Cost); err != nil {
			return nil, err
		}
		summaries[sum.ID] = sum
	}
	return summaries, rows.Err()
}

func (s *PGStore) one(ctx context.Context, query string, args ...any) (Item, error) {
	var item Item
	err := s.q.QueryRow(ctx, query, args...).Scan(&item.ID, &item.TenantID, &item.SKU, &item.Barcode, &item.Name,
		&item.UnitOfMeasure, &item.Cost, &item.Price, &item.IsActive, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, shared.NotFoundf("item")
		}
		return Item{}, err
	}
	return item, nil
}
