// Package ledger is the single write path for stock quantities. Every
// workflow that changes stock goes through Apply on its own transaction
// handle; nothing else writes inventory_levels or stock_movements.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stocknest/stocknest/internal/platform/db"
	"github.com/stocknest/stocknest/internal/shared"
)

// Apply records one movement and adjusts the level in the caller's
// transaction. The level row is upserted with a single arithmetic statement,
// so concurrent appliers serialize on the row lock instead of racing a
// read-modify-write. Negative resulting on_hand is allowed; the ledger
// records reality, it does not police it.
func Apply(ctx context.Context, q db.Queryer, m Movement) (Movement, error) {
	if m.TenantID == uuid.Nil {
		return Movement{}, shared.Validationf("movement requires a tenant id")
	}
	if m.ItemID == uuid.Nil {
		return Movement{}, shared.Validationf("movement requires a resolved item")
	}
	if m.LocationID == uuid.Nil {
		return Movement{}, shared.Validationf("movement requires a location")
	}
	if m.Quantity == 0 {
		return Movement{}, shared.Validationf("movement quantity must be non-zero")
	}
	if m.ReferenceType == "" || m.ReferenceID == uuid.Nil {
		return Movement{}, shared.Validationf("movement requires a document reference")
	}

	_, err := q.Exec(ctx, `INSERT INTO inventory_levels (tenant_id, item_id, location_id, on_hand, allocated, available, updated_at)
VALUES ($1, $2, $3, $4, 0, $4, NOW())
ON CONFLICT (tenant_id, item_id, location_id)
DO UPDATE SET on_hand = inventory_levels.on_hand + EXCLUDED.on_hand,
              available = inventory_levels.on_hand + EXCLUDED.on_hand - inventory_levels.allocated,
              updated_at = NOW()`,
		m.TenantID, m.ItemID, m.LocationID, m.Quantity)
	if err != nil {
		return Movement{}, fmt.Errorf("ledger: adjust level: %w", err)
	}

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now()
	_, err = q.Exec(ctx, `INSERT INTO stock_movements (id, tenant_id, item_id, location_id, quantity, reference_type, reference_id, note, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.TenantID, m.ItemID, m.LocationID, m.Quantity, m.ReferenceType, m.ReferenceID, m.Note, m.CreatedBy, m.CreatedAt)
	if err != nil {
		return Movement{}, fmt.Errorf("ledger: append movement: %w", err)
	}
	return m, nil
}
