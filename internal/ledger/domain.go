package ledger

import (
	"time"

	"github.com/google/uuid"
)

// ReferenceType identifies the document family that caused a movement.
type ReferenceType string

const (
	ReferencePurchaseOrder ReferenceType = "PURCHASE_ORDER"
	ReferenceGoodsReceipt  ReferenceType = "GOODS_RECEIPT"
	ReferenceTransfer      ReferenceType = "TRANSFER"
	ReferenceAdjustment    ReferenceType = "ADJUSTMENT"
)

// Movement is one signed quantity change for an (item, location) pair.
// Positive quantity is inbound, negative outbound. Movements are append-only;
// corrections are new movements, never edits.
type Movement struct {
	ID            uuid.UUID     `json:"id"`
	TenantID      uuid.UUID     `json:"-"`
	ItemID        uuid.UUID     `json:"item_id"`
	LocationID    uuid.UUID     `json:"location_id"`
	Quantity      int64         `json:"quantity"`
	ReferenceType ReferenceType `json:"reference_type"`
	ReferenceID   uuid.UUID     `json:"reference_id"`
	Note          string        `json:"note,omitempty"`
	CreatedBy     uuid.UUID     `json:"created_by"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Level is the running balance for an (item, location) pair.
// Available is maintained as on_hand - allocated by the same statement that
// moves on_hand.
type Level struct {
	TenantID     uuid.UUID `json:"-"`
	ItemID       uuid.UUID `json:"item_id"`
	LocationID   uuid.UUID `json:"location_id"`
	OnHand       int64     `json:"on_hand"`
	Allocated    int64     `json:"allocated"`
	Available    int64     `json:"available"`
	ReorderPoint int64     `json:"reorder_point"`
	ReorderQty   int64     `json:"reorder_qty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Drift is one reconciliation finding: the movement sum disagrees with the
// stored level.
type Drift struct {
	ItemID      uuid.UUID `json:"item_id"`
	LocationID  uuid.UUID `json:"location_id"`
	OnHand      int64     `json:"on_hand"`
	MovementSum int64     `json:"movement_sum"`
	Delta       int64     `json:"delta"`
}
