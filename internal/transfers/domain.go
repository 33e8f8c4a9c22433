package transfers

import (
	"time"

	"github.com/google/uuid"

	"github.com/stocknest/stocknest/internal/catalog"
)

// Status is the transfer lifecycle state. The naming is part of the external
// contract: approve lands IN_TRANSIT and ship lands RECEIVED; receive is the
// step that completes the transfer and moves stock.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusInTransit Status = "IN_TRANSIT"
	StatusReceived  Status = "RECEIVED"
	StatusCompleted Status = "COMPLETED"
	StatusCanceled  Status = "CANCELED"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Transfer is the document header.
type Transfer struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       uuid.UUID  `json:"-"`
	Number         string     `json:"number"`
	Status         Status     `json:"status"`
	FromLocationID uuid.UUID  `json:"from_location_id"`
	ToLocationID   uuid.UUID  `json:"to_location_id"`
	Note           string     `json:"note,omitempty"`
	ShippedAt      *time.Time `json:"shipped_at,omitempty"`
	ReceivedAt     *time.Time `json:"received_at,omitempty"`
	CreatedBy      uuid.UUID  `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Line is one transferred item.
type Line struct {
	ID         uuid.UUID       `json:"id"`
	TransferID uuid.UUID       `json:"transfer_id"`
	LineNo     int             `json:"line_no"`
	ItemID     uuid.UUID       `json:"item_id"`
	Item       catalog.Summary `json:"item"`
	Qty        int64           `json:"qty"`
	Note       string          `json:"note,omitempty"`
}
