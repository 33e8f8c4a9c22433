package receiving

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stocknest/stocknest/internal/catalog"
)

// Status is the goods receipt lifecycle state.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusApproved Status = "APPROVED"
	StatusPosted   Status = "POSTED"
	StatusClosed   Status = "CLOSED"
	StatusCanceled Status = "CANCELED"
)

func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusCanceled
}

// GoodsReceipt is the document header. LocationID may stay nil while DRAFT
// but must be set before posting.
type GoodsReceipt struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"-"`
	Number     string     `json:"number"`
	Status     Status     `json:"status"`
	LocationID *uuid.UUID `json:"location_id,omitempty"`
	Supplier   string     `json:"supplier,omitempty"`
	Note       string     `json:"note,omitempty"`
	ApprovedBy *uuid.UUID `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	PostedBy   *uuid.UUID `json:"posted_by,omitempty"`
	PostedAt   *time.Time `json:"posted_at,omitempty"`
	CreatedBy  uuid.UUID  `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Line is one received item.
type Line struct {
	ID        uuid.UUID       `json:"id"`
	ReceiptID uuid.UUID       `json:"receipt_id"`
	LineNo    int             `json:"line_no"`
	ItemID    uuid.UUID       `json:"item_id"`
	Item      catalog.Summary `json:"item"`
	Qty       int64           `json:"qty"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Note      string          `json:"note,omitempty"`
}
