package purchasing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stocknest/stocknest/internal/catalog"
)

// Status is the purchase order lifecycle state.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusApproved Status = "APPROVED"
	StatusPartial  Status = "PARTIAL"
	StatusReceived Status = "RECEIVED"
	StatusClosed   Status = "CLOSED"
	StatusCanceled Status = "CANCELED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusCanceled
}

// PurchaseOrder is the document header.
type PurchaseOrder struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"-"`
	Number     string     `json:"number"`
	Status     Status     `json:"status"`
	Supplier   string     `json:"supplier"`
	Note       string     `json:"note,omitempty"`
	ApprovedBy *uuid.UUID `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	ClosedBy   *uuid.UUID `json:"closed_by,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	CreatedBy  uuid.UUID  `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Line is one ordered item. QtyReceived accumulates across receive calls and
// never exceeds QtyOrdered.
type Line struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	LineNo      int             `json:"line_no"`
	ItemID      uuid.UUID       `json:"item_id"`
	Item        catalog.Summary `json:"item"`
	QtyOrdered  int64           `json:"qty_ordered"`
	QtyReceived int64           `json:"qty_received"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Note        string          `json:"note,omitempty"`
}

// FullyReceived reports whether the line needs no more stock.
func (l Line) FullyReceived() bool {
	return l.QtyReceived >= l.QtyOrdered
}

// recomputeStatus derives the post-receive status from the lines.
func recomputeStatus(lines []Line) Status {
	all := true
	any := false
	for _, l := range lines {
		if l.QtyReceived > 0 {
			any = true
		}
		if !l.FullyReceived() {
			all = false
		}
	}
	switch {
	case all && len(lines) > 0:
		return StatusReceived
	case any:
		return StatusPartial
	default:
		return StatusApproved
	}
}
