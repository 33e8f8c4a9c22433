package adjustments

import (
	"time"

	"github.com/google/uuid"

	"github.com/stocknest/stocknest/internal/catalog"
)

// Status is the adjustment lifecycle state. APPROVED is terminal: the ledger
// effect has been applied and is never automatically reversed.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusApproved Status = "APPROVED"
)

// Adjustment is the document header. The location applies to every line.
type Adjustment struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"-"`
	Number     string     `json:"number"`
	Status     Status     `json:"status"`
	LocationID uuid.UUID  `json:"location_id"`
	Reason     string     `json:"reason,omitempty"`
	ApprovedBy *uuid.UUID `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	CreatedBy  uuid.UUID  `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Line is one counted discrepancy. ItemID is nil when the reference could
// not be resolved and creation was not allowed; such lines persist for the
// record but never move stock.
type Line struct {
	ID           uuid.UUID       `json:"id"`
	AdjustmentID uuid.UUID       `json:"adjustment_id"`
	LineNo       int             `json:"line_no"`
	ItemID       *uuid.UUID      `json:"item_id,omitempty"`
	Item         catalog.Summary `json:"item"`
	Identifier   string          `json:"identifier,omitempty"`
	QtyExpected  int64           `json:"qty_expected"`
	QtyActual    int64           `json:"qty_actual"`
	Note         string          `json:"note,omitempty"`
}

// QtyDiff is the signed movement the line produces on approval.
func (l Line) QtyDiff() int64 {
	return l.QtyActual - l.QtyExpected
}
