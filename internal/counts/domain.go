package counts

import (
	"time"

	"github.com/google/uuid"

	"github.com/stocknest/stocknest/internal/catalog"
)

// Status is the count batch lifecycle state. Count batches record what was
// counted; they never move stock themselves. Posting the variance is an
// adjustment, created separately.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// CountBatch is the document header.
type CountBatch struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"-"`
	Number     string     `json:"number"`
	Status     Status     `json:"status"`
	LocationID uuid.UUID  `json:"location_id"`
	Note       string     `json:"note,omitempty"`
	ClosedBy   *uuid.UUID `json:"closed_by,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	CreatedBy  uuid.UUID  `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Line is one counted item. Unlike other documents, lines are added,
// updated, and deleted individually while the batch is open.
type Line struct {
	ID          uuid.UUID       `json:"id"`
	BatchID     uuid.UUID       `json:"batch_id"`
	ItemID      *uuid.UUID      `json:"item_id,omitempty"`
	Item        catalog.Summary `json:"item"`
	Identifier  string          `json:"identifier,omitempty"`
	QtyExpected int64           `json:"qty_expected"`
	QtyCounted  int64           `json:"qty_counted"`
	Note        string          `json:"note,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Variance is the signed difference between counted and expected.
func (l Line) Variance() int64 {
	return l.QtyCounted - l.QtyExpected
}
