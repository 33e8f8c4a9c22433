// Package sequence issues tenant-scoped document numbers from a counter
// table. Numbers are gapless only to the extent that the issuing transaction
// commits; rolled-back transactions leave holes, which is acceptable.
package sequence

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/stocknest/stocknest/internal/platform/db"
	"github.com/stocknest/stocknest/internal/shared"
)

// Document number prefixes, one per document family.
const (
	PrefixPurchaseOrder = "PO"
	PrefixGoodsReceipt  = "GR"
	PrefixTransfer      = "TR"
	PrefixAdjustment    = "ADJ"
	PrefixCountBatch    = "CNT"
)

var prefixPattern = regexp.MustCompile(`^[A-Z]{1,8}$`)

// Generator issues the next document number for a tenant and prefix. It runs
// on a db.Queryer so the counter increment shares the document's transaction:
// if the document insert fails, the increment rolls back with it.
type Generator struct {
	q db.Queryer
}

func New(q db.Queryer) *Generator {
	return &Generator{q: q}
}

// Next increments the per-tenant counter for prefix and returns the formatted
// number. The row-level lock taken by the upsert serializes concurrent
// callers on the same (tenant, prefix) pair for the rest of their
// transactions, which is what makes issued numbers unique.
func (g *Generator) Next(ctx context.Context, tenantID uuid.UUID, prefix string) (string, error) {
	if tenantID == uuid.Nil {
		return "", shared.Validationf("tenant id is required")
	}
	if !prefixPattern.MatchString(prefix) {
		return "", shared.Validationf("invalid sequence prefix %q", prefix)
	}
	var lastValue int64
	err := g.q.QueryRow(ctx, `INSERT INTO document_sequences (tenant_id, prefix, last_value)
VALUES ($1, $2, 1)
ON CONFLICT (tenant_id, prefix)
DO UPDATE SET last_value = document_sequences.last_value + 1
RETURNING last_value`, tenantID, prefix).Scan(&lastValue)
	if err != nil {
		return "", fmt.Errorf("sequence: next %s: %w", prefix, err)
	}
	return Format(prefix, lastValue), nil
}

// Format renders a document number. Values beyond six digits widen naturally.
func Format(prefix string, value int64) string {
	return fmt.Sprintf("%s-%06d", prefix, value)
}
