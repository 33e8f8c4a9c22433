// Package docflow bundles the transactional collaborators every document
// workflow needs: item resolution, number issuance, and ledger application,
// all bound to the same open transaction so a document action is one atomic
// unit of work.
package docflow

import (
	"context"

	"github.com/google/uuid"

	"github.com/stocknest/stocknest/internal/catalog"
	"github.com/stocknest/stocknest/internal/ledger"
	"github.com/stocknest/stocknest/internal/platform/db"
	"github.com/stocknest/stocknest/internal/sequence"
)

// TxDeps is embedded in each module's transactional repository. All calls
// run on the Queryer the repository was opened with.
type TxDeps struct {
	q        db.Queryer
	resolver *catalog.Resolver
	store    *catalog.PGStore
	seq      *sequence.Generator
}

func NewTxDeps(q db.Queryer) TxDeps {
	store := catalog.NewStore(q)
	return TxDeps{
		q:        q,
		resolver: catalog.NewResolver(store),
		store:    store,
		seq:      sequence.New(q),
	}
}

// ResolveItem runs the catalog match cascade inside the transaction.
func (d TxDeps) ResolveItem(ctx context.Context, tenantID uuid.UUID, ref catalog.Ref) (catalog.Item, bool, error) {
	return d.resolver.Resolve(ctx, tenantID, ref)
}

// NextNumber issues the next document number for the prefix.
func (d TxDeps) NextNumber(ctx context.Context, tenantID uuid.UUID, prefix string) (string, error) {
	return d.seq.Next(ctx, tenantID, prefix)
}

// ApplyMovement records a stock movement and adjusts the level.
func (d TxDeps) ApplyMovement(ctx context.Context, m ledger.Movement) (ledger.Movement, error) {
	return ledger.Apply(ctx, d.q, m)
}

// ItemSummaries loads line projections for read models.
func (d TxDeps) ItemSummaries(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]catalog.Summary, error) {
	return d.store.SummariesByIDs(ctx, tenantID, ids)
}
