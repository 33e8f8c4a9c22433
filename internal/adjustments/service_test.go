package adjustments

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/stocknest/stocknest/internal/catalog"
	"github.com/stocknest/stocknest/internal/ledger"
	"github.com/stocknest/stocknest/internal/shared"
)

type fakeRepo struct {
	adjustments map[uuid.UUID]Adjustment
	lines       map[uuid.UUID][]Line
	items       map[uuid.UUID]catalog.Item
	movements   []ledger.Movement
	seq         int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		adjustments: map[uuid.UUID]Adjustment{},
		lines:       map[uuid.UUID][]Line{},
		items:       map[uuid.UUID]catalog.Item{},
	}
}

func (f *fakeRepo) snapshot() *fakeRepo {
	cp := newFakeRepo()
	cp.movements = append([]ledger.Movement(nil), f.movements...)
	cp.seq = f.seq
	for k, v := range f.adjustments {
		cp.adjustments[k] = v
	}
	for k, v := range f.lines {
		cp.lines[k] = append([]Line(nil), v...)
	}
	for k, v := range f.items {
		cp.items[k] = v
	}
	return cp
}

func (f *fakeRepo) restore(snap *fakeRepo) {
	f.adjustments, f.lines, f.items = snap.adjustments, snap.lines, snap.items
	f.movements, f.seq = snap.movements, snap.seq
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snap := f.snapshot()
	if err := fn(ctx, f); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

func (f *fakeRepo) NextNumber(_ context.Context, _ uuid.UUID) (string, error) {
	f.seq++
	return fmt.Sprintf("ADJ-%06d", f.seq), nil
}

func (f *fakeRepo) ResolveItem(_ context.Context, tenantID uuid.UUID, ref catalog.Ref) (catalog.Item, bool, error) {
	for _, it := range f.items {
		if it.TenantID == tenantID && it.SKU == ref.Identifier {
			return it, false, nil
		}
	}
	if !ref.AllowCreate {
		return catalog.Item{}, false, shared.NotFoundf("item %q", ref.Identifier)
	}
	it := catalog.Item{ID: uuid.New(), TenantID: tenantID, SKU: catalog.SKUFromIdentifier(ref.Identifier), Name: ref.Identifier, UnitOfMeasure: "EA", IsActive: true}
	f.items[it.ID] = it
	return it, true, nil
}

func (f *fakeRepo) ApplyMovement(_ context.Context, m ledger.Movement) (ledger.Movement, error) {
	if m.ItemID == uuid.Nil || m.Quantity == 0 {
		return ledger.Movement{}, shared.Validationf("invalid movement")
	}
	m.ID = uuid.New()
	f.movements = append(f.movements, m)
	return m, nil
}

func (f *fakeRepo) InsertAdjustment(_ context.Context, adj Adjustment) error {
	adj.CreatedAt = time.Now()
	adj.UpdatedAt = adj.CreatedAt
	f.adjustments[adj.ID] = adj
	return nil
}

func (f *fakeRepo) GetAdjustmentForUpdate(_ context.Context, tenantID, id uuid.UUID) (Adjustment, error) {
	adj, ok := f.adjustments[id]
	if !ok || adj.TenantID != tenantID {
		return Adjustment{}, shared.NotFoundf("adjustment")
	}
	return adj, nil
}

func (f *fakeRepo) GetLines(_ context.Context, _, adjustmentID uuid.UUID) ([]Line, error) {
	return append([]Line(nil), f.lines[adjustmentID]...), nil
}

func (f *fakeRepo) InsertLine(_ context.Context, _ uuid.UUID, line Line) error {
	f.lines[line.AdjustmentID] = append(f.lines[line.AdjustmentID], line)
	return nil
}

func (f *fakeRepo) DeleteLines(_ context.Context, _, adjustmentID uuid.UUID) error {
	delete(f.lines, adjustmentID)
	return nil
}

func (f *fakeRepo) DeleteAdjustment(_ context.Context, _, id uuid.UUID) error {
	delete(f.adjustments, id)
	return nil
}

func (f *fakeRepo) SetApproved(_ context.Context, _, id, actorID uuid.UUID, at time.Time) error {
	adj := f.adjustments[id]
	adj.Status = StatusApproved
	adj.ApprovedBy, adj.ApprovedAt = &actorID, &at
	f.adjustments[id] = adj
	return nil
}

func (f *fakeRepo) Get(_ context.Context, tenantID, id uuid.UUID) (Adjustment, []Line, error) {
	adj, ok := f.adjustments[id]
	if !ok || adj.TenantID != tenantID {
		return Adjustment{}, nil, shared.NotFoundf("adjustment")
	}
	return adj, append([]Line(nil), f.lines[id]...), nil
}

func (f *fakeRepo) List(_ context.Context, tenantID uuid.UUID, _ ListFilter) ([]Adjustment, shared.Pagination, error) {
	var out []Adjustment
	for _, adj := range f.adjustments {
		if adj.TenantID == tenantID {
			out = append(out, adj)
		}
	}
	return out, shared.NewPagination(1, 20, len(out)), nil
}

func testTenant() shared.Tenant {
	return shared.Tenant{TenantID: uuid.New(), ActorID: uuid.New()}
}

func TestApproveAppliesDiffMovements(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	tenant := testTenant()
	location := uuid.New()

	adj, lines, err := svc.Create(context.Background(), tenant, CreateInput{
		LocationID: location,
		Reason:     "cycle count",
		Lines: []LineInput{
			{Item: catalog.Ref{Identifier: "OVER", AllowCreate: true}, QtyExpected: 10, QtyActual: 13},
			{Item: catalog.Ref{Identifier: "SHORT", AllowCreate: true}, QtyExpected: 10, QtyActual: 6},
			{Item: catalog.Ref{Identifier: "EXACT", AllowCreate: true}, QtyExpected: 5, QtyActual: 5},
		},
	})
	require.NoError(t, err)
	require.Len(t, lines, 3)

	require.NoError(t, svc.Approve(context.Background(), tenant, adj.ID))
	require.Equal(t, StatusApproved, repo.adjustments[adj.ID].Status)
	require.NotNil(t, repo.adjustments[adj.ID].ApprovedAt)

	require.Len(t, repo.movements, 2, "zero-diff line must not move stock")
	require.Equal(t, int64(3), repo.movements[0].Quantity)
	require.Equal(t, int64(-4), repo.movements[1].Quantity)
	for _, m := range repo.movements {
		require.Equal(t, ledger.ReferenceAdjustment, m.ReferenceType)
		require.Equal(t, location, m.LocationID)
	}
}

func TestUnresolvedLinePersistsWithoutItem(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	tenant := testTenant()

	adj, lines, err := svc.Create(context.Background(), tenant, CreateInput{
		LocationID: uuid.New(),
		Lines: []LineInput{
			{Item: catalog.Ref{Identifier: "DOES-NOT-EXIST", AllowCreate: false}, QtyExpected: 4, QtyActual: 9},
		},
	})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Nil(t, lines[0].ItemID)
	require.Equal(t, "DOES-NOT-EXIST", lines[0].Identifier)

	require.NoError(t, svc.Approve(context.Background(), tenant, adj.ID))
	require.Empty(t, repo.movements, "itemless line must generate no movement")
	require.Equal(t, StatusApproved, repo.adjustments[adj.ID].Status)
}

func TestApproveTwiceRejected(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	tenant := testTenant()

	adj, _, err := svc.Create(context.Background(), tenant, CreateInput{
		LocationID: uuid.New(),
		Lines:      []LineInput{{Item: catalog.Ref{Identifier: "W", AllowCreate: true}, QtyExpected: 1, QtyActual: 2}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Approve(context.Background(), tenant, adj.ID))
	require.ErrorIs(t, svc.Approve(context.Background(), tenant, adj.ID), shared.ErrInvalidTransition)
	require.Len(t, repo.movements, 1, "second approve must not duplicate the movement")
}

func TestDeleteOnlyWhileDraft(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	tenant := testTenant()

	adj, _, err := svc.Create(context.Background(), tenant, CreateInput{
		LocationID: uuid.New(),
		Lines:      []LineInput{{Item: catalog.Ref{Identifier: "W", AllowCreate: true}, QtyExpected: 1, QtyActual: 2}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), tenant, adj.ID))
	_, ok := repo.adjustments[adj.ID]
	require.False(t, ok)
	require.Empty(t, repo.lines[adj.ID])

	adj2, _, err := svc.Create(context.Background(), tenant, CreateInput{
		LocationID: uuid.New(),
		Lines:      []LineInput{{Item: catalog.Ref{Identifier: "W", AllowCreate: true}, QtyExpected: 1, QtyActual: 2}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(context.Background(), tenant, adj2.ID))
	require.ErrorIs(t, svc.Delete(context.Background(), tenant, adj2.ID), shared.ErrInvalidTransition)
	_, ok = repo.adjustments[adj2.ID]
	require.True(t, ok, "approved adjustment must survive delete attempts")
}
