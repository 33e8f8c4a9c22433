package receiving

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stocknest/stocknest/internal/catalog"
	"github.com/stocknest/stocknest/internal/ledger"
	"github.com/stocknest/stocknest/internal/shared"
)

type fakeRepo struct {
	receipts  map[uuid.UUID]GoodsReceipt
	lines     map[uuid.UUID][]Line
	items     map[uuid.UUID]catalog.Item
	movements []ledger.Movement
	levels    map[string]int64
	seq       int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		receipts: map[uuid.UUID]GoodsReceipt{},
		lines:    map[uuid.UUID][]Line{},
		items:    map[uuid.UUID]catalog.Item{},
		levels:   map[string]int64{},
	}
}

func (f *fakeRepo) snapshot() *fakeRepo {
	cp := newFakeRepo()
	cp.movements = append([]ledger.Movement(nil), f.movements...)
	cp.seq = f.seq
	for k, v := range f.receipts {
		cp.receipts[k] = v
	}
	for k, v := range f.lines {
		cp.lines[k] = append([]Line(nil), v...)
	}
	for k, v := range f.items {
		cp.items[k] = v
	}
	for k, v := range f.levels {
		cp.levels[k] = v
	}
	return cp
}

func (f *fakeRepo) restore(snap *fakeRepo) {
	f.receipts, f.lines, f.items = snap.receipts, snap.lines, snap.items
	f.movements, f.levels, f.seq = snap.movements, snap.levels, snap.seq
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
	return fmt.Sprintf("GR-%06d", f.seq), nil
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
	it := catalog.Item{ID: uuid.New(), TenantID: tenantID, SKU: catalog.SKUFromIdentifier(ref.Identifier), Name: ref.Identifier, UnitOfMeasure: "EA", Cost: ref.Cost, IsActive: true}
	f.items[it.ID] = it
	return it, true, nil
}

func (f *fakeRepo) ApplyMovement(_ context.Context, m ledger.Movement) (ledger.Movement, error) {
	if m.ItemID == uuid.Nil || m.Quantity == 0 {
		return ledger.Movement{}, shared.Validationf("invalid movement")
	}
	m.ID = uuid.New()
	f.movements = append(f.movements, m)
	f.levels[m.ItemID.String()+m.LocationID.String()] += m.Quantity
	return m, nil
}

func (f *fakeRepo) InsertReceipt(_ context.Context, gr GoodsReceipt) error {
	gr.CreatedAt = time.Now()
	gr.UpdatedAt = gr.CreatedAt
	f.receipts[gr.ID] = gr
	return nil
}

func (f *fakeRepo) GetReceiptForUpdate(_ context.Context, tenantID, id uuid.UUID) (GoodsReceipt, error) {
	gr, ok := f.receipts[id]
	if !ok || gr.TenantID != tenantID {
		return GoodsReceipt{}, shared.NotFoundf("goods receipt")
	}
	return gr, nil
}

func (f *fakeRepo) GetLines(_ context.Context, _, receiptID uuid.UUID) ([]Line, error) {
	return append([]Line(nil), f.lines[receiptID]...), nil
}

func (f *fakeRepo) InsertLine(_ context.Context, _ uuid.UUID, line Line) error {
	f.lines[line.ReceiptID] = append(f.lines[line.ReceiptID], line)
	return nil
}

func (f *fakeRepo) DeleteLines(_ context.Context, _, receiptID uuid.UUID) error {
	delete(f.lines, receiptID)
	return nil
}

func (f *fakeRepo) SetStatus(_ context.Context, _, id uuid.UUID, status Status) error {
	gr := f.receipts[id]
	gr.Status = status
	f.receipts[id] = gr
	return nil
}

func (f *fakeRepo) SetApproval(_ context.Context, _, id, actorID uuid.UUID, at time.Time) error {
	gr := f.receipts[id]
	gr.ApprovedBy, gr.ApprovedAt = &actorID, &at
	f.receipts[id] = gr
	return nil
}

func (f *fakeRepo) SetPosted(_ context.Context, _, id, actorID uuid.UUID, at time.Time) error {
	gr := f.receipts[id]
	gr.PostedBy, gr.PostedAt = &actorID, &at
	f.receipts[id] = gr
	return nil
}

func (f *fakeRepo) SetLocation(_ context.Context, _, id, locationID uuid.UUID) error {
	gr := f.receipts[id]
	gr.LocationID = &locationID
	f.receipts[id] = gr
	return nil
}

func (f *fakeRepo) Get(_ context.Context, tenantID, id uuid.UUID) (GoodsReceipt, []Line, error) {
	gr, ok := f.receipts[id]
	if !ok || gr.TenantID != tenantID {
		return GoodsReceipt{}, nil, shared.NotFoundf("goods receipt")
	}
	return gr, append([]Line(nil), f.lines[id]...), nil
}

func (f *fakeRepo) List(_ context.Context, tenantID uuid.UUID, _ ListFilter) ([]GoodsReceipt, shared.Pagination, error) {
	var out []GoodsReceipt
	for _, gr := range f.receipts {
		if gr.TenantID == tenantID {
			out = append(out, gr)
		}
	}
	return out, shared.NewPagination(1, 20, len(out)), nil
}

func testTenant() shared.Tenant {
	return shared.Tenant{TenantID: uuid.New(), ActorID: uuid.New()}
}

func TestGoodsReceiptHappyPath(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	tenant := testTenant()
	location := uuid.New()

	gr, lines, err := svc.Create(context.Background(), tenant, CreateInput{
		LocationID: location,
		Lines: []LineInput{{
			Item:     catalog.Ref{Identifier: "WIDGET-1", AllowCreate: true},
			Qty:      10,
			UnitCost: decimal.RequireFromString("2.50"),
		}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, gr.Status)
	require.Len(t, lines, 1)

	require.NoError(t, svc.Approve(context.Background(), tenant, gr.ID))
	require.Equal(t, StatusApproved, repo.receipts[gr.ID].Status)
	require.NotNil(t, repo.receipts[gr.ID].ApprovedAt)

	require.NoError(t, svc.Post(context.Background(), tenant, gr.ID, PostInput{}))
	require.Equal(t, StatusPosted, repo.receipts[gr.ID].Status)
	require.NotNil(t, repo.receipts[gr.ID].PostedAt)

	require.Len(t, repo.movements, 1)
	m := repo.movements[0]
	require.Equal(t, int64(10), m.Quantity)
	require.Equal(t, ledger.ReferenceGoodsReceipt, m.ReferenceType)
	require.Equal(t, location, m.LocationID)
	require.Equal(t, int64(10), repo.levels[m.ItemID.String()+location.String()])
}

func TestPostTwiceYieldsInvalidTransition(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	tenant := testTenant()

	gr, _, err := svc.Create(context.Background(), tenant, CreateInput{
		LocationID: uuid.New(),
		Lines:      []LineInput{{Item: catalog.Ref{Identifier: "W", AllowCreate: true}, Qty: 5}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(context.Background(), tenant, gr.ID))
	require.NoError(t, svc.Post(context.Background(), tenant, gr.ID, PostInput{}))

	err = svc.Post(context.Background(), tenant, gr.ID, PostInput{})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.Len(t, repo.movements, 1, "second post must not duplicate movements")
}

func TestPostRequiresLocation(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	tenant := testTenant()

	gr, _, err := svc.Create(context.Background(), tenant, CreateInput{
		Lines: []LineInput{{Item: catalog.Ref{Identifier: "W", AllowCreate: true}, Qty: 5}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(context.Background(), tenant, gr.ID))

	err = svc.Post(context.Background(), tenant, gr.ID, PostInput{})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.movements)
	require.Equal(t, StatusApproved, repo.receipts[gr.ID].Status, "failed post leaves status untouched")

	location := uuid.New()
	require.NoError(t, svc.Post(context.Background(), tenant, gr.ID, PostInput{LocationID: location}))
	require.Equal(t, StatusPosted, repo.receipts[gr.ID].Status)
	require.Equal(t, location, *repo.receipts[gr.ID].LocationID)
}

func TestPostSkipsZeroQtyLines(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	tenant := testTenant()

	gr, _, err := svc.Create(context.Background(), tenant, CreateInput{
		LocationID: uuid.New(),
		Lines: []LineInput{
			{Item: catalog.Ref{Identifier: "A", AllowCreate: true}, Qty: 5},
			{Item: catalog.Ref{Identifier: "B", AllowCreate: true}, Qty: 0},
		},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(context.Background(), tenant, gr.ID))
	require.NoError(t, svc.Post(context.Background(), tenant, gr.ID, PostInput{}))
	require.Len(t, repo.movements, 1, "zero-quantity line must not move stock")
}

func TestCancelAfterPostRejected(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	tenant := testTenant()

	gr, _, err := svc.Create(context.Background(), tenant, CreateInput{
		LocationID: uuid.New(),
		Lines:      []LineInput{{Item: catalog.Ref{Identifier: "W", AllowCreate: true}, Qty: 5}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(context.Background(), tenant, gr.ID))
	require.NoError(t, svc.Post(context.Background(), tenant, gr.ID, PostInput{}))

	require.ErrorIs(t, svc.Cancel(context.Background(), tenant, gr.ID), shared.ErrInvalidTransition)

	require.NoError(t, svc.Close(context.Background(), tenant, gr.ID))
	require.Equal(t, StatusClosed, repo.receipts[gr.ID].Status)
	require.ErrorIs(t, svc.Close(context.Background(), tenant, gr.ID), shared.ErrInvalidTransition)
}

func TestReplaceLinesReresolves(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	tenant := testTenant()

	gr, _, err := svc.Create(context.Background(), tenant, CreateInput{
		LocationID: uuid.New(),
		Lines:      []LineInput{{Item: catalog.Ref{Identifier: "OLD", AllowCreate: true}, Qty: 5}},
	})
	require.NoError(t, err)

	lines, err := svc.ReplaceLines(context.Background(), tenant, gr.ID, []LineInput{
		{Item: catalog.Ref{Identifier: "NEW", AllowCreate: true}, Qty: 2},
	})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, "NEW", lines[0].Item.SKU)

	_, err = svc.ReplaceLines(context.Background(), tenant, gr.ID, []LineInput{
		{Item: catalog.Ref{Identifier: "MISSING"}, Qty: 1},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Len(t, repo.lines[gr.ID], 1, "failed replacement must keep the old lines")
	require.Equal(t, "NEW", repo.lines[gr.ID][0].Item.SKU)
}
