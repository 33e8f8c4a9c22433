package purchasing

import (
	"context"
	"errors"
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

// fakeRepo implements RepositoryPort and TxRepository in memory. WithTx
// snapshots state before the callback and restores it on error, mirroring a
// rolled-back transaction.
type fakeRepo struct {
	orders    map[uuid.UUID]PurchaseOrder
	lines     map[uuid.UUID][]Line
	items     map[uuid.UUID]catalog.Item
	movements []ledger.Movement
	seq       int64

	failMovement error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orders: map[uuid.UUID]PurchaseOrder{},
		lines:  map[uuid.UUID][]Line{},
		items:  map[uuid.UUID]catalog.Item{},
	}
}

func (f *fakeRepo) snapshot() *fakeRepo {
	cp := &fakeRepo{
		orders:    make(map[uuid.UUID]PurchaseOrder, len(f.orders)),
		lines:     make(map[uuid.UUID][]Line, len(f.lines)),
		items:     make(map[uuid.UUID]catalog.Item, len(f.items)),
		movements: append([]ledger.Movement(nil), f.movements...),
		seq:       f.seq,
	}
	for k, v := range f.orders {
		cp.orders[k] = v
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
	f.orders, f.lines, f.items = snap.orders, snap.lines, snap.items
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
	return fmt.Sprintf("PO-%06d", f.seq), nil
}

func (f *fakeRepo) ResolveItem(_ context.Context, tenantID uuid.UUID, ref catalog.Ref) (catalog.Item, bool, error) {
	if ref.ID != uuid.Nil {
		if it, ok := f.items[ref.ID]; ok && it.TenantID == tenantID {
			return it, false, nil
		}
		return catalog.Item{}, false, shared.NotFoundf("item")
	}
	for _, it := range f.items {
		if it.TenantID == tenantID && (it.SKU == ref.Identifier || it.Name == ref.Identifier) {
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
	if f.failMovement != nil {
		return ledger.Movement{}, f.failMovement
	}
	if m.ItemID == uuid.Nil || m.Quantity == 0 {
		return ledger.Movement{}, shared.Validationf("invalid movement")
	}
	m.ID = uuid.New()
	f.movements = append(f.movements, m)
	return m, nil
}

func (f *fakeRepo) InsertOrder(_ context.Context, po PurchaseOrder) error {
	po.CreatedAt = time.Now()
	po.UpdatedAt = po.CreatedAt
	f.orders[po.ID] = po
	return nil
}

func (f *fakeRepo) GetOrderForUpdate(_ context.Context, tenantID, id uuid.UUID) (PurchaseOrder, error) {
	po, ok := f.orders[id]
	if !ok || po.TenantID != tenantID {
		return PurchaseOrder{}, shared.NotFoundf("purchase order")
	}
	return po, nil
}

func (f *fakeRepo) GetLines(_ context.Context, _, orderID uuid.UUID) ([]Line, error) {
	return append([]Line(nil), f.lines[orderID]...), nil
}

func (f *fakeRepo) InsertLine(_ context.Context, _ uuid.UUID, line Line) error {
	f.lines[line.OrderID] = append(f.lines[line.OrderID], line)
	return nil
}

func (f *fakeRepo) DeleteLines(_ context.Context, _, orderID uuid.UUID) error {
	delete(f.lines, orderID)
	return nil
}

func (f *fakeRepo) UpdateLineReceived(_ context.Context, _, lineID uuid.UUID, qtyReceived int64) error {
	for orderID, lines := range f.lines {
		for i := range lines {
			if lines[i].ID == lineID {
				f.lines[orderID][i].QtyReceived = qtyReceived
				return nil
			}
		}
	}
	return shared.NotFoundf("purchase order line")
}

func (f *fakeRepo) SetStatus(_ context.Context, _, id uuid.UUID, status Status) error {
	po := f.orders[id]
	po.Status = status
	f.orders[id] = po
	return nil
}

func (f *fakeRepo) SetApproval(_ context.Context, _, id, actorID uuid.UUID, at time.Time) error {
	po := f.orders[id]
	po.ApprovedBy, po.ApprovedAt = &actorID, &at
	f.orders[id] = po
	return nil
}

func (f *fakeRepo) SetClosed(_ context.Context, _, id, actorID uuid.UUID, at time.Time) error {
	po := f.orders[id]
	po.ClosedBy, po.ClosedAt = &actorID, &at
	f.orders[id] = po
	return nil
}

func (f *fakeRepo) Get(_ context.Context, tenantID, id uuid.UUID) (PurchaseOrder, []Line, error) {
	po, ok := f.orders[id]
	if !ok || po.TenantID != tenantID {
		return PurchaseOrder{}, nil, shared.NotFoundf("purchase order")
	}
	return po, append([]Line(nil), f.lines[id]...), nil
}

func (f *fakeRepo) List(_ context.Context, tenantID uuid.UUID, _ ListFilter) ([]PurchaseOrder, shared.Pagination, error) {
	var out []PurchaseOrder
	for _, po := range f.orders {
		if po.TenantID == tenantID {
			out = append(out, po)
		}
	}
	return out, shared.NewPagination(1, 20, len(out)), nil
}

func testTenant() shared.Tenant {
	return shared.Tenant{TenantID: uuid.New(), ActorID: uuid.New()}
}

func seedOrder(t *testing.T, svc *Service, tenant shared.Tenant, qty int64) (PurchaseOrder, []Line) {
	t.Helper()
	po, lines, err := svc.Create(context.Background(), tenant, CreateInput{
		Supplier: "Acme Supply",
		Lines: []LineInput{{
			Item:       catalog.Ref{Identifier: "WIDGET-1", AllowCreate: true},
			QtyOrdered: qty,
			UnitCost:   decimal.New(250, -2),
		}},
	})
	require.NoError(t, err)
	return po, lines
}

func TestCreateValidatesLines(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	tenant := testTenant()

	_, _, err := svc.Create(context.Background(), tenant, CreateInput{})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, _, err = svc.Create(context.Background(), tenant, CreateInput{
		Lines: []LineInput{{Item: catalog.Ref{Identifier: "x"}, QtyOrdered: 0}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestApproveOnlyFromDraft(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	tenant := testTenant()
	po, _ := seedOrder(t, svc, tenant, 10)

	require.NoError(t, svc.Approve(context.Background(), tenant, po.ID))
	require.Equal(t, StatusApproved, repo.orders[po.ID].Status)
	require.NotNil(t, repo.orders[po.ID].ApprovedAt)

	err := svc.Approve(context.Background(), tenant, po.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition, "second approve must be rejected")
}

func TestPartialThenFullReceive(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	tenant := testTenant()
	po, lines := seedOrder(t, svc, tenant, 10)
	location := uuid.New()
	require.NoError(t, svc.Approve(context.Background(), tenant, po.ID))

	status, err := svc.Receive(context.Background(), tenant, po.ID, ReceiveInput{
		LocationID: location,
		Lines:      []ReceiveLineInput{{LineID: lines[0].ID, Qty: 4}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPartial, status)
	require.Equal(t, int64(4), repo.lines[po.ID][0].QtyReceived)
	require.Len(t, repo.movements, 1)
	require.Equal(t, int64(4), repo.movements[0].Quantity)
	require.Equal(t, ledger.ReferencePurchaseOrder, repo.movements[0].ReferenceType)

	status, err = svc.Receive(context.Background(), tenant, po.ID, ReceiveInput{
		LocationID: location,
		Lines:      []ReceiveLineInput{{LineID: lines[0].ID, Qty: 6}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusReceived, status)
	require.Equal(t, int64(10), repo.lines[po.ID][0].QtyReceived)
	require.Len(t, repo.movements, 2)

	_, err = svc.Receive(context.Background(), tenant, po.ID, ReceiveInput{
		LocationID: location,
		Lines:      []ReceiveLineInput{{LineID: lines[0].ID, Qty: 1}},
	})
	require.ErrorIs(t, err, shared.ErrValidation, "fully received order accepts no more stock")
	require.Len(t, repo.movements, 2)
}

func TestReceiveExceedingOrderedRollsBack(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	tenant := testTenant()
	po, lines := seedOrder(t, svc, tenant, 10)
	require.NoError(t, svc.Approve(context.Background(), tenant, po.ID))

	_, err := svc.Receive(context.Background(), tenant, po.ID, ReceiveInput{
		LocationID: uuid.New(),
		Lines:      []ReceiveLineInput{{LineID: lines[0].ID, Qty: 11}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.movements, "failed receive must leave no movements")
	require.Equal(t, int64(0), repo.lines[po.ID][0].QtyReceived)
	require.Equal(t, StatusApproved, repo.orders[po.ID].Status)
}

func TestReceiveFailureLeavesLinesUntouched(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	tenant := testTenant()
	po, lines := seedOrder(t, svc, tenant, 10)
	require.NoError(t, svc.Approve(context.Background(), tenant, po.ID))

	repo.failMovement = errors.New("storage down")
	_, err := svc.Receive(context.Background(), tenant, po.ID, ReceiveInput{
		LocationID: uuid.New(),
		Lines:      []ReceiveLineInput{{LineID: lines[0].ID, Qty: 4}},
	})
	require.Error(t, err)
	require.Equal(t, int64(0), repo.lines[po.ID][0].QtyReceived, "line update must roll back with the movement")
	require.Empty(t, repo.movements)
}

func TestCancelRejectedAfterReceipt(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	tenant := testTenant()
	po, lines := seedOrder(t, svc, tenant, 10)
	require.NoError(t, svc.Approve(context.Background(), tenant, po.ID))

	_, err := svc.Receive(context.Background(), tenant, po.ID, ReceiveInput{
		LocationID: uuid.New(),
		Lines:      []ReceiveLineInput{{LineID: lines[0].ID, Qty: 4}},
	})
	require.NoError(t, err)

	err = svc.Cancel(context.Background(), tenant, po.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestCloseIsTerminal(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	tenant := testTenant()
	po, _ := seedOrder(t, svc, tenant, 10)

	require.NoError(t, svc.Close(context.Background(), tenant, po.ID))
	require.Equal(t, StatusClosed, repo.orders[po.ID].Status)

	require.ErrorIs(t, svc.Close(context.Background(), tenant, po.ID), shared.ErrInvalidTransition)
	require.ErrorIs(t, svc.Approve(context.Background(), tenant, po.ID), shared.ErrInvalidTransition)
}

func TestReplaceLinesOnlyInDraft(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	tenant := testTenant()
	po, _ := seedOrder(t, svc, tenant, 10)

	replaced, err := svc.ReplaceLines(context.Background(), tenant, po.ID, []LineInput{
		{Item: catalog.Ref{Identifier: "BOLT-9", AllowCreate: true}, QtyOrdered: 3},
		{Item: catalog.Ref{Identifier: "NUT-9", AllowCreate: true}, QtyOrdered: 7},
	})
	require.NoError(t, err)
	require.Len(t, replaced, 2)
	require.Equal(t, 1, replaced[0].LineNo)
	require.Equal(t, 2, replaced[1].LineNo)
	require.Len(t, repo.lines[po.ID], 2)

	require.NoError(t, svc.Approve(context.Background(), tenant, po.ID))
	_, err = svc.ReplaceLines(context.Background(), tenant, po.ID, []LineInput{
		{Item: catalog.Ref{Identifier: "BOLT-9"}, QtyOrdered: 1},
	})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.Len(t, repo.lines[po.ID], 2, "approved order keeps its lines")
}

func TestTenantMismatchIsNotFound(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	tenant := testTenant()
	po, _ := seedOrder(t, svc, tenant, 10)

	other := testTenant()
	err := svc.Approve(context.Background(), other, po.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
