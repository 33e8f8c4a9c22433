package transfers

import (
	"context"
	"errors"
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
	transfers map[uuid.UUID]Transfer
	lines     map[uuid.UUID][]Line
	items     map[uuid.UUID]catalog.Item
	movements []ledger.Movement
	seq       int64

	// failOnMovement forces the Nth ApplyMovement call to fail, counted
	// from 1. Zero disables the hook.
	failOnMovement int
	movementCalls  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		transfers: map[uuid.UUID]Transfer{},
		lines:     map[uuid.UUID][]Line{},
		items:     map[uuid.UUID]catalog.Item{},
	}
}

func (f *fakeRepo) snapshot() *fakeRepo {
	cp := newFakeRepo()
	cp.movements = append([]ledger.Movement(nil), f.movements...)
	cp.seq = f.seq
	for k, v := range f.transfers {
		cp.transfers[k] = v
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
	f.transfers, f.lines, f.items = snap.transfers, snap.lines, snap.items
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
	return fmt.Sprintf("TR-%06d", f.seq), nil
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
	f.movementCalls++
	if f.failOnMovement > 0 && f.movementCalls == f.failOnMovement {
		return ledger.Movement{}, errors.New("storage down")
	}
	m.ID = uuid.New()
	f.movements = append(f.movements, m)
	return m, nil
}

func (f *fakeRepo) InsertTransfer(_ context.Context, tr Transfer) error {
	tr.CreatedAt = time.Now()
	tr.UpdatedAt = tr.CreatedAt
	f.transfers[tr.ID] = tr
	return nil
}

func (f *fakeRepo) GetTransferForUpdate(_ context.Context, tenantID, id uuid.UUID) (Transfer, error) {
	tr, ok := f.transfers[id]
	if !ok || tr.TenantID != tenantID {
		return Transfer{}, shared.NotFoundf("transfer")
	}
	return tr, nil
}

func (f *fakeRepo) GetLines(_ context.Context, _, transferID uuid.UUID) ([]Line, error) {
	return append([]Line(nil), f.lines[transferID]...), nil
}

func (f *fakeRepo) InsertLine(_ context.Context, _ uuid.UUID, line Line) error {
	f.lines[line.TransferID] = append(f.lines[line.TransferID], line)
	return nil
}

func (f *fakeRepo) DeleteLines(_ context.Context, _, transferID uuid.UUID) error {
	delete(f.lines, transferID)
	return nil
}

func (f *fakeRepo) SetStatus(_ context.Context, _, id uuid.UUID, status Status) error {
	tr := f.transfers[id]
	tr.Status = status
	f.transfers[id] = tr
	return nil
}

func (f *fakeRepo) SetShipped(_ context.Context, _, id uuid.UUID, at time.Time) error {
	tr := f.transfers[id]
	tr.ShippedAt = &at
	f.transfers[id] = tr
	return nil
}

func (f *fakeRepo) SetReceived(_ context.Context, _, id uuid.UUID, at time.Time) error {
	tr := f.transfers[id]
	tr.ReceivedAt = &at
	f.transfers[id] = tr
	return nil
}

func (f *fakeRepo) Get(_ context.Context, tenantID, id uuid.UUID) (Transfer, []Line, error) {
	tr, ok := f.transfers[id]
	if !ok || tr.TenantID != tenantID {
		return Transfer{}, nil, shared.NotFoundf("transfer")
	}
	return tr, append([]Line(nil), f.lines[id]...), nil
}

func (f *fakeRepo) List(_ context.Context, tenantID uuid.UUID, _ ListFilter) ([]Transfer, shared.Pagination, error) {
	var out []Transfer
	for _, tr := range f.transfers {
		if tr.TenantID == tenantID {
			out = append(out, tr)
		}
	}
	return out, shared.NewPagination(1, 20, len(out)), nil
}

func testTenant() shared.Tenant {
	return shared.Tenant{TenantID: uuid.New(), ActorID: uuid.New()}
}

func seedTransfer(t *testing.T, svc *Service, tenant shared.Tenant) (Transfer, uuid.UUID, uuid.UUID) {
	t.Helper()
	from, to := uuid.New(), uuid.New()
	tr, _, err := svc.Create(context.Background(), tenant, CreateInput{
		FromLocationID: from,
		ToLocationID:   to,
		Lines:          []LineInput{{Item: catalog.Ref{Identifier: "WIDGET-1", AllowCreate: true}, Qty: 7}},
	})
	require.NoError(t, err)
	return tr, from, to
}

func TestCreateRejectsSameLocation(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	tenant := testTenant()
	loc := uuid.New()

	_, _, err := svc.Create(context.Background(), tenant, CreateInput{
		FromLocationID: loc,
		ToLocationID:   loc,
		Lines:          []LineInput{{Item: catalog.Ref{Identifier: "W", AllowCreate: true}, Qty: 1}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestTransferStatusSequence(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	tenant := testTenant()
	tr, _, _ := seedTransfer(t, svc, tenant)

	// ship before approve is rejected
	require.ErrorIs(t, svc.Ship(context.Background(), tenant, tr.ID), shared.ErrInvalidTransition)
	// receive before ship is rejected
	require.ErrorIs(t, svc.Receive(context.Background(), tenant, tr.ID), shared.ErrInvalidTransition)

	require.NoError(t, svc.Approve(context.Background(), tenant, tr.ID))
	require.Equal(t, StatusInTransit, repo.transfers[tr.ID].Status)

	require.NoError(t, svc.Ship(context.Background(), tenant, tr.ID))
	require.Equal(t, StatusReceived, repo.transfers[tr.ID].Status)
	require.NotNil(t, repo.transfers[tr.ID].ShippedAt)
	require.Empty(t, repo.movements, "shipping moves no stock")

	require.NoError(t, svc.Receive(context.Background(), tenant, tr.ID))
	require.Equal(t, StatusCompleted, repo.transfers[tr.ID].Status)
	require.NotNil(t, repo.transfers[tr.ID].ReceivedAt)

	// second receive must not duplicate movements
	require.ErrorIs(t, svc.Receive(context.Background(), tenant, tr.ID), shared.ErrInvalidTransition)
	require.Len(t, repo.movements, 2)
}

func TestReceiveAppliesPairedMovements(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	tenant := testTenant()
	tr, from, to := seedTransfer(t, svc, tenant)

	require.NoError(t, svc.Approve(context.Background(), tenant, tr.ID))
	require.NoError(t, svc.Ship(context.Background(), tenant, tr.ID))
	require.NoError(t, svc.Receive(context.Background(), tenant, tr.ID))

	require.Len(t, repo.movements, 2)
	out, in := repo.movements[0], repo.movements[1]
	require.Equal(t, int64(-7), out.Quantity)
	require.Equal(t, from, out.LocationID)
	require.Equal(t, int64(7), in.Quantity)
	require.Equal(t, to, in.LocationID)
	require.Equal(t, ledger.ReferenceTransfer, out.ReferenceType)
	require.Equal(t, ledger.ReferenceTransfer, in.ReferenceType)
	require.Equal(t, out.ItemID, in.ItemID)
}

func TestReceiveAtomicity(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	tenant := testTenant()
	tr, _, _ := seedTransfer(t, svc, tenant)

	require.NoError(t, svc.Approve(context.Background(), tenant, tr.ID))
	require.NoError(t, svc.Ship(context.Background(), tenant, tr.ID))

	// fail on the inbound half, after the outbound half succeeded
	repo.failOnMovement = 2
	err := svc.Receive(context.Background(), tenant, tr.ID)
	require.Error(t, err)
	require.Empty(t, repo.movements, "either both movements exist or neither")
	require.Equal(t, StatusReceived, repo.transfers[tr.ID].Status, "failed receive leaves status untouched")

	// retry once storage recovers
	repo.failOnMovement = 0
	require.NoError(t, svc.Receive(context.Background(), tenant, tr.ID))
	require.Len(t, repo.movements, 2)
	require.Equal(t, StatusCompleted, repo.transfers[tr.ID].Status)
}

func TestCancelBeforeCompletion(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	tenant := testTenant()
	tr, _, _ := seedTransfer(t, svc, tenant)

	require.NoError(t, svc.Approve(context.Background(), tenant, tr.ID))
	require.NoError(t, svc.Cancel(context.Background(), tenant, tr.ID))
	require.Equal(t, StatusCanceled, repo.transfers[tr.ID].Status)

	require.ErrorIs(t, svc.Approve(context.Background(), tenant, tr.ID), shared.ErrInvalidTransition)
	require.ErrorIs(t, svc.Cancel(context.Background(), tenant, tr.ID), shared.ErrInvalidTransition)
}
