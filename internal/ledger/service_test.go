package ledger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/stocknest/stocknest/internal/shared"
)

type fakeLevelReader struct {
	levels   map[string]Level
	getCalls int
}

func pairKey(tenantID, itemID, locationID uuid.UUID) string {
	return tenantID.String() + itemID.String() + locationID.String()
}

func (f *fakeLevelReader) GetLevel(_ context.Context, tenantID, itemID, locationID uuid.UUID) (Level, error) {
	f.getCalls++
	if lvl, ok := f.levels[pairKey(tenantID, itemID, locationID)]; ok {
		return lvl, nil
	}
	return Level{TenantID: tenantID, ItemID: itemID, LocationID: locationID}, nil
}

func (f *fakeLevelReader) ListLevels(context.Context, uuid.UUID, LevelFilter) ([]Level, shared.Pagination, error) {
	return nil, shared.Pagination{}, nil
}

func (f *fakeLevelReader) ListMovements(context.Context, uuid.UUID, MovementFilter) ([]Movement, shared.Pagination, error) {
	return nil, shared.Pagination{}, nil
}

func (f *fakeLevelReader) LowStock(context.Context, uuid.UUID) ([]Level, error) { return nil, nil }

func (f *fakeLevelReader) Reconcile(context.Context, uuid.UUID) ([]Drift, error) { return nil, nil }

func (f *fakeLevelReader) UpdateReorderPolicy(_ context.Context, tenantID, itemID, locationID uuid.UUID, point, qty int64) error {
	if f.levels == nil {
		f.levels = map[string]Level{}
	}
	key := pairKey(tenantID, itemID, locationID)
	lvl := f.levels[key]
	lvl.TenantID, lvl.ItemID, lvl.LocationID = tenantID, itemID, locationID
	lvl.ReorderPoint, lvl.ReorderQty = point, qty
	f.levels[key] = lvl
	return nil
}

func newCachedService(t *testing.T) (*Service, *fakeLevelReader) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := &fakeLevelReader{levels: map[string]Level{}}
	return NewService(repo, client, slog.Default()), repo
}

func TestGetLevelReadThrough(t *testing.T) {
	svc, repo := newCachedService(t)
	tenant := shared.Tenant{TenantID: uuid.New(), ActorID: uuid.New()}
	itemID, locationID := uuid.New(), uuid.New()
	repo.levels[pairKey(tenant.TenantID, itemID, locationID)] = Level{
		TenantID: tenant.TenantID, ItemID: itemID, LocationID: locationID,
		OnHand: 12, Available: 12,
	}

	first, err := svc.GetLevel(context.Background(), tenant, itemID, locationID)
	require.NoError(t, err)
	require.Equal(t, int64(12), first.OnHand)
	require.Equal(t, 1, repo.getCalls)

	second, err := svc.GetLevel(context.Background(), tenant, itemID, locationID)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, repo.getCalls, "second read must come from cache")
}

func TestGetLevelZeroWhenUntracked(t *testing.T) {
	svc, _ := newCachedService(t)
	tenant := shared.Tenant{TenantID: uuid.New(), ActorID: uuid.New()}

	lvl, err := svc.GetLevel(context.Background(), tenant, uuid.New(), uuid.New())
	require.NoError(t, err)
	require.Zero(t, lvl.OnHand)
	require.Zero(t, lvl.Available)
}

func TestInvalidateLevelsForcesReread(t *testing.T) {
	svc, repo := newCachedService(t)
	tenant := shared.Tenant{TenantID: uuid.New(), ActorID: uuid.New()}
	itemID, locationID := uuid.New(), uuid.New()
	key := pairKey(tenant.TenantID, itemID, locationID)
	repo.levels[key] = Level{TenantID: tenant.TenantID, ItemID: itemID, LocationID: locationID, OnHand: 3, Available: 3}

	_, err := svc.GetLevel(context.Background(), tenant, itemID, locationID)
	require.NoError(t, err)

	lvl := repo.levels[key]
	lvl.OnHand, lvl.Available = 8, 8
	repo.levels[key] = lvl
	svc.InvalidateLevels(context.Background(), tenant.TenantID, [2]uuid.UUID{itemID, locationID})

	fresh, err := svc.GetLevel(context.Background(), tenant, itemID, locationID)
	require.NoError(t, err)
	require.Equal(t, int64(8), fresh.OnHand)
	require.Equal(t, 2, repo.getCalls)
}

func TestSetReorderPolicyValidatesAndInvalidates(t *testing.T) {
	svc, _ := newCachedService(t)
	tenant := shared.Tenant{TenantID: uuid.New(), ActorID: uuid.New()}
	itemID, locationID := uuid.New(), uuid.New()

	err := svc.SetReorderPolicy(context.Background(), tenant, uuid.Nil, locationID, 5, 10)
	require.ErrorIs(t, err, shared.ErrValidation)

	// Prime the cache, then update the policy; the next read must see it.
	_, err = svc.GetLevel(context.Background(), tenant, itemID, locationID)
	require.NoError(t, err)

	require.NoError(t, svc.SetReorderPolicy(context.Background(), tenant, itemID, locationID, 5, 10))
	lvl, err := svc.GetLevel(context.Background(), tenant, itemID, locationID)
	require.NoError(t, err)
	require.Equal(t, int64(5), lvl.ReorderPoint)
	require.Equal(t, int64(10), lvl.ReorderQty)
}
