package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/stocknest/stocknest/internal/shared"
)

const levelCacheTTL = 30 * time.Second

// LevelReader is the slice of Repository the service needs, kept narrow for
// tests.
type LevelReader interface {
	GetLevel(ctx context.Context, tenantID, itemID, locationID uuid.UUID) (Level, error)
	ListLevels(ctx context.Context, tenantID uuid.UUID, f LevelFilter) ([]Level, shared.Pagination, error)
	ListMovements(ctx context.Context, tenantID uuid.UUID, f MovementFilter) ([]Movement, shared.Pagination, error)
	LowStock(ctx context.Context, tenantID uuid.UUID) ([]Level, error)
	Reconcile(ctx context.Context, tenantID uuid.UUID) ([]Drift, error)
	UpdateReorderPolicy(ctx context.Context, tenantID, itemID, locationID uuid.UUID, point, qty int64) error
}

// Service serves ledger reads with a short-TTL read-through cache on single
// level lookups. Stale reads within the TTL are acceptable for dashboards;
// workflows never read stock through here, they see the row inside their
// own transaction.
type Service struct {
	repo   LevelReader
	cache  *redis.Client
	group  singleflight.Group
	logger *slog.Logger
}

func NewService(repo LevelReader, cache *redis.Client, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

func levelKey(tenantID, itemID, locationID uuid.UUID) string {
	return fmt.Sprintf("stocknest:level:%s:%s:%s", tenantID, itemID, locationID)
}

// GetLevel returns the balance for one pair, serving from cache when fresh.
// Concurrent misses for the same key share one database read.
func (s *Service) GetLevel(ctx context.Context, tenant shared.Tenant, itemID, locationID uuid.UUID) (Level, error) {
	key := levelKey(tenant.TenantID, itemID, locationID)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var lvl Level
			if err := json.Unmarshal(raw, &lvl); err == nil {
				return lvl, nil
			}
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		lvl, err := s.repo.GetLevel(ctx, tenant.TenantID, itemID, locationID)
		if err != nil {
			return Level{}, err
		}
		if s.cache != nil {
			if raw, err := json.Marshal(lvl); err == nil {
				if err := s.cache.Set(ctx, key, raw, levelCacheTTL).Err(); err != nil {
					s.logger.Warn("level cache set failed", "error", err)
				}
			}
		}
		return lvl, nil
	})
	if err != nil {
		return Level{}, err
	}
	return v.(Level), nil
}

// InvalidateLevels drops cached entries for the given pairs. Callers invoke
// this after a committed ledger write; a miss just means the next read goes
// to the database.
func (s *Service) InvalidateLevels(ctx context.Context, tenantID uuid.UUID, pairs ...[2]uuid.UUID) {
	if s.cache == nil || len(pairs) == 0 {
		return
	}
	keys := make([]string, 0, len(pairs))
	for _, p := range pairs {
		keys = append(keys, levelKey(tenantID, p[0], p[1]))
	}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn("level cache invalidation failed", "error", err)
	}
}

func (s *Service) ListLevels(ctx context.Context, tenant shared.Tenant, f LevelFilter) ([]Level, shared.Pagination, error) {
	return s.repo.ListLevels(ctx, tenant.TenantID, f)
}

func (s *Service) ListMovements(ctx context.Context, tenant shared.Tenant, f MovementFilter) ([]Movement, shared.Pagination, error) {
	return s.repo.ListMovements(ctx, tenant.TenantID, f)
}

func (s *Service) LowStock(ctx context.Context, tenant shared.Tenant) ([]Level, error) {
	return s.repo.LowStock(ctx, tenant.TenantID)
}

func (s *Service) Reconcile(ctx context.Context, tenant shared.Tenant) ([]Drift, error) {
	return s.repo.Reconcile(ctx, tenant.TenantID)
}

// SetReorderPolicy updates the reorder thresholds and drops the cached level.
func (s *Service) SetReorderPolicy(ctx context.Context, tenant shared.Tenant, itemID, locationID uuid.UUID, point, qty int64) error {
	if itemID == uuid.Nil || locationID == uuid.Nil {
		return shared.Validationf("item and location are required")
	}
	if err := s.repo.UpdateReorderPolicy(ctx, tenant.TenantID, itemID, locationID, point, qty); err != nil {
		return err
	}
	s.InvalidateLevels(ctx, tenant.TenantID, [2]uuid.UUID{itemID, locationID})
	return nil
}
