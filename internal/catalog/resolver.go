package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stocknest/stocknest/internal/shared"
)

// Ref is one unresolved item reference on an incoming document line. Either
// ID or Identifier must be set. The hint fields only matter when AllowCreate
// is true and no existing item matches.
type Ref struct {
	ID            uuid.UUID
	Identifier    string
	Name          string
	UnitOfMeasure string
	Cost          decimal.Decimal
	AllowCreate   bool
}

// maxSKUSuffix bounds the vivification retry loop. Hitting it means the
// tenant has that many near-identical SKUs already, which is a data problem
// the caller should see, not paper over.
const maxSKUSuffix = 20

// Resolver maps free-form item references to catalog items, optionally
// creating a minimal item when nothing matches. The match cascade is ordered
// and short-circuits on the first hit, so the same input always resolves to
// the same item.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve runs the match cascade for one reference. The returned bool is
// true when a new item was vivified. An explicit ID is looked up directly
// and never falls through to creation.
func (r *Resolver) Resolve(ctx context.Context, tenantID uuid.UUID, ref Ref) (Item, bool, error) {
	if ref.ID != uuid.Nil {
		item, err := r.store.GetByID(ctx, tenantID, ref.ID)
		if err != nil {
			return Item{}, false, err
		}
		return item, false, nil
	}

	identifier := strings.TrimSpace(ref.Identifier)
	if identifier == "" {
		return Item{}, false, shared.Validationf("item reference requires an id or identifier")
	}

	// An identifier that parses as a UUID is an id lookup, full stop. It never
	// enters the SKU/name cascade and never vivifies.
	if id, err := uuid.Parse(identifier); err == nil {
		item, err := r.store.GetByID(ctx, tenantID, id)
		if err != nil {
			return Item{}, false, err
		}
		return item, false, nil
	}

	item, err := r.match(ctx, tenantID, identifier)
	if err == nil {
		return item, false, nil
	}
	if !shared.IsNotFound(err) {
		return Item{}, false, err
	}
	if !ref.AllowCreate {
		return Item{}, false, shared.NotFoundf("item %q", identifier)
	}

	created, err := r.vivify(ctx, tenantID, identifier, ref)
	if err != nil {
		return Item{}, false, err
	}
	return created, true, nil
}

// match tries each lookup strategy in order. Strategies that error for any
// reason other than no-match abort the cascade.
func (r *Resolver) match(ctx context.Context, tenantID uuid.UUID, identifier string) (Item, error) {
	strategies := []func(context.Context, uuid.UUID, string) (Item, error){
		r.store.FindBySKU,
		r.store.FindByNormalizedSKU,
		r.store.FindByBarcode,
		r.store.FindByNameExact,
		r.store.FindByNameSubstring,
	}
	for _, find := range strategies {
		item, err := find(ctx, tenantID, identifier)
		if err == nil {
			return item, nil
		}
		if !shared.IsNotFound(err) {
			return Item{}, err
		}
	}
	return Item{}, shared.NotFoundf("item %q", identifier)
}

// vivify creates a minimal active item from the reference. The SKU is derived
// from the identifier; on a unique collision a numeric suffix is appended and
// the insert retried.
func (r *Resolver) vivify(ctx context.Context, tenantID uuid.UUID, identifier string, ref Ref) (Item, error) {
	name := strings.TrimSpace(ref.Name)
	if name == "" {
		name = identifier
	}
	uom := strings.TrimSpace(ref.UnitOfMeasure)
	if uom == "" {
		uom = "EA"
	}

	base := SKUFromIdentifier(identifier)
	for attempt := 0; attempt <= maxSKUSuffix; attempt++ {
		sku := base
		if attempt > 0 {
			sku = fmt.Sprintf("%s-%d", base, attempt)
		}
		item := Item{
			ID:            uuid.New(),
			TenantID:      tenantID,
			SKU:           sku,
			Name:          name,
			UnitOfMeasure: uom,
			Cost:          ref.Cost,
			Price:         ref.Cost,
			IsActive:      true,
			CreatedAt:     time.Now(),
			UpdatedAt:     time.Now(),
		}
		err := r.store.Insert(ctx, item)
		if err == nil {
			return item, nil
		}
		if !shared.IsUniqueViolation(err) {
			return Item{}, err
		}
	}
	return Item{}, shared.Conflictf("could not derive unique sku from %q", identifier)
}

// SKUFromIdentifier derives a canonical SKU: uppercased, whitespace runs
// collapsed to single hyphens.
func SKUFromIdentifier(identifier string) string {
	fields := strings.Fields(strings.ToUpper(identifier))
	return strings.Join(fields, "-")
}
