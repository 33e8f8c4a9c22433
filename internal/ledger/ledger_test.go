package ledger

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/stocknest/stocknest/internal/shared"
)

type execCall struct {
	sql  string
	args []any
}

type fakeQueryer struct {
	calls []execCall
	err   error
}

func (f *fakeQueryer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, nil
}

func (f *fakeQueryer) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("ledger.Apply must not query")
}

func (f *fakeQueryer) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("ledger.Apply must not query")
}

func validMovement() Movement {
	return Movement{
		TenantID:      uuid.New(),
		ItemID:        uuid.New(),
		LocationID:    uuid.New(),
		Quantity:      5,
		ReferenceType: ReferenceGoodsReceipt,
		ReferenceID:   uuid.New(),
		CreatedBy:     uuid.New(),
	}
}

func TestApplyWritesLevelThenMovement(t *testing.T) {
	q := &fakeQueryer{}
	in := validMovement()

	out, err := Apply(context.Background(), q, in)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, out.ID)
	require.False(t, out.CreatedAt.IsZero())
	require.Len(t, q.calls, 2)
	require.Contains(t, q.calls[0].sql, "inventory_levels")
	require.Contains(t, q.calls[0].sql, "ON CONFLICT")
	require.Contains(t, q.calls[1].sql, "stock_movements")
	require.Equal(t, in.Quantity, q.calls[0].args[3])
}

func TestApplyOutboundQuantity(t *testing.T) {
	q := &fakeQueryer{}
	in := validMovement()
	in.Quantity = -3

	_, err := Apply(context.Background(), q, in)
	require.NoError(t, err)
	require.Equal(t, int64(-3), q.calls[0].args[3])
}

func TestApplyRejectsInvalidMovements(t *testing.T) {
	cases := map[string]func(*Movement){
		"nil tenant":     func(m *Movement) { m.TenantID = uuid.Nil },
		"nil item":       func(m *Movement) { m.ItemID = uuid.Nil },
		"nil location":   func(m *Movement) { m.LocationID = uuid.Nil },
		"zero quantity":  func(m *Movement) { m.Quantity = 0 },
		"no reference":   func(m *Movement) { m.ReferenceType = "" },
		"nil ref id":     func(m *Movement) { m.ReferenceID = uuid.Nil },
	}
	for name, mutate := range cases {
		t.Run(strings.ReplaceAll(name, " ", "_"), func(t *testing.T) {
			q := &fakeQueryer{}
			m := validMovement()
			mutate(&m)
			_, err := Apply(context.Background(), q, m)
			require.ErrorIs(t, err, shared.ErrValidation)
			require.Empty(t, q.calls, "invalid movement must write nothing")
		})
	}
}
