package circulation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LIBRA-backend/internal/platform/db"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	conn, err := db.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store, err := NewSQLStore(conn, db.DriverSQLite)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, store.Migrate(context.Background()), "migrate is idempotent")
	return store
}

func TestNewSQLStoreUnknownDriver(t *testing.T) {
	_, err := NewSQLStore(nil, "postgres")
	assert.Error(t, err)
}

func TestSQLStoreLoanAndFineScenario(t *testing.T) {
	f := newFixtureWith(t, newSQLiteStore(t), testSettings())
	other := f.newMember(t, "Grace")

	a := f.lend(t, 0, 10)
	_, err := f.svc.ScheduleLoan(f.ctx, f.item.ID, other.ID, day(10), day(20))
	assert.ErrorIs(t, err, ErrItemUnavailable)
	_, err = f.svc.ScheduleLoan(f.ctx, f.item.ID, other.ID, day(11), day(20))
	require.NoError(t, err)

	_, err = f.svc.RenewItem(f.ctx, a.ID, day(15), time.Time{})
	assert.ErrorIs(t, err, ErrRenewalConflict)
	_, err = f.svc.RenewItem(f.ctx, a.ID, day(10).Add(6*time.Hour), time.Time{})
	require.NoError(t, err)

	got, err := f.svc.GetLoan(f.ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, got.Renewals, 1)
	assert.True(t, got.Renewals[0].PreviousEnd.Equal(day(10)))
	assert.True(t, got.End.Equal(day(10).Add(6*time.Hour)))
	require.NotNil(t, got.LoanedAt)
	assert.True(t, got.LoanedAt.Equal(day(0)))

	f.clock.Set(day(13).Add(6 * time.Hour))
	fine, err := f.svc.CreateFine(f.ctx, f.item.ID, time.Time{}, true)
	require.NoError(t, err)
	assert.True(t, fine.Amount.Equal(decimal.NewFromInt(6)))

	m := f.reloadMember(t)
	assert.True(t, m.Owed.Equal(decimal.NewFromInt(6)))
	got, err = f.svc.GetLoan(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, LoanReturnedLateWithFine, got.Status)
	assert.False(t, f.reloadItem(t).OnLoan())

	_, err = f.svc.CancelFine(f.ctx, fine.ID)
	require.NoError(t, err)
	assert.True(t, f.reloadMember(t).Owed.IsZero())
	_, err = f.svc.CancelFine(f.ctx, fine.ID)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestSQLStoreRollsBack(t *testing.T) {
	store := newSQLiteStore(t)
	f := newFixtureWith(t, store, testSettings())

	err := store.RunInTx(f.ctx, func(ctx context.Context, r Repo) error {
		it, err := r.GetItem(ctx, f.item.ID)
		if err != nil {
			return err
		}
		ghost := "ghost"
		it.CurrentMemberID, it.CurrentLoanID = &ghost, &ghost
		return r.UpdateItem(ctx, it)
	})
	require.NoError(t, err)

	_, err = f.svc.LoanItem(f.ctx, f.item.ID, f.member.ID, 3)
	require.ErrorIs(t, err, ErrGiveAfterSchedule)

	idx, err := f.svc.LoanIndex(f.ctx, f.item.ID)
	require.NoError(t, err)
	assert.Empty(t, idx)
}

func TestSQLStoreNotFoundAndDuplicates(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	err := store.ReadOnly(ctx, func(ctx context.Context, r Repo) error {
		_, err := r.GetItem(ctx, "nope")
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.RunInTx(ctx, func(ctx context.Context, r Repo) error {
		return r.UpdateMember(ctx, &Member{ID: "nope", Owed: decimal.Zero})
	})
	assert.ErrorIs(t, err, ErrNotFound)

	m := &Member{ID: "m1", Name: "Ada", Owed: decimal.RequireFromString("1.25"), CreatedAt: day0}
	require.NoError(t, store.RunInTx(ctx, func(ctx context.Context, r Repo) error {
		return r.InsertMember(ctx, m)
	}))
	err = store.RunInTx(ctx, func(ctx context.Context, r Repo) error {
		return r.InsertMember(ctx, m)
	})
	assert.Error(t, err)
	assert.Equal(t, 400, ToHTTPStatus(err))

	// unchanged update still succeeds
	require.NoError(t, store.RunInTx(ctx, func(ctx context.Context, r Repo) error {
		return r.UpdateMember(ctx, m)
	}))

	var got *Member
	require.NoError(t, store.ReadOnly(ctx, func(ctx context.Context, r Repo) error {
		var err error
		got, err = r.GetMember(ctx, "m1")
		return err
	}))
	assert.Equal(t, "1.25", got.Owed.String())
	assert.True(t, got.CreatedAt.Equal(day0))
}

func TestSQLStoreDeleteCascade(t *testing.T) {
	f := newFixtureWith(t, newSQLiteStore(t), testSettings())
	l := f.lend(t, 0, 10)
	_, err := f.svc.RenewItem(f.ctx, l.ID, day(12), time.Time{})
	require.NoError(t, err)
	f.clock.Set(day(5))
	_, err = f.svc.ReturnItem(f.ctx, f.item.ID, time.Time{}, false)
	require.NoError(t, err)

	rep, err := f.svc.DeleteObject(f.ctx, f.member.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []ObjectRef{{ID: l.ID, Kind: KindLoan}}, rep.Dependents)

	_, err = f.svc.GetLoan(f.ctx, l.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreConcurrentSchedulingAdmitsOne(t *testing.T) {
	f := newFixtureWith(t, newSQLiteStore(t), testSettings())
	assertOneOfConcurrentSchedules(t, f)

	// a second item is booked independently of the first
	other, err := f.svc.CreateItem(f.ctx, NewItem{Title: "Solaris", Loanable: true, Condition: ConditionGood})
	require.NoError(t, err)
	_, err = f.svc.ScheduleLoan(f.ctx, other.ID, f.member.ID, day(1), day(5))
	require.NoError(t, err)
}

func TestMySQLSchemaUsesInlineKeys(t *testing.T) {
	stmts := mysqlDialect.schema()
	require.NotEmpty(t, stmts)
	for _, s := range stmts {
		assert.NotContains(t, s, "CREATE INDEX")
		assert.Contains(t, s, "ENGINE=InnoDB")
	}
	assert.Contains(t, stmts[0], "DATETIME(6)")
}
