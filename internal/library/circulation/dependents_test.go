package circulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// history builds one returned loan with a cancelled fine and one scheduled
// loan on the fixture item.
func history(t *testing.T, f *fixture) (fined *Loan, fine *Fine, scheduled *Loan) {
	t.Helper()
	fined = f.lend(t, 0, 10)
	f.clock.Set(day(12))
	fine, err := f.svc.CreateFine(f.ctx, f.item.ID, time.Time{}, true)
	require.NoError(t, err)

	scheduled, err = f.svc.ScheduleLoan(f.ctx, f.item.ID, f.member.ID, day(20), day(25))
	require.NoError(t, err)
	return fined, fine, scheduled
}

func TestDependentObjects(t *testing.T) {
	f := newFixture(t)
	fined, fine, scheduled := history(t, f)

	got, err := f.svc.DependentObjects(f.ctx, ObjectRef{ID: f.item.ID, Kind: KindItem})
	require.NoError(t, err)
	assert.Equal(t, []ObjectRef{
		{ID: fined.ID, Kind: KindLoan},
		{ID: fine.ID, Kind: KindFine},
		{ID: scheduled.ID, Kind: KindLoan},
	}, got)

	got, err = f.svc.DependentObjects(f.ctx, ObjectRef{ID: f.member.ID, Kind: KindMember})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = f.svc.DependentObjects(f.ctx, ObjectRef{ID: fined.ID, Kind: KindLoan})
	require.NoError(t, err)
	assert.Equal(t, []ObjectRef{{ID: fine.ID, Kind: KindFine}}, got)

	got, err = f.svc.DependentObjects(f.ctx, ObjectRef{ID: fine.ID, Kind: KindFine})
	require.NoError(t, err)
	assert.Equal(t, []ObjectRef{{ID: fined.ID, Kind: KindLoan}}, got)

	got, err = f.svc.DependentObjects(f.ctx, ObjectRef{ID: scheduled.ID, Kind: KindLoan})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestKindOf(t *testing.T) {
	f := newFixture(t)
	fined, fine, _ := history(t, f)

	for id, want := range map[string]ObjectKind{
		f.item.ID:   KindItem,
		f.member.ID: KindMember,
		fined.ID:    KindLoan,
		fine.ID:     KindFine,
	} {
		got, err := f.svc.KindOf(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got, id)
	}

	_, err := f.svc.KindOf(f.ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownObject)
}

func TestDeletionGuards(t *testing.T) {
	f := newFixture(t)
	f.lend(t, 0, 10)

	rep, err := f.svc.DeletionCheck(f.ctx, f.item.ID)
	require.NoError(t, err)
	assert.True(t, rep.Blocked)
	assert.Contains(t, rep.Reason, "on loan")

	_, err = f.svc.DeleteObject(f.ctx, f.item.ID, true)
	assert.ErrorIs(t, err, ErrDeletionBlocked)

	f.clock.Set(day(12))
	fine, err := f.svc.CreateFine(f.ctx, f.item.ID, time.Time{}, true)
	require.NoError(t, err)

	rep, err = f.svc.DeletionCheck(f.ctx, f.member.ID)
	require.NoError(t, err)
	assert.True(t, rep.Blocked, "member still has an active fine")

	_, err = f.svc.CancelFine(f.ctx, fine.ID)
	require.NoError(t, err)

	rep, err = f.svc.DeletionCheck(f.ctx, f.item.ID)
	require.NoError(t, err)
	assert.False(t, rep.Blocked)
	assert.Len(t, rep.Dependents, 2)

	_, err = f.svc.DeleteObject(f.ctx, f.item.ID, false)
	assert.ErrorIs(t, err, ErrConfirmationNeeded)
	_, err = f.svc.GetItem(f.ctx, f.item.ID)
	require.NoError(t, err, "unconfirmed delete leaves everything in place")
}

func TestDeleteObjectCascades(t *testing.T) {
	f := newFixture(t)
	fined, fine, scheduled := history(t, f)
	_, err := f.svc.CancelFine(f.ctx, fine.ID)
	require.NoError(t, err)

	rep, err := f.svc.DeleteObject(f.ctx, f.item.ID, true)
	require.NoError(t, err)
	assert.Len(t, rep.Dependents, 3)

	_, err = f.svc.GetItem(f.ctx, f.item.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.GetLoan(f.ctx, fined.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.GetLoan(f.ctx, scheduled.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.GetFine(f.ctx, fine.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.GetMember(f.ctx, f.member.ID)
	assert.NoError(t, err, "the member is not a dependent of the item")
}

func TestDeleteLeafWithoutConfirmation(t *testing.T) {
	f := newFixture(t)
	l, err := f.svc.ScheduleLoan(f.ctx, f.item.ID, f.member.ID, day(1), day(2))
	require.NoError(t, err)

	rep, err := f.svc.DeleteObject(f.ctx, l.ID, false)
	require.NoError(t, err)
	assert.Empty(t, rep.Dependents)

	idx, err := f.svc.LoanIndex(f.ctx, f.item.ID)
	require.NoError(t, err)
	assert.Empty(t, idx)
}
