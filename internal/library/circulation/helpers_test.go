package circulation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"LIBRA-backend/internal/library/schedule"
)

var day0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func day(n int) time.Time { return schedule.AddDays(day0, n) }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// seqIDs hands out zero-padded IDs so creation order is also sort order.
type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) New() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%06d", g.n), nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Notify(_ context.Context, msg string, sev Severity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, sev.String()+" "+msg)
}

type fixture struct {
	svc    *Service
	store  Store
	clock  *fakeClock
	notes  *recordingNotifier
	ctx    context.Context
	item   *Item
	member *Member
}

func testSettings() Settings {
	s := DefaultSettings()
	s.DailyFineRate = decimal.NewFromInt(2)
	return s
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, NewMemStore(), testSettings())
}

func newFixtureWith(t *testing.T, store Store, settings Settings) *fixture {
	t.Helper()
	f := &fixture{
		store: store,
		clock: &fakeClock{now: day0},
		notes: &recordingNotifier{},
		ctx:   context.Background(),
	}
	f.svc = NewService(store, settings, WithClock(f.clock), WithIDGen(&seqIDs{}), WithNotifier(f.notes))

	var err error
	f.item, err = f.svc.CreateItem(f.ctx, NewItem{Title: "The Left Hand of Darkness", Author: "Ursula K. Le Guin", Loanable: true, Condition: ConditionGood})
	require.NoError(t, err)
	f.member, err = f.svc.CreateMember(f.ctx, NewMember{Name: "Ada"})
	require.NoError(t, err)
	return f
}

func (f *fixture) newMember(t *testing.T, name string) *Member {
	t.Helper()
	m, err := f.svc.CreateMember(f.ctx, NewMember{Name: name})
	require.NoError(t, err)
	return m
}

// lend gives the fixture item to the fixture member from day `from` for
// `length` days.
func (f *fixture) lend(t *testing.T, from, length int) *Loan {
	t.Helper()
	f.clock.Set(day(from))
	l, err := f.svc.LoanItem(f.ctx, f.item.ID, f.member.ID, length)
	require.NoError(t, err)
	return l
}

func (f *fixture) reloadItem(t *testing.T) *Item {
	t.Helper()
	it, err := f.svc.GetItem(f.ctx, f.item.ID)
	require.NoError(t, err)
	return it
}

func (f *fixture) reloadMember(t *testing.T) *Member {
	t.Helper()
	m, err := f.svc.GetMember(f.ctx, f.member.ID)
	require.NoError(t, err)
	return m
}
