package circulation

import (
	"context"
	"sort"
	"sync"
)

type memState struct {
	items   map[string]Item
	members map[string]Member
	loans   map[string]Loan
	fines   map[string]Fine
}

func newMemState() memState {
	return memState{
		items:   map[string]Item{},
		members: map[string]Member{},
		loans:   map[string]Loan{},
		fines:   map[string]Fine{},
	}
}

func (s memState) clone() memState {
	c := memState{
		items:   make(map[string]Item, len(s.items)),
		members: make(map[string]Member, len(s.members)),
		loans:   make(map[string]Loan, len(s.loans)),
		fines:   make(map[string]Fine, len(s.fines)),
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.loans {
		c.loans[k] = cloneLoan(v)
	}
	for k, v := range s.fines {
		c.fines[k] = v
	}
	return c
}

func cloneLoan(l Loan) Loan {
	if l.Renewals != nil {
		l.Renewals = append([]Renewal(nil), l.Renewals...)
	}
	return l
}

// MemStore keeps everything in process memory. Transactions are serialised
// and a failed one restores the state it started from.
type MemStore struct {
	mu    sync.RWMutex
	state memState
}

func NewMemStore() *MemStore {
	return &MemStore{state: newMemState()}
}

func (m *MemStore) RunInTx(ctx context.Context, fn func(ctx context.Context, r Repo) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.state.clone()
	if err := fn(ctx, &memRepo{state: &m.state}); err != nil {
		m.state = before
		return err
	}
	return nil
}

// ReadOnly runs fn against a private copy, so writes made by fn are dropped.
func (m *MemStore) ReadOnly(ctx context.Context, fn func(ctx context.Context, r Repo) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	view := m.state.clone()
	m.mu.RUnlock()
	return fn(ctx, &memRepo{state: &view})
}

type memRepo struct {
	state *memState
}

// ===== items =====

func (r *memRepo) LockItem(ctx context.Context, id string) (*Item, error) {
	// the store-wide lock taken by RunInTx already covers the item
	return r.GetItem(ctx, id)
}

func (r *memRepo) GetItem(_ context.Context, id string) (*Item, error) {
	it, ok := r.state.items[id]
	if !ok {
		return nil, NewNotFoundError(KindItem, id)
	}
	return &it, nil
}

func (r *memRepo) ListItems(_ context.Context) ([]Item, error) {
	out := make([]Item, 0, len(r.state.items))
	for _, it := range r.state.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) InsertItem(_ context.Context, it *Item) error {
	if _, ok := r.state.items[it.ID]; ok {
		return NewInvalidArgumentError("duplicate item id " + it.ID)
	}
	r.state.items[it.ID] = *it
	return nil
}

func (r *memRepo) UpdateItem(_ context.Context, it *Item) error {
	if _, ok := r.state.items[it.ID]; !ok {
		return NewNotFoundError(KindItem, it.ID)
	}
	r.state.items[it.ID] = *it
	return nil
}

func (r *memRepo) DeleteItem(_ context.Context, id string) error {
	if _, ok := r.state.items[id]; !ok {
		return NewNotFoundError(KindItem, id)
	}
	delete(r.state.items, id)
	return nil
}

// ===== members =====

func (r *memRepo) GetMember(_ context.Context, id string) (*Member, error) {
	m, ok := r.state.members[id]
	if !ok {
		return nil, NewNotFoundError(KindMember, id)
	}
	return &m, nil
}

func (r *memRepo) ListMembers(_ context.Context) ([]Member, error) {
	out := make([]Member, 0, len(r.state.members))
	for _, m := range r.state.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) InsertMember(_ context.Context, m *Member) error {
	if _, ok := r.state.members[m.ID]; ok {
		return NewInvalidArgumentError("duplicate member id " + m.ID)
	}
	r.state.members[m.ID] = *m
	return nil
}

func (r *memRepo) UpdateMember(_ context.Context, m *Member) error {
	if _, ok := r.state.members[m.ID]; !ok {
		return NewNotFoundError(KindMember, m.ID)
	}
	r.state.members[m.ID] = *m
	return nil
}

func (r *memRepo) DeleteMember(_ context.Context, id string) error {
	if _, ok := r.state.members[id]; !ok {
		return NewNotFoundError(KindMember, id)
	}
	delete(r.state.members, id)
	return nil
}

// ===== loans =====

func (r *memRepo) GetLoan(_ context.Context, id string) (*Loan, error) {
	l, ok := r.state.loans[id]
	if !ok {
		return nil, NewNotFoundError(KindLoan, id)
	}
	l = cloneLoan(l)
	return &l, nil
}

func (r *memRepo) LoansByItem(_ context.Context, itemID string) ([]Loan, error) {
	return r.loansWhere(func(l Loan) bool { return l.ItemID == itemID }), nil
}

func (r *memRepo) LoansByMember(_ context.Context, memberID string) ([]Loan, error) {
	return r.loansWhere(func(l Loan) bool { return l.MemberID == memberID }), nil
}

func (r *memRepo) loansWhere(match func(Loan) bool) []Loan {
	var out []Loan
	for _, l := range r.state.loans {
		if match(l) {
			out = append(out, cloneLoan(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memRepo) InsertLoan(_ context.Context, l *Loan) error {
	if _, ok := r.state.loans[l.ID]; ok {
		return NewInvalidArgumentError("duplicate loan id " + l.ID)
	}
	r.state.loans[l.ID] = cloneLoan(*l)
	return nil
}

func (r *memRepo) UpdateLoan(_ context.Context, l *Loan) error {
	if _, ok := r.state.loans[l.ID]; !ok {
		return NewNotFoundError(KindLoan, l.ID)
	}
	r.state.loans[l.ID] = cloneLoan(*l)
	return nil
}

func (r *memRepo) DeleteLoan(_ context.Context, id string) error {
	if _, ok := r.state.loans[id]; !ok {
		return NewNotFoundError(KindLoan, id)
	}
	delete(r.state.loans, id)
	return nil
}

// ===== fines =====

func (r *memRepo) GetFine(_ context.Context, id string) (*Fine, error) {
	f, ok := r.state.fines[id]
	if !ok {
		return nil, NewNotFoundError(KindFine, id)
	}
	return &f, nil
}

func (r *memRepo) FinesByMember(_ context.Context, memberID string) ([]Fine, error) {
	var out []Fine
	for _, f := range r.state.fines {
		if f.MemberID == memberID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) InsertFine(_ context.Context, f *Fine) error {
	if _, ok := r.state.fines[f.ID]; ok {
		return NewInvalidArgumentError("duplicate fine id " + f.ID)
	}
	r.state.fines[f.ID] = *f
	return nil
}

func (r *memRepo) UpdateFine(_ context.Context, f *Fine) error {
	if _, ok := r.state.fines[f.ID]; !ok {
		return NewNotFoundError(KindFine, f.ID)
	}
	r.state.fines[f.ID] = *f
	return nil
}

func (r *memRepo) DeleteFine(_ context.Context, id string) error {
	if _, ok := r.state.fines[id]; !ok {
		return NewNotFoundError(KindFine, id)
	}
	delete(r.state.fines, id)
	return nil
}
