package circulation

import "context"

// Repo is the entity store seen from inside a transaction. Getters return
// copies; changes only land through the matching Update call.
type Repo interface {
	// LockItem reads an item and holds it against concurrent scheduling
	// decisions until the transaction ends.
	LockItem(ctx context.Context, id string) (*Item, error)
	GetItem(ctx context.Context, id string) (*Item, error)
	ListItems(ctx context.Context) ([]Item, error)
	InsertItem(ctx context.Context, it *Item) error
	UpdateItem(ctx context.Context, it *Item) error
	DeleteItem(ctx context.Context, id string) error

	GetMember(ctx context.Context, id string) (*Member, error)
	ListMembers(ctx context.Context) ([]Member, error)
	InsertMember(ctx context.Context, m *Member) error
	UpdateMember(ctx context.Context, m *Member) error
	DeleteMember(ctx context.Context, id string) error

	GetLoan(ctx context.Context, id string) (*Loan, error)
	LoansByItem(ctx context.Context, itemID string) ([]Loan, error)
	LoansByMember(ctx context.Context, memberID string) ([]Loan, error)
	InsertLoan(ctx context.Context, l *Loan) error
	UpdateLoan(ctx context.Context, l *Loan) error
	DeleteLoan(ctx context.Context, id string) error

	GetFine(ctx context.Context, id string) (*Fine, error)
	FinesByMember(ctx context.Context, memberID string) ([]Fine, error)
	InsertFine(ctx context.Context, f *Fine) error
	UpdateFine(ctx context.Context, f *Fine) error
	DeleteFine(ctx context.Context, id string) error
}

// Store runs fn against a Repo. RunInTx commits when fn returns nil and
// discards every change otherwise.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, r Repo) error) error
	ReadOnly(ctx context.Context, fn func(ctx context.Context, r Repo) error) error
}
