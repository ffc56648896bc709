package circulation

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// ===== インターフェース群 =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

type IDGen interface {
	New() (string, error)
}

// ulidGen shares one monotonic entropy source so IDs minted in the same
// millisecond still sort in creation order.
type ulidGen struct {
	mu      sync.Mutex
	entropy io.Reader
}

func newULIDGen() *ulidGen {
	return &ulidGen{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *ulidGen) New() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), g.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ===== Service本体 =====

type Service struct {
	store    Store
	settings Settings
	clock    Clock
	id       IDGen
	notifier Notifier
	locks    *keyedMutex
}

type Option func(*Service)

func WithClock(c Clock) Option       { return func(s *Service) { s.clock = c } }
func WithIDGen(g IDGen) Option       { return func(s *Service) { s.id = g } }
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func NewService(store Store, settings Settings, opts ...Option) *Service {
	s := &Service{
		store:    store,
		settings: settings,
		clock:    realClock{},
		id:       newULIDGen(),
		notifier: nopNotifier{},
		locks:    newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Settings() Settings { return s.settings }

// orNow fills in the current time for an unset date.
func (s *Service) orNow(t time.Time) time.Time {
	if t.IsZero() {
		return s.clock.Now()
	}
	return t.UTC()
}

// pastOrNow is orNow for dates that must not lie in the future.
func (s *Service) pastOrNow(t time.Time) (time.Time, error) {
	now := s.clock.Now()
	if t.IsZero() {
		return now, nil
	}
	if t.After(now) {
		return time.Time{}, ErrDateInFuture
	}
	return t.UTC(), nil
}

func (s *Service) notify(ctx context.Context, sev Severity, format string, args ...any) {
	s.notifier.Notify(ctx, fmt.Sprintf(format, args...), sev)
}

// ===== 資料・利用者 =====

type NewItem struct {
	Title     string
	Author    string
	ISBN      string
	Barcode   string
	Loanable  bool
	Condition Condition
}

type NewMember struct {
	Name  string
	Email string
	Phone string
}

func (s *Service) CreateItem(ctx context.Context, in NewItem) (*Item, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, NewInvalidArgumentError("title is required")
	}
	if !in.Condition.Valid() {
		return nil, NewInvalidArgumentError("condition must be between 0 and 4")
	}
	isbn := ""
	if strings.TrimSpace(in.ISBN) != "" {
		isbn = SanitizeISBN(in.ISBN)
		if !ValidISBN(isbn) {
			return nil, withMessage(ErrInvalidISBN, "%q is not a valid ISBN-10 or ISBN-13", in.ISBN)
		}
	}

	id, err := s.id.New()
	if err != nil {
		return nil, err
	}
	it := &Item{
		ID:        id,
		Title:     title,
		Author:    strings.TrimSpace(in.Author),
		ISBN:      isbn,
		Barcode:   strings.TrimSpace(in.Barcode),
		Loanable:  in.Loanable,
		Condition: in.Condition,
		CreatedAt: s.clock.Now(),
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, r Repo) error {
		return r.InsertItem(ctx, it)
	})
	if err != nil {
		return nil, err
	}
	return it, nil
}

func (s *Service) CreateMember(ctx context.Context, in NewMember) (*Member, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, NewInvalidArgumentError("name is required")
	}
	id, err := s.id.New()
	if err != nil {
		return nil, err
	}
	m := &Member{
		ID:        id,
		Name:      name,
		Email:     strings.TrimSpace(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
		Owed:      decimal.Zero,
		CreatedAt: s.clock.Now(),
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, r Repo) error {
		return r.InsertMember(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ArchiveMember sets or clears the archived flag. Archived members keep
// their history but cannot be lent anything new.
func (s *Service) ArchiveMember(ctx context.Context, memberID string, archived bool) (*Member, error) {
	unlock := s.locks.Lock(memberID)
	defer unlock()

	var m *Member
	err := s.store.RunInTx(ctx, func(ctx context.Context, r Repo) error {
		var err error
		if m, err = r.GetMember(ctx, memberID); err != nil {
			return err
		}
		m.Archived = archived
		return r.UpdateMember(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) GetItem(ctx context.Context, id string) (*Item, error) {
	var it *Item
	err := s.store.ReadOnly(ctx, func(ctx context.Context, r Repo) error {
		var err error
		it, err = r.GetItem(ctx, id)
		return err
	})
	return it, err
}

func (s *Service) ListItems(ctx context.Context) ([]Item, error) {
	var out []Item
	err := s.store.ReadOnly(ctx, func(ctx context.Context, r Repo) error {
		var err error
		out, err = r.ListItems(ctx)
		return err
	})
	return out, err
}

func (s *Service) GetMember(ctx context.Context, id string) (*Member, error) {
	var m *Member
	err := s.store.ReadOnly(ctx, func(ctx context.Context, r Repo) error {
		var err error
		m, err = r.GetMember(ctx, id)
		return err
	})
	return m, err
}

func (s *Service) ListMembers(ctx context.Context) ([]Member, error) {
	var out []Member
	err := s.store.ReadOnly(ctx, func(ctx context.Context, r Repo) error {
		var err error
		out, err = r.ListMembers(ctx)
		return err
	})
	return out, err
}

func (s *Service) GetLoan(ctx context.Context, id string) (*Loan, error) {
	var l *Loan
	err := s.store.ReadOnly(ctx, func(ctx context.Context, r Repo) error {
		var err error
		l, err = r.GetLoan(ctx, id)
		return err
	})
	return l, err
}

func (s *Service) GetFine(ctx context.Context, id string) (*Fine, error) {
	var f *Fine
	err := s.store.ReadOnly(ctx, func(ctx context.Context, r Repo) error {
		var err error
		f, err = r.GetFine(ctx, id)
		return err
	})
	return f, err
}

func (s *Service) MemberFines(ctx context.Context, memberID string) ([]Fine, error) {
	var out []Fine
	err := s.store.ReadOnly(ctx, func(ctx context.Context, r Repo) error {
		if _, err := r.GetMember(ctx, memberID); err != nil {
			return err
		}
		var err error
		out, err = r.FinesByMember(ctx, memberID)
		return err
	})
	return out, err
}
