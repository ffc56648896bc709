package circulation

import (
	"context"
	"errors"
)

// ===== 依存オブジェクト =====

// kindOf works out which kind of object id belongs to.
func kindOf(ctx context.Context, r Repo, id string) (ObjectKind, error) {
	lookups := []struct {
		kind ObjectKind
		get  func(context.Context, string) error
	}{
		{KindItem, func(ctx context.Context, id string) error { _, err := r.GetItem(ctx, id); return err }},
		{KindMember, func(ctx context.Context, id string) error { _, err := r.GetMember(ctx, id); return err }},
		{KindLoan, func(ctx context.Context, id string) error { _, err := r.GetLoan(ctx, id); return err }},
		{KindFine, func(ctx context.Context, id string) error { _, err := r.GetFine(ctx, id); return err }},
	}
	for _, l := range lookups {
		err := l.get(ctx, id)
		if err == nil {
			return l.kind, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", withMessage(ErrUnknownObject, "%s is not a library object", id)
}

// KindOf resolves the kind of the object with the given id.
func (s *Service) KindOf(ctx context.Context, id string) (ObjectKind, error) {
	var kind ObjectKind
	err := s.store.ReadOnly(ctx, func(ctx context.Context, r Repo) error {
		var err error
		kind, err = kindOf(ctx, r, id)
		return err
	})
	return kind, err
}

// DependentObjects lists, depth first, every object that would be orphaned
// by deleting ref. The reference graph runs Item/Member -> Loan -> Fine;
// a Fine also pulls in its Loan.
func (s *Service) DependentObjects(ctx context.Context, ref ObjectRef) ([]ObjectRef, error) {
	var out []ObjectRef
	err := s.store.ReadOnly(ctx, func(ctx context.Context, r Repo) error {
		var err error
		out, err = dependents(ctx, r, ref)
		return err
	})
	return out, err
}

func dependents(ctx context.Context, r Repo, root ObjectRef) ([]ObjectRef, error) {
	w := &walker{r: r, seen: map[ObjectRef]bool{}}
	if err := w.walk(ctx, root); err != nil {
		return nil, err
	}
	return w.out, nil
}

type walker struct {
	r    Repo
	out  []ObjectRef
	seen map[ObjectRef]bool
}

func (w *walker) add(ref ObjectRef) bool {
	if w.seen[ref] {
		return false
	}
	w.seen[ref] = true
	w.out = append(w.out, ref)
	return true
}

func (w *walker) walk(ctx context.Context, ref ObjectRef) error {
	switch ref.Kind {
	case KindItem, KindMember:
		var (
			loans []Loan
			err   error
		)
		if ref.Kind == KindItem {
			loans, err = w.r.LoansByItem(ctx, ref.ID)
		} else {
			loans, err = w.r.LoansByMember(ctx, ref.ID)
		}
		if err != nil {
			return err
		}
		for _, l := range loans {
			child := ObjectRef{ID: l.ID, Kind: KindLoan}
			if !w.add(child) {
				continue
			}
			if err := w.walk(ctx, child); err != nil {
				return err
			}
		}
	case KindLoan:
		l, err := w.r.GetLoan(ctx, ref.ID)
		if err != nil {
			return err
		}
		if l.FineID != nil {
			w.add(ObjectRef{ID: *l.FineID, Kind: KindFine})
		}
	case KindFine:
		f, err := w.r.GetFine(ctx, ref.ID)
		if err != nil {
			return err
		}
		w.add(ObjectRef{ID: f.LoanID, Kind: KindLoan})
	default:
		return withMessage(ErrUnknownObject, "unknown object kind %q", ref.Kind)
	}
	return nil
}

// DeletionReport is what a librarian sees before confirming a delete.
type DeletionReport struct {
	Object     ObjectRef   `json:"object"`
	Dependents []ObjectRef `json:"dependents"`
	Blocked    bool        `json:"blocked"`
	Reason     string      `json:"reason,omitempty"`
}

// DeletionCheck reports what deleting id would take with it and whether it
// is allowed at all.
func (s *Service) DeletionCheck(ctx context.Context, id string) (*DeletionReport, error) {
	var rep *DeletionReport
	err := s.store.ReadOnly(ctx, func(ctx context.Context, r Repo) error {
		var err error
		rep, err = deletionReport(ctx, r, id)
		return err
	})
	return rep, err
}

func deletionReport(ctx context.Context, r Repo, id string) (*DeletionReport, error) {
	kind, err := kindOf(ctx, r, id)
	if err != nil {
		return nil, err
	}
	root := ObjectRef{ID: id, Kind: kind}
	deps, err := dependents(ctx, r, root)
	if err != nil {
		return nil, err
	}
	rep := &DeletionReport{Object: root, Dependents: deps}
	if rep.Dependents == nil {
		rep.Dependents = []ObjectRef{}
	}

	if kind == KindItem {
		it, err := r.GetItem(ctx, id)
		if err != nil {
			return nil, err
		}
		if it.OnLoan() {
			rep.Blocked, rep.Reason = true, "item is currently on loan"
			return rep, nil
		}
	}
	for _, ref := range append([]ObjectRef{root}, deps...) {
		switch ref.Kind {
		case KindLoan:
			l, err := r.GetLoan(ctx, ref.ID)
			if err != nil {
				return nil, err
			}
			if l.Status == LoanOnLoan {
				rep.Blocked, rep.Reason = true, "loan "+l.ID+" is still on loan"
				return rep, nil
			}
		case KindFine:
			f, err := r.GetFine(ctx, ref.ID)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if f.Status == FineActive {
				rep.Blocked, rep.Reason = true, "fine "+f.ID+" is still active"
				return rep, nil
			}
		}
	}
	return rep, nil
}

// DeleteObject removes id and, once confirmed, everything depending on it.
func (s *Service) DeleteObject(ctx context.Context, id string, confirmed bool) (*DeletionReport, error) {
	kind, err := s.KindOf(ctx, id)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindItem:
		unlock := s.locks.Lock(id)
		defer unlock()
	case KindLoan:
		itemID, err := s.loanItemID(ctx, id)
		if err != nil {
			return nil, err
		}
		unlock := s.locks.Lock(itemID)
		defer unlock()
	}

	var rep *DeletionReport
	err = s.store.RunInTx(ctx, func(ctx context.Context, r Repo) error {
		var err error
		if rep, err = deletionReport(ctx, r, id); err != nil {
			return err
		}
		if rep.Blocked {
			return withMessage(ErrDeletionBlocked, "%s %s cannot be deleted: %s", rep.Object.Kind, id, rep.Reason)
		}
		if len(rep.Dependents) > 0 && !confirmed {
			return withMessage(ErrConfirmationNeeded, "%s %s has %d dependent objects", rep.Object.Kind, id, len(rep.Dependents))
		}
		// leaves first so nothing is left pointing at a deleted row
		for i := len(rep.Dependents) - 1; i >= 0; i-- {
			if err := deleteRef(ctx, r, rep.Dependents[i]); err != nil {
				return err
			}
		}
		return deleteRef(ctx, r, rep.Object)
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, SeverityWarning, "Deleted %s %s and %d dependent objects", rep.Object.Kind, id, len(rep.Dependents))
	return rep, nil
}

func deleteRef(ctx context.Context, r Repo, ref ObjectRef) error {
	var err error
	switch ref.Kind {
	case KindItem:
		err = r.DeleteItem(ctx, ref.ID)
	case KindMember:
		err = r.DeleteMember(ctx, ref.ID)
	case KindLoan:
		err = r.DeleteLoan(ctx, ref.ID)
	case KindFine:
		err = r.DeleteFine(ctx, ref.ID)
	}
	// a loan's fine may point at a fine that is already gone
	if errors.Is(err, ErrNotFound) && ref.Kind == KindFine {
		return nil
	}
	return err
}
