package circulation

import (
	"context"
	"errors"
	"time"

	"LIBRA-backend/internal/library/schedule"
)

// ===== 予約・貸出 =====

// ScheduleLoan books item for member over [start, end]. The item itself is
// untouched until GiveItem.
func (s *Service) ScheduleLoan(ctx context.Context, itemID, memberID string, start, end time.Time) (*Loan, error) {
	start, end = start.UTC(), end.UTC()
	if end.Before(start) {
		return nil, ErrInvalidRange
	}

	unlock := s.locks.Lock(itemID)
	defer unlock()

	var loan *Loan
	err := s.store.RunInTx(ctx, func(ctx context.Context, r Repo) error {
		var err error
		loan, err = s.scheduleTx(ctx, r, itemID, memberID, start, end)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, SeverityInfo, "Item %s scheduled for member %s from %s to %s",
		itemID, memberID, start.Format(time.DateOnly), end.Format(time.DateOnly))
	return loan, nil
}

// scheduleTx must run with the item's key held.
func (s *Service) scheduleTx(ctx context.Context, r Repo, itemID, memberID string, start, end time.Time) (*Loan, error) {
	item, err := r.LockItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	member, err := r.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if member.Archived {
		return nil, ErrMemberArchived
	}
	if !item.Loanable {
		return nil, withMessage(ErrItemUnavailable, "item %s is not allowed to be loaned", itemID)
	}

	loans, err := r.LoansByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !schedule.CanSchedule(start, end, buildIndex(loans)) {
		return nil, withMessage(ErrItemUnavailable, "item %s is already booked for part of that period", itemID)
	}

	id, err := s.id.New()
	if err != nil {
		return nil, err
	}
	loan := &Loan{
		ID:        id,
		ItemID:    itemID,
		MemberID:  memberID,
		Start:     start,
		End:       end,
		Status:    LoanScheduled,
		CreatedAt: s.clock.Now(),
	}
	if err := r.InsertLoan(ctx, loan); err != nil {
		return nil, err
	}
	return loan, nil
}

// GiveItem hands a scheduled loan's item to its member at at (zero = now).
func (s *Service) GiveItem(ctx context.Context, loanID string, at time.Time) (*Loan, error) {
	at = s.orNow(at)

	itemID, err := s.loanItemID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(itemID)
	defer unlock()

	var loan *Loan
	err = s.store.RunInTx(ctx, func(ctx context.Context, r Repo) error {
		l, err := r.GetLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if err := s.giveTx(ctx, r, l, at); err != nil {
			return err
		}
		loan = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, SeverityInfo, "Item %s given to member %s, due %s", loan.ItemID, loan.MemberID, loan.End.Format(time.DateOnly))
	return loan, nil
}

// giveTx re-checks [at, End] against every other loan of the item, since
// the period the item is actually out for may differ from the booking.
func (s *Service) giveTx(ctx context.Context, r Repo, loan *Loan, at time.Time) error {
	if loan.Status != LoanScheduled {
		return withMessage(ErrNotScheduled, "loan %s is %s, not scheduled", loan.ID, loan.Status)
	}
	if loan.End.Before(at) {
		return withMessage(ErrInvalidRange, "loan %s ended before %s", loan.ID, at.Format(time.RFC3339))
	}
	item, err := r.LockItem(ctx, loan.ItemID)
	if err != nil {
		return err
	}
	if item.OnLoan() {
		return withMessage(ErrItemUnavailable, "item %s is already with a member", item.ID)
	}

	loans, err := r.LoansByItem(ctx, loan.ItemID)
	if err != nil {
		return err
	}
	if !schedule.CanSchedule(at, loan.End, buildIndex(loans).Without(loan.ID)) {
		return ErrScheduleConflict
	}

	loan.LoanedAt = &at
	loan.Status = LoanOnLoan
	if err := r.UpdateLoan(ctx, loan); err != nil {
		return err
	}
	memberID, loanID := loan.MemberID, loan.ID
	item.CurrentMemberID = &memberID
	item.CurrentLoanID = &loanID
	return r.UpdateItem(ctx, item)
}

// LoanItem schedules and gives in one go, starting now. lengthDays 0 uses
// the configured default. Nothing is kept if either step fails.
func (s *Service) LoanItem(ctx context.Context, itemID, memberID string, lengthDays int) (*Loan, error) {
	if lengthDays < 0 {
		return nil, ErrInvalidLoanLength
	}
	if lengthDays == 0 {
		lengthDays = s.settings.DefaultLoanLengthDays
	}
	now := s.clock.Now()
	end := schedule.AddDays(now, lengthDays)

	unlock := s.locks.Lock(itemID)
	defer unlock()

	var loan *Loan
	err := s.store.RunInTx(ctx, func(ctx context.Context, r Repo) error {
		var err error
		if loan, err = s.scheduleTx(ctx, r, itemID, memberID, now, end); err != nil {
			return err
		}
		if err := s.giveTx(ctx, r, loan, now); err != nil {
			return wrap(ErrGiveAfterSchedule, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrGiveAfterSchedule) {
			s.notify(ctx, SeverityError, "Loan of item %s to member %s rolled back: %v", itemID, memberID, err)
		}
		return nil, err
	}
	s.notify(ctx, SeverityInfo, "Item %s loaned to member %s until %s", itemID, memberID, end.Format(time.DateOnly))
	return loan, nil
}

// ===== 返却 =====

// ReturnItem takes the item back on at (zero = now). A late item needs a
// fine on its loan or waiveFine.
func (s *Service) ReturnItem(ctx context.Context, itemID string, at time.Time, waiveFine bool) (*Loan, error) {
	at, err := s.pastOrNow(at)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(itemID)
	defer unlock()

	var loan *Loan
	err = s.store.RunInTx(ctx, func(ctx context.Context, r Repo) error {
		var err error
		loan, err = s.returnTx(ctx, r, itemID, at, waiveFine)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, SeverityInfo, "Item %s returned (%s)", itemID, loan.Status)
	return loan, nil
}

func (s *Service) returnTx(ctx context.Context, r Repo, itemID string, at time.Time, waiveFine bool) (*Loan, error) {
	item, err := r.LockItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	loan, err := s.currentLoan(ctx, r, item)
	if err != nil {
		return nil, err
	}
	if loan.LoanedAt != nil && at.Before(*loan.LoanedAt) {
		return nil, withMessage(ErrInvalidRange, "return on %s is before loan %s was given out on %s",
			at.Format(time.RFC3339), loan.ID, loan.LoanedAt.Format(time.RFC3339))
	}

	late, err := IsLate(loan, at)
	if err != nil {
		return nil, err
	}
	if late && loan.FineID == nil && !waiveFine {
		return nil, ErrUnresolvedFine
	}

	item.CurrentMemberID = nil
	item.CurrentLoanID = nil
	if err := r.UpdateItem(ctx, item); err != nil {
		return nil, err
	}

	loan.ReturnedAt = &at
	switch {
	case loan.FineID != nil:
		loan.Status = LoanReturnedLateWithFine
	case late:
		loan.Status = LoanReturnedLate
	default:
		loan.Status = LoanReturned
	}
	if err := r.UpdateLoan(ctx, loan); err != nil {
		return nil, err
	}
	return loan, nil
}

// currentLoan resolves the loan an item's pointer refers to.
func (s *Service) currentLoan(ctx context.Context, r Repo, item *Item) (*Loan, error) {
	if item.CurrentLoanID == nil {
		return nil, withMessage(ErrNotOnLoan, "item %s is not on loan", item.ID)
	}
	loan, err := r.GetLoan(ctx, *item.CurrentLoanID)
	if errors.Is(err, ErrNotFound) {
		return nil, withMessage(ErrLoanMissing, "item %s points at missing loan %s", item.ID, *item.CurrentLoanID)
	}
	if err != nil {
		return nil, err
	}
	if loan.Status != LoanOnLoan {
		return nil, withMessage(ErrNotOnLoan, "loan %s is %s", loan.ID, loan.Status)
	}
	return loan, nil
}

// ===== 延長 =====

// RenewItem moves an on-loan loan's due date to newEnd, recording the
// renewal as made at at (zero = now).
func (s *Service) RenewItem(ctx context.Context, loanID string, newEnd, at time.Time) (*Loan, error) {
	newEnd = newEnd.UTC()
	at = s.orNow(at)

	itemID, err := s.loanItemID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(itemID)
	defer unlock()

	var loan *Loan
	err = s.store.RunInTx(ctx, func(ctx context.Context, r Repo) error {
		if _, err := r.LockItem(ctx, itemID); err != nil {
			return err
		}
		l, err := r.GetLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if l.Status != LoanOnLoan {
			return withMessage(ErrNotOnLoan, "loan %s is %s", l.ID, l.Status)
		}
		if limit := s.settings.RenewalLimit; limit > 0 && len(l.Renewals) >= limit {
			return withMessage(ErrRenewalLimitReached, "loan %s has been renewed %d of %d times", l.ID, len(l.Renewals), limit)
		}
		if !newEnd.After(l.End) {
			return ErrInvalidRenewalDate
		}

		loans, err := r.LoansByItem(ctx, itemID)
		if err != nil {
			return err
		}
		if !schedule.CanSchedule(l.Start, newEnd, buildIndex(loans).Without(l.ID)) {
			return ErrRenewalConflict
		}

		l.Renewals = append(l.Renewals, Renewal{RenewedAt: at, PreviousEnd: l.End})
		l.End = newEnd
		if err := r.UpdateLoan(ctx, l); err != nil {
			return err
		}
		loan = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, SeverityInfo, "Loan %s renewed until %s", loanID, newEnd.Format(time.DateOnly))
	return loan, nil
}

// ===== 照会 =====

// Loanable reports whether item may be booked over [start, end].
func (s *Service) Loanable(ctx context.Context, itemID string, start, end time.Time) (bool, error) {
	if end.Before(start) {
		return false, ErrInvalidRange
	}
	ok := false
	err := s.store.ReadOnly(ctx, func(ctx context.Context, r Repo) error {
		item, err := r.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if !item.Loanable {
			return nil
		}
		loans, err := r.LoansByItem(ctx, itemID)
		if err != nil {
			return err
		}
		ok = schedule.CanSchedule(start.UTC(), end.UTC(), buildIndex(loans))
		return nil
	})
	return ok, err
}

// OnLoan reports whether the item is currently with a member.
func (s *Service) OnLoan(ctx context.Context, itemID string) (bool, error) {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return false, err
	}
	return item.OnLoan(), nil
}

// LoanIndex returns the item's loans as an ordered schedule index.
func (s *Service) LoanIndex(ctx context.Context, itemID string) (schedule.Index, error) {
	var idx schedule.Index
	err := s.store.ReadOnly(ctx, func(ctx context.Context, r Repo) error {
		if _, err := r.GetItem(ctx, itemID); err != nil {
			return err
		}
		loans, err := r.LoansByItem(ctx, itemID)
		if err != nil {
			return err
		}
		idx = buildIndex(loans)
		return nil
	})
	return idx, err
}

// LoanAt finds the loan whose effective period covers date (zero = now).
func (s *Service) LoanAt(ctx context.Context, itemID string, date time.Time) (*Loan, error) {
	date = s.orNow(date)
	var loan *Loan
	err := s.store.ReadOnly(ctx, func(ctx context.Context, r Repo) error {
		if _, err := r.GetItem(ctx, itemID); err != nil {
			return err
		}
		loans, err := r.LoansByItem(ctx, itemID)
		if err != nil {
			return err
		}
		iv, ok := buildIndex(loans).Covering(date)
		if !ok {
			return ErrNoLoans
		}
		for i := range loans {
			if loans[i].ID == iv.ID {
				loan = &loans[i]
				break
			}
		}
		return nil
	})
	return loan, err
}

// MemberLoans lists a member's loans. openOnly keeps only loans that are
// scheduled or out.
func (s *Service) MemberLoans(ctx context.Context, memberID string, openOnly bool) ([]Loan, error) {
	var out []Loan
	err := s.store.ReadOnly(ctx, func(ctx context.Context, r Repo) error {
		if _, err := r.GetMember(ctx, memberID); err != nil {
			return err
		}
		loans, err := r.LoansByMember(ctx, memberID)
		if err != nil {
			return err
		}
		for _, l := range loans {
			if openOnly && l.Status.Returned() {
				continue
			}
			out = append(out, l)
		}
		return nil
	})
	return out, err
}

// ItemDueText describes when an on-loan item is due, or "" when it is in.
func (s *Service) ItemDueText(ctx context.Context, itemID string, ref time.Time) (string, error) {
	ref = s.orNow(ref)
	text := ""
	err := s.store.ReadOnly(ctx, func(ctx context.Context, r Repo) error {
		item, err := r.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if !item.OnLoan() {
			return nil
		}
		loan, err := s.currentLoan(ctx, r, item)
		if err != nil {
			return err
		}
		days, err := DaysUntilDue(loan, ref)
		if err != nil {
			return err
		}
		text = DueText(days)
		return nil
	})
	return text, err
}

// ===== 修復 =====

// CleanItem clears holder and loan pointers that no longer match an on-loan
// loan of the item. It reports whether anything was cleared.
func (s *Service) CleanItem(ctx context.Context, itemID string) (bool, error) {
	unlock := s.locks.Lock(itemID)
	defer unlock()

	cleaned := false
	err := s.store.RunInTx(ctx, func(ctx context.Context, r Repo) error {
		item, err := r.LockItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item.CurrentLoanID == nil && item.CurrentMemberID == nil {
			return nil
		}
		if item.CurrentLoanID != nil && item.CurrentMemberID != nil {
			loan, err := r.GetLoan(ctx, *item.CurrentLoanID)
			switch {
			case err == nil:
				if loan.Status == LoanOnLoan && loan.ItemID == item.ID && loan.MemberID == *item.CurrentMemberID {
					return nil
				}
			case !errors.Is(err, ErrNotFound):
				return err
			}
		}
		item.CurrentLoanID = nil
		item.CurrentMemberID = nil
		cleaned = true
		return r.UpdateItem(ctx, item)
	})
	if err != nil {
		return false, err
	}
	if cleaned {
		s.notify(ctx, SeverityWarning, "Item %s had stale loan references and was cleaned", itemID)
	}
	return cleaned, nil
}

// loanItemID looks up which item a loan is for so its key can be taken
// before the transaction starts. A loan never changes item.
func (s *Service) loanItemID(ctx context.Context, loanID string) (string, error) {
	l, err := s.GetLoan(ctx, loanID)
	if err != nil {
		return "", err
	}
	return l.ItemID, nil
}
