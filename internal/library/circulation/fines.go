package circulation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ===== 延滞金 =====

// CreateFine charges the member holding itemID for each whole day the loan
// is overdue on at (zero = now). With autoReturn the item is returned in
// the same transaction, and a failed return undoes the fine.
func (s *Service) CreateFine(ctx context.Context, itemID string, at time.Time, autoReturn bool) (*Fine, error) {
	at, err := s.pastOrNow(at)
	if err != nil {
		return nil, err
	}

	// item pointers only change under the item key, so the holder read
	// here stays valid until unlockItem
	unlockItem := s.locks.Lock(itemID)
	defer unlockItem()
	holder, err := s.itemHolder(ctx, itemID)
	if err != nil {
		return nil, err
	}
	unlockMember := s.locks.Lock(holder)
	defer unlockMember()

	var fine *Fine
	err = s.store.RunInTx(ctx, func(ctx context.Context, r Repo) error {
		item, err := r.LockItem(ctx, itemID)
		if err != nil {
			return err
		}
		loan, err := s.currentLoan(ctx, r, item)
		if err != nil {
			return err
		}
		days, err := DaysUntilDue(loan, at)
		if err != nil {
			return err
		}
		if days >= 0 {
			return ErrNotLate
		}
		if loan.FineID != nil {
			return withMessage(ErrFineAlreadyCharged, "loan %s already carries fine %s", loan.ID, *loan.FineID)
		}

		member, err := r.GetMember(ctx, loan.MemberID)
		if err != nil {
			return err
		}
		id, err := s.id.New()
		if err != nil {
			return err
		}
		f := &Fine{
			ID:        id,
			ItemID:    item.ID,
			LoanID:    loan.ID,
			MemberID:  member.ID,
			Amount:    s.settings.DailyFineRate.Mul(decimal.NewFromInt(int64(-days))),
			Status:    FineActive,
			CreatedAt: s.clock.Now(),
		}
		if err := r.InsertFine(ctx, f); err != nil {
			return err
		}
		fineID := f.ID
		loan.FineID = &fineID
		if err := r.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		member.Owed = member.Owed.Add(f.Amount)
		if err := r.UpdateMember(ctx, member); err != nil {
			return err
		}

		if autoReturn {
			if _, err := s.returnTx(ctx, r, itemID, at, false); err != nil {
				return err
			}
		}
		fine = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, SeverityInfo, "Member %s fined %s for item %s",
		fine.MemberID, FormatMoney(fine.Amount, s.settings.Currency), itemID)
	return fine, nil
}

// CancelFine withdraws a fine and takes its amount off the member's debt.
// It refuses rather than let the debt go below zero.
func (s *Service) CancelFine(ctx context.Context, fineID string) (*Fine, error) {
	f, err := s.GetFine(ctx, fineID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(f.MemberID)
	defer unlock()

	err = s.store.RunInTx(ctx, func(ctx context.Context, r Repo) error {
		var err error
		if f, err = r.GetFine(ctx, fineID); err != nil {
			return err
		}
		if f.Status == FineCancelled {
			return ErrAlreadyCancelled
		}
		member, err := r.GetMember(ctx, f.MemberID)
		if err != nil {
			return err
		}
		owed := member.Owed.Sub(f.Amount)
		if owed.IsNegative() {
			return withMessage(ErrNegativeBalance, "cancelling fine %s would leave member %s owing %s",
				f.ID, member.ID, FormatMoney(owed, s.settings.Currency))
		}
		member.Owed = owed
		if err := r.UpdateMember(ctx, member); err != nil {
			return err
		}
		f.Status = FineCancelled
		return r.UpdateFine(ctx, f)
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, SeverityInfo, "Fine %s cancelled", fineID)
	return f, nil
}

// PayFines records a payment towards the member's debt and returns what is
// still owed.
func (s *Service) PayFines(ctx context.Context, memberID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidPayment
	}
	if !wholeCents(amount) {
		return decimal.Zero, withMessage(ErrInvalidPayment, "payment %s has more than two decimal places", amount)
	}
	unlock := s.locks.Lock(memberID)
	defer unlock()

	var owed decimal.Decimal
	err := s.store.RunInTx(ctx, func(ctx context.Context, r Repo) error {
		member, err := r.GetMember(ctx, memberID)
		if err != nil {
			return err
		}
		if member.Owed.IsZero() {
			return ErrNothingOwed
		}
		if amount.GreaterThan(member.Owed) {
			return withMessage(ErrOverpayment, "payment of %s is more than the %s owed",
				FormatMoney(amount, s.settings.Currency), FormatMoney(member.Owed, s.settings.Currency))
		}
		member.Owed = member.Owed.Sub(amount)
		owed = member.Owed
		return r.UpdateMember(ctx, member)
	})
	if err != nil {
		return decimal.Zero, err
	}
	s.notify(ctx, SeverityInfo, "Payment of %s received from member %s",
		FormatMoney(amount, s.settings.Currency), memberID)
	return owed, nil
}

// itemHolder returns the member currently holding the item, or "".
func (s *Service) itemHolder(ctx context.Context, itemID string) (string, error) {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return "", err
	}
	if item.CurrentMemberID == nil {
		return "", nil
	}
	return *item.CurrentMemberID, nil
}
