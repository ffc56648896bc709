package circulation

import (
	"time"

	"LIBRA-backend/internal/library/schedule"
)

// DaysUntilDue returns whole days from ref until the loan is due.
// Positive: due in the future, 0: due today, negative: days late.
func DaysUntilDue(l *Loan, ref time.Time) (int, error) {
	if l == nil || l.End.IsZero() {
		return 0, ErrMissingDueDate
	}
	return schedule.DaysBetween(ref, l.End), nil
}

// IsLate reports whether the loan is overdue on ref.
func IsLate(l *Loan, ref time.Time) (bool, error) {
	days, err := DaysUntilDue(l, ref)
	if err != nil {
		return false, err
	}
	return days < 0, nil
}
