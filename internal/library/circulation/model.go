package circulation

import (
	"time"

	"github.com/shopspring/decimal"

	"LIBRA-backend/internal/library/schedule"
)

// Item は貸出対象の資料1点を表す
type Item struct {
	ID        string
	Title     string
	Author    string
	ISBN      string
	Barcode   string
	Loanable  bool
	Condition Condition
	// CurrentMemberID / CurrentLoanID are set together while the item is out
	// and cleared together on return.
	CurrentMemberID *string
	CurrentLoanID   *string
	CreatedAt       time.Time
}

// OnLoan reports whether the item is physically out with a member.
func (it *Item) OnLoan() bool { return it.CurrentMemberID != nil }

// Member は利用者を表す
type Member struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Archived  bool
	Owed      decimal.Decimal
	CreatedAt time.Time
}

type Loan struct {
	ID         string
	ItemID     string
	MemberID   string
	Start      time.Time
	End        time.Time
	LoanedAt   *time.Time
	ReturnedAt *time.Time
	Status     LoanStatus
	FineID     *string
	Renewals   []Renewal
	CreatedAt  time.Time
}

// Renewal records one extension of a loan's due date.
type Renewal struct {
	RenewedAt   time.Time
	PreviousEnd time.Time
}

// EffectiveStart is when the item actually left, or the scheduled start.
func (l *Loan) EffectiveStart() time.Time {
	if l.LoanedAt != nil {
		return *l.LoanedAt
	}
	return l.Start
}

// EffectiveEnd is when the item actually came back, or the due date.
func (l *Loan) EffectiveEnd() time.Time {
	if l.ReturnedAt != nil {
		return *l.ReturnedAt
	}
	return l.End
}

func (l *Loan) interval() schedule.Interval {
	return schedule.Interval{ID: l.ID, Start: l.EffectiveStart(), End: l.EffectiveEnd()}
}

type Fine struct {
	ID        string
	ItemID    string
	LoanID    string
	MemberID  string
	Amount    decimal.Decimal
	Status    FineStatus
	CreatedAt time.Time
}

// LoanStatus values match the numbering librarians already know from the
// old plugin (5 = Scheduled).
type LoanStatus int

const (
	LoanOnLoan               LoanStatus = 1
	LoanReturned             LoanStatus = 2
	LoanReturnedLate         LoanStatus = 3
	LoanReturnedLateWithFine LoanStatus = 4
	LoanScheduled            LoanStatus = 5
)

// Returned reports whether the loan is in one of the terminal states.
func (s LoanStatus) Returned() bool {
	return s == LoanReturned || s == LoanReturnedLate || s == LoanReturnedLateWithFine
}

type FineStatus int

const (
	FineActive    FineStatus = 1
	FineCancelled FineStatus = 2
)

// Condition grades an item's physical state, 0 (very poor) to 4 (excellent).
type Condition int

const (
	ConditionVeryPoor Condition = iota
	ConditionPoor
	ConditionFair
	ConditionGood
	ConditionExcellent
)

func (c Condition) Valid() bool { return c >= ConditionVeryPoor && c <= ConditionExcellent }

// ObjectKind names the four kinds of library object.
type ObjectKind string

const (
	KindItem   ObjectKind = "item"
	KindMember ObjectKind = "member"
	KindLoan   ObjectKind = "loan"
	KindFine   ObjectKind = "fine"
)

// ObjectRef identifies any library object.
type ObjectRef struct {
	ID   string     `json:"id"`
	Kind ObjectKind `json:"kind"`
}

// buildIndex turns an item's loans into its loan index.
func buildIndex(loans []Loan) schedule.Index {
	ivs := make([]schedule.Interval, 0, len(loans))
	for i := range loans {
		ivs = append(ivs, loans[i].interval())
	}
	return schedule.NewIndex(ivs)
}
