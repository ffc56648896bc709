package circulation

import (
	"time"

	"github.com/shopspring/decimal"
)

// 資料登録リクエスト
type CreateItemRequest struct {
	Title   string `json:"title" binding:"required"`
	Author  string `json:"author"`
	ISBN    string `json:"isbn"`
	Barcode string `json:"barcode"`
	// 省略時は貸出可
	Loanable  *bool `json:"loanable,omitempty"`
	Condition *int  `json:"condition,omitempty"`
}

type CreateMemberRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type ArchiveMemberRequest struct {
	Archived bool `json:"archived"`
}

// 予約リクエスト
type ScheduleLoanRequest struct {
	ItemID   string    `json:"item_id" binding:"required"`
	MemberID string    `json:"member_id" binding:"required"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// 即時貸出リクエスト。length_days 省略時は設定値
type LoanItemRequest struct {
	ItemID     string `json:"item_id" binding:"required"`
	MemberID   string `json:"member_id" binding:"required"`
	LengthDays int    `json:"length_days"`
}

type GiveItemRequest struct {
	At *time.Time `json:"at,omitempty"`
}

type ReturnItemRequest struct {
	At        *time.Time `json:"at,omitempty"`
	WaiveFine bool       `json:"waive_fine"`
}

type RenewLoanRequest struct {
	NewEnd time.Time  `json:"new_end"`
	At     *time.Time `json:"at,omitempty"`
}

type CreateFineRequest struct {
	At *time.Time `json:"at,omitempty"`
	// 省略時は true（延滞金と同時に返却）
	AutoReturn *bool `json:"auto_return,omitempty"`
}

type PaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// ===== レスポンス =====

type ItemResponse struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            string    `json:"isbn,omitempty"`
	Barcode         string    `json:"barcode,omitempty"`
	Loanable        bool      `json:"loanable"`
	Condition       int       `json:"condition"`
	ConditionText   string    `json:"condition_text"`
	OnLoan          bool      `json:"on_loan"`
	CurrentMemberID *string   `json:"current_member_id,omitempty"`
	CurrentLoanID   *string   `json:"current_loan_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type MemberResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email,omitempty"`
	Phone     string          `json:"phone,omitempty"`
	Archived  bool            `json:"archived"`
	Owed      decimal.Decimal `json:"owed"`
	OwedText  string          `json:"owed_text"`
	CreatedAt time.Time       `json:"created_at"`
}

type RenewalResponse struct {
	RenewedAt   time.Time `json:"renewed_at"`
	PreviousEnd time.Time `json:"previous_end"`
}

type LoanResponse struct {
	ID         string            `json:"id"`
	ItemID     string            `json:"item_id"`
	MemberID   string            `json:"member_id"`
	Start      time.Time         `json:"start"`
	End        time.Time         `json:"end"`
	LoanedAt   *time.Time        `json:"loaned_at,omitempty"`
	ReturnedAt *time.Time        `json:"returned_at,omitempty"`
	Status     int               `json:"status"`
	StatusText string            `json:"status_text"`
	FineID     *string           `json:"fine_id,omitempty"`
	Renewals   []RenewalResponse `json:"renewals"`
}

type FineResponse struct {
	ID         string          `json:"id"`
	ItemID     string          `json:"item_id"`
	LoanID     string          `json:"loan_id"`
	MemberID   string          `json:"member_id"`
	Amount     decimal.Decimal `json:"amount"`
	AmountText string          `json:"amount_text"`
	Status     int             `json:"status"`
	StatusText string          `json:"status_text"`
	CreatedAt  time.Time       `json:"created_at"`
}

type IntervalResponse struct {
	LoanID string    `json:"loan_id"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

type PaymentResponse struct {
	MemberID string          `json:"member_id"`
	Owed     decimal.Decimal `json:"owed"`
	OwedText string          `json:"owed_text"`
}

func buildItemResponse(it *Item) ItemResponse {
	return ItemResponse{
		ID:              it.ID,
		Title:           it.Title,
		Author:          it.Author,
		ISBN:            it.ISBN,
		Barcode:         it.Barcode,
		Loanable:        it.Loanable,
		Condition:       int(it.Condition),
		ConditionText:   it.Condition.String(),
		OnLoan:          it.OnLoan(),
		CurrentMemberID: it.CurrentMemberID,
		CurrentLoanID:   it.CurrentLoanID,
		CreatedAt:       it.CreatedAt,
	}
}

func buildMemberResponse(m *Member, cur Currency) MemberResponse {
	return MemberResponse{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		Phone:     m.Phone,
		Archived:  m.Archived,
		Owed:      m.Owed,
		OwedText:  FormatMoney(m.Owed, cur),
		CreatedAt: m.CreatedAt,
	}
}

func buildLoanResponse(l *Loan) LoanResponse {
	rs := make([]RenewalResponse, 0, len(l.Renewals))
	for _, r := range l.Renewals {
		rs = append(rs, RenewalResponse{RenewedAt: r.RenewedAt, PreviousEnd: r.PreviousEnd})
	}
	return LoanResponse{
		ID:         l.ID,
		ItemID:     l.ItemID,
		MemberID:   l.MemberID,
		Start:      l.Start,
		End:        l.End,
		LoanedAt:   l.LoanedAt,
		ReturnedAt: l.ReturnedAt,
		Status:     int(l.Status),
		StatusText: l.Status.String(),
		FineID:     l.FineID,
		Renewals:   rs,
	}
}

func buildFineResponse(f *Fine, cur Currency) FineResponse {
	return FineResponse{
		ID:         f.ID,
		ItemID:     f.ItemID,
		LoanID:     f.LoanID,
		MemberID:   f.MemberID,
		Amount:     f.Amount,
		AmountText: FormatMoney(f.Amount, cur),
		Status:     int(f.Status),
		StatusText: f.Status.String(),
		CreatedAt:  f.CreatedAt,
	}
}
