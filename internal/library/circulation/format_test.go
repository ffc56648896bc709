package circulation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestStatusNames(t *testing.T) {
	assert.Equal(t, "On Loan", LoanOnLoan.String())
	assert.Equal(t, "Returned Late (with fine)", LoanReturnedLateWithFine.String())
	assert.Equal(t, "Scheduled", LoanScheduled.String())
	assert.Equal(t, "Cancelled", FineCancelled.String())
	assert.Equal(t, "Unknown", LoanStatus(42).String())
}

func TestConditionNames(t *testing.T) {
	assert.Equal(t, "4 - Excellent", ConditionExcellent.String())
	assert.Equal(t, "0 - Very Poor", ConditionVeryPoor.String())
	assert.Equal(t, "Fair", ConditionFair.Name())
	assert.Equal(t, "-", Condition(7).String())
}

func TestDueText(t *testing.T) {
	tests := map[int]string{
		0:  "Due today",
		1:  "Due in 1 day",
		3:  "Due in 3 days",
		-1: "1 day late",
		-4: "4 days late",
	}
	for days, want := range tests {
		assert.Equal(t, want, DueText(days), "days=%d", days)
	}
}

func TestFormatMoney(t *testing.T) {
	pound := Currency{Symbol: "£"}
	euro := Currency{Symbol: "€", After: true}

	assert.Equal(t, "£0.40", FormatMoney(decimal.RequireFromString("0.4"), pound))
	assert.Equal(t, "0.40€", FormatMoney(decimal.RequireFromString("0.4"), euro))
	assert.Equal(t, "£1,234.50", FormatMoney(decimal.RequireFromString("1234.5"), pound))
	assert.Equal(t, "£6.00", FormatMoney(decimal.NewFromInt(6), pound))
	assert.Equal(t, "-£3.25", FormatMoney(decimal.RequireFromString("-3.25"), pound))
	assert.Equal(t, "£0.00", FormatMoney(decimal.RequireFromString("-0.001"), pound))
}

func TestISBN(t *testing.T) {
	assert.Equal(t, "080442957X", SanitizeISBN("0-8044-2957-x"))

	valid := []string{"978-0-306-40615-7", "0-306-40615-2", "0-8044-2957-X", "9780143127741"}
	for _, raw := range valid {
		assert.True(t, ValidISBN(SanitizeISBN(raw)), raw)
	}
	invalid := []string{"978-0-306-40615-8", "0-306-40615-3", "12345", "X306406152", "978030640615X"}
	for _, raw := range invalid {
		assert.False(t, ValidISBN(SanitizeISBN(raw)), raw)
	}
}

func TestCreateItemValidatesISBN(t *testing.T) {
	f := newFixture(t)

	it, err := f.svc.CreateItem(f.ctx, NewItem{Title: "Mechanics", ISBN: "978-0-306-40615-7", Loanable: true})
	if assert.NoError(t, err) {
		assert.Equal(t, "9780306406157", it.ISBN)
	}

	_, err = f.svc.CreateItem(f.ctx, NewItem{Title: "Typo", ISBN: "978-0-306-40615-8"})
	assert.ErrorIs(t, err, ErrInvalidISBN)
	assert.Equal(t, 400, ToHTTPStatus(err))

	_, err = f.svc.CreateItem(f.ctx, NewItem{Title: "  "})
	assert.Error(t, err)
	_, err = f.svc.CreateItem(f.ctx, NewItem{Title: "Bad", Condition: Condition(9)})
	assert.Error(t, err)
}
