package circulation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"LIBRA-backend/internal/platform/db"
)

const defaultLoanLengthDays = 12

// Currency controls how money is printed.
type Currency struct {
	Symbol string
	After  bool
}

// Settings are the circulation options. RenewalLimit 0 means unlimited.
type Settings struct {
	DefaultLoanLengthDays int
	RenewalLimit          int
	DailyFineRate         decimal.Decimal
	Currency              Currency
}

func DefaultSettings() Settings {
	return Settings{
		DefaultLoanLengthDays: defaultLoanLengthDays,
		DailyFineRate:         decimal.Zero,
		Currency:              Currency{Symbol: "£"},
	}
}

// wholeCents reports whether v fits the two-decimal money columns.
func wholeCents(v decimal.Decimal) bool {
	return v.Equal(v.Round(2))
}

// SettingsFromConfig reads the library section of the server config.
func SettingsFromConfig(c db.LibraryConfig) (Settings, error) {
	s := DefaultSettings()
	if c.LoanLengthDays < 0 {
		return s, fmt.Errorf("library.loan_length_days must not be negative, got %d", c.LoanLengthDays)
	}
	if c.LoanLengthDays > 0 {
		s.DefaultLoanLengthDays = c.LoanLengthDays
	}
	if c.RenewLimit < 0 {
		return s, fmt.Errorf("library.renew_limit must not be negative, got %d", c.RenewLimit)
	}
	s.RenewalLimit = c.RenewLimit

	if c.DailyFine != "" {
		rate, err := decimal.NewFromString(c.DailyFine)
		if err != nil {
			return s, fmt.Errorf("library.daily_fine: %w", err)
		}
		if rate.IsNegative() {
			return s, fmt.Errorf("library.daily_fine must not be negative, got %s", c.DailyFine)
		}
		if !wholeCents(rate) {
			return s, fmt.Errorf("library.daily_fine must have at most two decimal places, got %s", c.DailyFine)
		}
		s.DailyFineRate = rate
	}
	if c.Currency.Symbol != "" {
		s.Currency.Symbol = c.Currency.Symbol
	}
	s.Currency.After = c.Currency.After
	return s, nil
}
