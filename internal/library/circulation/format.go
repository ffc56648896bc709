package circulation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func (s LoanStatus) String() string {
	switch s {
	case LoanOnLoan:
		return "On Loan"
	case LoanReturned:
		return "Returned"
	case LoanReturnedLate:
		return "Returned Late"
	case LoanReturnedLateWithFine:
		return "Returned Late (with fine)"
	case LoanScheduled:
		return "Scheduled"
	default:
		return "Unknown"
	}
}

func (s FineStatus) String() string {
	switch s {
	case FineActive:
		return "Active"
	case FineCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

var conditionNames = [...]string{"Very Poor", "Poor", "Fair", "Good", "Excellent"}

// Name is the bare condition name, e.g. "Excellent". Unknown grades give "-".
func (c Condition) Name() string {
	if !c.Valid() {
		return "-"
	}
	return conditionNames[c]
}

// String is the numbered form shown in listings, e.g. "4 - Excellent".
func (c Condition) String() string {
	if !c.Valid() {
		return "-"
	}
	return fmt.Sprintf("%d - %s", int(c), conditionNames[c])
}

// DueText renders a DaysUntilDue result for people.
func DueText(days int) string {
	switch {
	case days == 0:
		return "Due today"
	case days > 0:
		return fmt.Sprintf("Due in %d %s", days, plural(days, "day"))
	default:
		return fmt.Sprintf("%d %s late", -days, plural(-days, "day"))
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

var moneyPrinter = message.NewPrinter(language.English)

// FormatMoney prints an amount with two decimals, grouped thousands and the
// currency symbol on the configured side: £1,234.50 or 0.40€.
func FormatMoney(v decimal.Decimal, cur Currency) string {
	fixed := v.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	n, err := strconv.ParseInt(whole, 10, 64)
	if err == nil {
		whole = moneyPrinter.Sprintf("%d", n)
	}
	num := whole + "." + frac
	sign := ""
	if v.IsNegative() && !v.Round(2).IsZero() {
		sign = "-"
	}
	if cur.After {
		return sign + num + cur.Symbol
	}
	return sign + cur.Symbol + num
}
