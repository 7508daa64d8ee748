package services

import (
	"time"

	"github.com/shopspring/decimal"

	"loanledger/internal/models"
)

// DaysOverdue counts whole calendar days (UTC) between the due date and end.
// Time of day is ignored, so a loan returned late on its due date owes nothing.
// The result is never negative.
func DaysOverdue(due, end time.Time) int {
	dueDay := civilDay(due)
	endDay := civilDay(end)
	days := int(endDay.Sub(dueDay).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// LateFee is DaysOverdue times dailyRate. For a closed loan the return time
// is the end of the window; for an open loan it is now.
func LateFee(loan *models.Loan, now time.Time, dailyRate decimal.Decimal) decimal.Decimal {
	days := DaysOverdue(loan.DueAt, effectiveEnd(loan, now))
	return dailyRate.Mul(decimal.NewFromInt(int64(days)))
}

// effectiveEnd is the return time of a closed loan, now for an open one.
func effectiveEnd(loan *models.Loan, now time.Time) time.Time {
	if loan.ReturnedAt != nil {
		return *loan.ReturnedAt
	}
	return now
}

func civilDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
