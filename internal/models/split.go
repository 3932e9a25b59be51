package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense represents a payment made by one member on behalf of others.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// Date is when the expense was incurred.
	Date time.Time

	// Description is the human-readable label (e.g., "Groceries").
	Description string

	// Amount is the total paid, with two-decimal precision.
	Amount decimal.Decimal

	// PaidBy is the member ID of the payer.
	PaidBy string

	// Category is a free-form category label.
	Category string

	// Splits records each participant's share. The shares should sum to
	// Amount; any difference stays with the payer.
	Splits []Split

	// Meta holds the version stamps used for conflict detection.
	Meta ExpenseMeta

	// RowPosition is the expense's row in the Expenses tab at read time.
	RowPosition int
}

// Split is one participant's share of an expense.
type Split struct {
	UserID string          `json:"userId"`
	Amount decimal.Decimal `json:"amount"`
}

// ExpenseMeta carries the logical clock of an expense row.
type ExpenseMeta struct {
	CreatedAt    time.Time `json:"createdAt"`
	LastModified time.Time `json:"lastModified"`
}

// SplitTotal returns the sum of all split amounts.
func (e Expense) SplitTotal() decimal.Decimal {
	total := decimal.Zero
	for _, s := range e.Splits {
		total = total.Add(s.Amount)
	}
	return total
}

// Involves reports whether userID paid for this expense or holds a nonzero share of it.
func (e Expense) Involves(userID string) bool {
	if e.PaidBy == userID {
		return true
	}
	for _, s := range e.Splits {
		if s.UserID == userID && !s.Amount.IsZero() {
			return true
		}
	}
	return false
}
