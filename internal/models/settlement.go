package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Settlement represents a payment between group members to clear debts.
type Settlement struct {
	// ID is the unique identifier for the settlement (UUID format).
	ID string

	// Date is when the payment happened.
	Date time.Time

	// FromUserID is the user who paid (debtor settling up).
	FromUserID string

	// ToUserID is the user who received payment (creditor being paid).
	ToUserID string

	// Amount is the payment amount. Always positive.
	Amount decimal.Decimal

	// Method is an optional payment method (e.g., "cash", "bank transfer").
	Method string

	// Notes is an optional free-form description.
	Notes string

	// RowPosition is the settlement's row in the Settlements tab at read time.
	RowPosition int
}
