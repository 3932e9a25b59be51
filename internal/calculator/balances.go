package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/quozen/internal/models"
)

// settledThreshold is the balance magnitude at or below which a member counts as settled.
var settledThreshold = decimal.New(1, -2)

// Suggestion is a proposed payment between two members.
type Suggestion struct {
	FromUserID string
	ToUserID   string
	Amount     decimal.Decimal
}

// CalculateBalances computes each member's net balance over a group's history.
//
// Algorithm:
// - Every member starts at zero
// - For each expense: payer is credited the full amount, each split participant is debited their share
// - For each settlement: payer (FromUserID) is credited, receiver (ToUserID) is debited
//
// Positive = is owed money, negative = owes money. Nothing is normalized: when an
// expense's splits don't add up to its amount, the difference stays on the payer's
// balance, so the sum of all balances equals the total unsplit remainder.
func CalculateBalances(members []models.Member, expenses []models.Expense, settlements []models.Settlement) map[string]decimal.Decimal {
	balances := make(map[string]decimal.Decimal, len(members))
	for _, m := range members {
		balances[m.UserID] = decimal.Zero
	}

	for _, e := range expenses {
		balances[e.PaidBy] = balances[e.PaidBy].Add(e.Amount)
		for _, s := range e.Splits {
			balances[s.UserID] = balances[s.UserID].Sub(s.Amount)
		}
	}

	for _, s := range settlements {
		balances[s.FromUserID] = balances[s.FromUserID].Add(s.Amount)
		balances[s.ToUserID] = balances[s.ToUserID].Sub(s.Amount)
	}

	return balances
}

// SuggestSettlementStrategy proposes the next payment involving currentUserID.
//
// Returns nil when the current user is within one cent of zero. Otherwise the
// counterpart is the other member with the largest balance (when the current user
// owes) or the most negative balance (when the current user is owed); the first
// extremum in member order wins ties. The amount is the smaller of the two
// magnitudes. This is a one-step heuristic, not a global transfer minimizer.
func SuggestSettlementStrategy(currentUserID string, balances map[string]decimal.Decimal, members []models.Member) *Suggestion {
	current := balances[currentUserID]
	if current.Abs().LessThanOrEqual(settledThreshold) {
		return nil
	}
	owes := current.IsNegative()

	var target string
	var targetBalance decimal.Decimal
	found := false
	for _, m := range members {
		if m.UserID == currentUserID {
			continue
		}
		b := balances[m.UserID]
		if !found || (owes && b.GreaterThan(targetBalance)) || (!owes && b.LessThan(targetBalance)) {
			target, targetBalance, found = m.UserID, b, true
		}
	}
	if !found {
		return nil
	}

	// Counterpart must sit on the other side of zero.
	if owes && targetBalance.LessThanOrEqual(settledThreshold) {
		return nil
	}
	if !owes && targetBalance.GreaterThanOrEqual(settledThreshold.Neg()) {
		return nil
	}

	amount := decimal.Min(current.Abs(), targetBalance.Abs())
	if owes {
		return &Suggestion{FromUserID: currentUserID, ToUserID: target, Amount: amount}
	}
	return &Suggestion{FromUserID: target, ToUserID: currentUserID, Amount: amount}
}
