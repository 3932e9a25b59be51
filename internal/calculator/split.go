package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/quozen/internal/models"
)

// DistributeAmount splits total into n shares that sum to total exactly, to the cent.
//
// Each share is total/n rounded down to the cent; the leftover cents go one
// each to the first shares. For example 100 over 3 gives [33.34, 33.33, 33.33].
// Returns nil when n < 1.
func DistributeAmount(total decimal.Decimal, n int) []decimal.Decimal {
	if n < 1 {
		return nil
	}

	cents := total.Shift(2).Round(0).IntPart()
	base := cents / int64(n)
	remainder := cents % int64(n)

	shares := make([]decimal.Decimal, n)
	for i := range shares {
		c := base
		if int64(i) < remainder {
			c++
		}
		shares[i] = decimal.New(c, -2)
	}
	return shares
}

// EqualSplits divides amount evenly among participants using DistributeAmount.
func EqualSplits(amount decimal.Decimal, participants []string) []models.Split {
	shares := DistributeAmount(amount, len(participants))
	splits := make([]models.Split, len(participants))
	for i, p := range participants {
		splits[i] = models.Split{UserID: p, Amount: shares[i]}
	}
	return splits
}
