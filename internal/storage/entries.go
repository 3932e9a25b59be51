package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mmynk/quozen/internal/models"
)

// AddExpense appends a new expense on behalf of actor, who must be a member.
// The ID and version stamps are assigned here. The payer and every split
// participant must be members of the group.
func (s *Service) AddExpense(ctx context.Context, actor models.User, groupID string, expense models.Expense) (created *models.Expense, err error) {
	ctx, end := begin(ctx, "AddExpense", attribute.String("group_id", groupID))
	defer end(&err)

	members, err := s.requireMember(ctx, "AddExpense", actor, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.validateExpense("AddExpense", expense, members); err != nil {
		return nil, err
	}

	now := s.now()
	expense.ID = s.newID()
	expense.Meta = models.ExpenseMeta{CreatedAt: now, LastModified: now}

	pos, err := s.adapter.AppendRow(ctx, groupID, TabExpenses, EncodeExpense(expense))
	if err != nil {
		return nil, fmt.Errorf("failed to append expense: %w", err)
	}
	expense.RowPosition = pos

	s.logger.Info("Expense added",
		"group_id", groupID,
		"expense_id", expense.ID,
		"amount", expense.Amount.StringFixed(2),
		"position", pos,
	)
	return &expense, nil
}

// UpdateExpense overwrites the expense at position.
//
// The row is re-read first: if its ID no longer matches expense.ID the rows
// have shifted and a conflict is returned. If expectedLastModified is given
// and the stored stamp is strictly newer, someone else edited the expense and
// a conflict is returned instead of overwriting their change. On success the
// stored CreatedAt is kept and LastModified is re-stamped.
func (s *Service) UpdateExpense(ctx context.Context, actor models.User, groupID string, position int, expense models.Expense, expectedLastModified *time.Time) (updated *models.Expense, err error) {
	ctx, end := begin(ctx, "UpdateExpense",
		attribute.String("group_id", groupID),
		attribute.String("expense_id", expense.ID),
		attribute.Int("position", position),
	)
	defer end(&err)

	members, err := s.requireMember(ctx, "UpdateExpense", actor, groupID)
	if err != nil {
		return nil, err
	}
	row, err := s.verifyRow(ctx, "UpdateExpense", groupID, TabExpenses, position, expense.ID)
	if err != nil {
		return nil, err
	}
	stored := DecodeExpense(row, position)

	if expectedLastModified != nil && stored.Meta.LastModified.After(*expectedLastModified) {
		s.logger.Warn("Stale expense update rejected",
			"group_id", groupID,
			"expense_id", expense.ID,
			"expected", expectedLastModified.Format(time.RFC3339Nano),
			"actual", stored.Meta.LastModified.Format(time.RFC3339Nano),
		)
		return nil, Conflict("UpdateExpense", "expense was modified by someone else",
			expectedLastModified.UTC().Format(time.RFC3339Nano),
			stored.Meta.LastModified.UTC().Format(time.RFC3339Nano),
		)
	}

	if err := s.validateExpense("UpdateExpense", expense, members); err != nil {
		return nil, err
	}

	expense.Meta.CreatedAt = stored.Meta.CreatedAt
	expense.Meta.LastModified = s.now()
	expense.RowPosition = position

	if err := s.adapter.UpdateRow(ctx, groupID, TabExpenses, position, EncodeExpense(expense)); err != nil {
		return nil, fmt.Errorf("failed to update expense: %w", err)
	}

	s.logger.Info("Expense updated", "group_id", groupID, "expense_id", expense.ID, "position", position)
	return &expense, nil
}

// DeleteExpense deletes the expense at position after confirming the row
// still holds expectedID.
func (s *Service) DeleteExpense(ctx context.Context, actor models.User, groupID string, position int, expectedID string) (err error) {
	ctx, end := begin(ctx, "DeleteExpense",
		attribute.String("group_id", groupID),
		attribute.String("expense_id", expectedID),
		attribute.Int("position", position),
	)
	defer end(&err)

	if _, err := s.requireMember(ctx, "DeleteExpense", actor, groupID); err != nil {
		return err
	}
	if _, err := s.verifyRow(ctx, "DeleteExpense", groupID, TabExpenses, position, expectedID); err != nil {
		return err
	}
	if err := s.adapter.DeleteRow(ctx, groupID, TabExpenses, position); err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}

	s.logger.Info("Expense deleted", "group_id", groupID, "expense_id", expectedID, "position", position)
	return nil
}

func (s *Service) validateExpense(op string, e models.Expense, members []models.Member) error {
	if e.Amount.IsNegative() {
		return Validation(op, "amount must not be negative")
	}
	if e.PaidBy == "" {
		return Validation(op, "payer is required")
	}
	if !isMember(members, e.PaidBy) {
		return Validation(op, "payer %s is not a member of this group", e.PaidBy)
	}
	for _, sp := range e.Splits {
		if !isMember(members, sp.UserID) {
			return Validation(op, "split participant %s is not a member of this group", sp.UserID)
		}
	}
	if diff := e.Amount.Sub(e.SplitTotal()); diff.Abs().GreaterThan(decimal.NewFromFloat(splitTolerance)) {
		// Not rejected: the payer absorbs the difference.
		s.logger.Warn("Expense splits do not sum to amount",
			"expense_id", e.ID,
			"amount", e.Amount.StringFixed(2),
			"splits_total", e.SplitTotal().StringFixed(2),
		)
	}
	return nil
}

// AddSettlement appends a payment between two members on behalf of actor,
// who must be a member.
func (s *Service) AddSettlement(ctx context.Context, actor models.User, groupID string, settlement models.Settlement) (created *models.Settlement, err error) {
	ctx, end := begin(ctx, "AddSettlement", attribute.String("group_id", groupID))
	defer end(&err)

	members, err := s.requireMember(ctx, "AddSettlement", actor, groupID)
	if err != nil {
		return nil, err
	}
	if err := validateSettlement("AddSettlement", settlement, members); err != nil {
		return nil, err
	}

	settlement.ID = s.newID()
	if settlement.Date.IsZero() {
		settlement.Date = s.now()
	}
	pos, err := s.adapter.AppendRow(ctx, groupID, TabSettlements, EncodeSettlement(settlement))
	if err != nil {
		return nil, fmt.Errorf("failed to append settlement: %w", err)
	}
	settlement.RowPosition = pos

	s.logger.Info("Settlement added",
		"group_id", groupID,
		"settlement_id", settlement.ID,
		"from", settlement.FromUserID,
		"to", settlement.ToUserID,
		"amount", settlement.Amount.StringFixed(2),
	)
	return &settlement, nil
}

// UpdateSettlement overwrites the settlement at position after confirming the
// row still holds settlement.ID.
func (s *Service) UpdateSettlement(ctx context.Context, actor models.User, groupID string, position int, settlement models.Settlement) (updated *models.Settlement, err error) {
	ctx, end := begin(ctx, "UpdateSettlement",
		attribute.String("group_id", groupID),
		attribute.String("settlement_id", settlement.ID),
		attribute.Int("position", position),
	)
	defer end(&err)

	members, err := s.requireMember(ctx, "UpdateSettlement", actor, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := s.verifyRow(ctx, "UpdateSettlement", groupID, TabSettlements, position, settlement.ID); err != nil {
		return nil, err
	}
	if err := validateSettlement("UpdateSettlement", settlement, members); err != nil {
		return nil, err
	}

	settlement.RowPosition = position
	if err := s.adapter.UpdateRow(ctx, groupID, TabSettlements, position, EncodeSettlement(settlement)); err != nil {
		return nil, fmt.Errorf("failed to update settlement: %w", err)
	}
	return &settlement, nil
}

// DeleteSettlement deletes the settlement at position after confirming the
// row still holds expectedID.
func (s *Service) DeleteSettlement(ctx context.Context, actor models.User, groupID string, position int, expectedID string) (err error) {
	ctx, end := begin(ctx, "DeleteSettlement",
		attribute.String("group_id", groupID),
		attribute.String("settlement_id", expectedID),
		attribute.Int("position", position),
	)
	defer end(&err)

	if _, err := s.requireMember(ctx, "DeleteSettlement", actor, groupID); err != nil {
		return err
	}
	if _, err := s.verifyRow(ctx, "DeleteSettlement", groupID, TabSettlements, position, expectedID); err != nil {
		return err
	}
	if err := s.adapter.DeleteRow(ctx, groupID, TabSettlements, position); err != nil {
		return fmt.Errorf("failed to delete settlement: %w", err)
	}
	return nil
}

func validateSettlement(op string, st models.Settlement, members []models.Member) error {
	if !st.Amount.IsPositive() {
		return Validation(op, "amount must be positive")
	}
	if st.FromUserID == "" || st.ToUserID == "" {
		return Validation(op, "both parties are required")
	}
	if st.FromUserID == st.ToUserID {
		return Validation(op, "a member cannot settle with themselves")
	}
	for _, id := range []string{st.FromUserID, st.ToUserID} {
		if !isMember(members, id) {
			return Validation(op, "%s is not a member of this group", id)
		}
	}
	return nil
}
