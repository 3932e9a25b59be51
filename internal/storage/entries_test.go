package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/mmynk/quozen/internal/models"
	"github.com/mmynk/quozen/internal/storage"
)

func TestAddExpense(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.createGroup(t, "Flat", models.MemberInput{Username: "Carol"})

	e := f.addExpense(t, g.ID, alice.ID, 12.5, split(alice.ID, 6.25), split("Carol", 6.25))
	if e.ID == "" || e.RowPosition != storage.PositionOf(0) {
		t.Errorf("Unexpected expense: %+v", e)
	}
	if !e.Meta.CreatedAt.Equal(f.clock.now()) || !e.Meta.LastModified.Equal(f.clock.now()) {
		t.Errorf("Expected version stamps at %v, got %+v", f.clock.now(), e.Meta)
	}

	data, err := f.svc.GetGroupData(ctx, alice, g.ID)
	if err != nil {
		t.Fatalf("GetGroupData failed: %v", err)
	}
	got := data.Expenses[0]
	if got.ID != e.ID || !got.Amount.Equal(d(12.5)) || len(got.Splits) != 2 {
		t.Errorf("Expense did not round trip: %+v", got)
	}

	tests := []struct {
		name    string
		expense models.Expense
	}{
		{"negative amount", models.Expense{Amount: d(-1), PaidBy: alice.ID}},
		{"missing payer", models.Expense{Amount: d(1)}},
		{"payer not a member", models.Expense{Amount: d(1), PaidBy: "stranger"}},
		{"split participant not a member", models.Expense{
			Amount: d(1), PaidBy: alice.ID,
			Splits: []models.Split{split("stranger", 1)},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AddExpense(ctx, alice, g.ID, tt.expense)
			assertKind(t, err, storage.ErrValidation)
		})
	}

	t.Run("splits that do not sum are accepted", func(t *testing.T) {
		f.addExpense(t, g.ID, alice.ID, 10, split(alice.ID, 3))
	})
}

func TestUpdateExpense(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.createGroup(t, "Flat", models.MemberInput{Username: "Carol"})
	created := f.addExpense(t, g.ID, alice.ID, 10, split(alice.ID, 5), split("Carol", 5))
	original := created.Meta.LastModified

	f.clock.advance(time.Minute)
	edit := *created
	edit.Description = "Lunch"
	updated, err := f.svc.UpdateExpense(ctx, alice, g.ID, created.RowPosition, edit, &original)
	if err != nil {
		t.Fatalf("UpdateExpense failed: %v", err)
	}
	if !updated.Meta.CreatedAt.Equal(created.Meta.CreatedAt) {
		t.Errorf("Expected CreatedAt to be kept, got %v", updated.Meta.CreatedAt)
	}
	if !updated.Meta.LastModified.Equal(f.clock.now()) {
		t.Errorf("Expected LastModified re-stamped to %v, got %v", f.clock.now(), updated.Meta.LastModified)
	}

	t.Run("stale version is rejected", func(t *testing.T) {
		f.clock.advance(time.Minute)
		stale := *created
		stale.Description = "Breakfast"
		_, err := f.svc.UpdateExpense(ctx, alice, g.ID, created.RowPosition, stale, &original)
		assertKind(t, err, storage.ErrConflict)

		data, _ := f.svc.GetGroupData(ctx, alice, g.ID)
		if data.Expenses[0].Description != "Lunch" {
			t.Errorf("Expected newer edit to survive, got %q", data.Expenses[0].Description)
		}
	})

	t.Run("no expected version overwrites", func(t *testing.T) {
		blind := *created
		blind.Description = "Brunch"
		if _, err := f.svc.UpdateExpense(ctx, alice, g.ID, created.RowPosition, blind, nil); err != nil {
			t.Fatalf("UpdateExpense failed: %v", err)
		}
	})

	t.Run("header position is not found", func(t *testing.T) {
		_, err := f.svc.UpdateExpense(ctx, alice, g.ID, 1, edit, nil)
		assertKind(t, err, storage.ErrNotFound)
	})
}

func TestDeleteExpense_ShiftedRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.createGroup(t, "Flat")
	first := f.addExpense(t, g.ID, alice.ID, 1, split(alice.ID, 1))
	second := f.addExpense(t, g.ID, alice.ID, 2, split(alice.ID, 2))
	third := f.addExpense(t, g.ID, alice.ID, 3, split(alice.ID, 3))

	if err := f.svc.DeleteExpense(ctx, alice, g.ID, first.RowPosition, first.ID); err != nil {
		t.Fatalf("DeleteExpense failed: %v", err)
	}

	// second now sits where first was; a client holding stale positions must not delete it.
	err := f.svc.DeleteExpense(ctx, alice, g.ID, first.RowPosition, first.ID)
	assertKind(t, err, storage.ErrConflict)

	err = f.svc.DeleteExpense(ctx, alice, g.ID, third.RowPosition, third.ID)
	assertKind(t, err, storage.ErrNotFound)

	data, _ := f.svc.GetGroupData(ctx, alice, g.ID)
	if len(data.Expenses) != 2 || data.Expenses[0].ID != second.ID {
		t.Fatalf("Unexpected expenses after conflict: %+v", data.Expenses)
	}

	// Re-reading yields fresh positions that work.
	if err := f.svc.DeleteExpense(ctx, alice, g.ID, data.Expenses[1].RowPosition, third.ID); err != nil {
		t.Fatalf("DeleteExpense with fresh position failed: %v", err)
	}
}

func TestSettlements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.createGroup(t, "Flat", models.MemberInput{Username: "Carol"})

	st, err := f.svc.AddSettlement(ctx, alice, g.ID, models.Settlement{
		FromUserID: "Carol",
		ToUserID:   alice.ID,
		Amount:     d(7.5),
		Method:     "cash",
	})
	if err != nil {
		t.Fatalf("AddSettlement failed: %v", err)
	}
	if st.ID == "" || !st.Date.Equal(f.clock.now()) {
		t.Errorf("Expected ID and default date, got %+v", st)
	}

	invalid := []models.Settlement{
		{FromUserID: "Carol", ToUserID: alice.ID, Amount: d(0)},
		{FromUserID: alice.ID, ToUserID: alice.ID, Amount: d(1)},
		{FromUserID: "stranger", ToUserID: alice.ID, Amount: d(1)},
		{ToUserID: alice.ID, Amount: d(1)},
	}
	for _, s := range invalid {
		_, err := f.svc.AddSettlement(ctx, alice, g.ID, s)
		assertKind(t, err, storage.ErrValidation)
	}

	edit := *st
	edit.Amount = d(8)
	if _, err := f.svc.UpdateSettlement(ctx, alice, g.ID, st.RowPosition, edit); err != nil {
		t.Fatalf("UpdateSettlement failed: %v", err)
	}
	data, _ := f.svc.GetGroupData(ctx, alice, g.ID)
	if !data.Settlements[0].Amount.Equal(d(8)) {
		t.Errorf("Expected updated amount, got %s", data.Settlements[0].Amount)
	}

	err = f.svc.DeleteSettlement(ctx, alice, g.ID, st.RowPosition, "other-id")
	assertKind(t, err, storage.ErrConflict)

	if err := f.svc.DeleteSettlement(ctx, alice, g.ID, st.RowPosition, st.ID); err != nil {
		t.Fatalf("DeleteSettlement failed: %v", err)
	}
}
