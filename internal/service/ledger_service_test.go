package service

import (
	"testing"

	"connectrpc.com/connect"
)

func TestLedgerService_GetBalances(t *testing.T) {
	ts := setupTestServer(t)
	group := createGroup(t, ts, "Trip", MemberInput{Email: bob.Email})
	if _, err := call[GroupRequest, GroupResponse](t, ts, GroupServiceJoinGroupProcedure, bob, &GroupRequest{GroupID: group.ID}); err != nil {
		t.Fatalf("JoinGroup failed: %v", err)
	}
	_, err := call[AddExpenseRequest, ExpenseResponse](t, ts, GroupServiceAddExpenseProcedure, alice, &AddExpenseRequest{
		GroupID:    group.ID,
		Expense:    Expense{Description: "Dinner", Amount: d("30"), PaidBy: alice.ID},
		SplitAmong: []string{alice.ID, bob.ID},
	})
	if err != nil {
		t.Fatalf("AddExpense failed: %v", err)
	}

	resp, err := call[GroupRequest, BalancesResponse](t, ts, LedgerServiceGetBalancesProcedure, bob, &GroupRequest{GroupID: group.ID})
	if err != nil {
		t.Fatalf("GetBalances failed: %v", err)
	}
	if !resp.Balances[alice.ID].Equal(d("15")) || !resp.Balances[bob.ID].Equal(d("-15")) {
		t.Errorf("unexpected balances: %v", resp.Balances)
	}
	sg := resp.Suggestion
	if sg == nil || sg.FromUserID != bob.ID || sg.ToUserID != alice.ID || !sg.Amount.Equal(d("15")) {
		t.Errorf("expected bob to pay alice 15, got %+v", sg)
	}

	t.Run("creditor sees who owes them", func(t *testing.T) {
		resp, err := call[GroupRequest, BalancesResponse](t, ts, LedgerServiceGetBalancesProcedure, alice, &GroupRequest{GroupID: group.ID})
		if err != nil {
			t.Fatalf("GetBalances failed: %v", err)
		}
		if resp.Suggestion == nil || resp.Suggestion.FromUserID != bob.ID || resp.Suggestion.ToUserID != alice.ID {
			t.Errorf("unexpected suggestion: %+v", resp.Suggestion)
		}
	})

	t.Run("non-member is denied", func(t *testing.T) {
		_, err := call[GroupRequest, BalancesResponse](t, ts, LedgerServiceGetBalancesProcedure, carol, &GroupRequest{GroupID: group.ID})
		assertCode(t, err, connect.CodePermissionDenied)
	})

	t.Run("missing group", func(t *testing.T) {
		_, err := call[GroupRequest, BalancesResponse](t, ts, LedgerServiceGetBalancesProcedure, alice, &GroupRequest{GroupID: "missing"})
		assertCode(t, err, connect.CodeNotFound)
	})
}

func TestLedgerService_DistributeAmount(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := call[DistributeRequest, DistributeResponse](t, ts, LedgerServiceDistributeAmountProcedure, alice,
		&DistributeRequest{Amount: d("10"), Count: 3})
	if err != nil {
		t.Fatalf("DistributeAmount failed: %v", err)
	}
	want := []string{"3.34", "3.33", "3.33"}
	if len(resp.Shares) != len(want) {
		t.Fatalf("expected %d shares, got %v", len(want), resp.Shares)
	}
	for i, w := range want {
		if !resp.Shares[i].Equal(d(w)) {
			t.Errorf("share %d = %s, want %s", i, resp.Shares[i], w)
		}
	}

	_, err = call[DistributeRequest, DistributeResponse](t, ts, LedgerServiceDistributeAmountProcedure, alice,
		&DistributeRequest{Amount: d("10"), Count: 0})
	assertCode(t, err, connect.CodeInvalidArgument)
}
