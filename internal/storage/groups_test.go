package storage_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mmynk/quozen/internal/models"
	"github.com/mmynk/quozen/internal/storage"
)

func TestCreateGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := f.createGroup(t, "  Trip  ",
		models.MemberInput{Email: "bob@example.com"},
		models.MemberInput{Username: "Carol"},
		models.MemberInput{Email: "ALICE@example.com"},
	)

	if g.Name != "Trip" || !g.IsOwner {
		t.Errorf("Unexpected group: %+v", g)
	}
	if len(g.Participants) != 3 {
		t.Fatalf("Expected 3 participants, got %v", g.Participants)
	}

	data, err := f.svc.GetGroupData(ctx, alice, g.ID)
	if err != nil {
		t.Fatalf("GetGroupData failed: %v", err)
	}
	owner := findMember(data, alice.ID)
	if owner == nil || owner.Role != models.RoleOwner {
		t.Errorf("Expected alice as owner, got %+v", owner)
	}
	if owner.RowPosition != storage.PositionOf(0) {
		t.Errorf("Expected owner at first data row, got %d", owner.RowPosition)
	}
	if m := findMember(data, "bob@example.com"); m == nil || m.Name != "bob" || m.Role != models.RoleMember {
		t.Errorf("Expected pending bob row, got %+v", m)
	}
	if m := findMember(data, "Carol"); m == nil || m.Email != "" {
		t.Errorf("Expected offline Carol row, got %+v", m)
	}

	meta, err := f.store.GetFileMeta(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetFileMeta failed: %v", err)
	}
	if meta.Title != "Quozen - Trip" {
		t.Errorf("Expected prefixed title, got %q", meta.Title)
	}
	if meta.Properties[storage.PropType] != storage.TypeGroup || meta.Properties[storage.PropVersion] != storage.SchemaVersion {
		t.Errorf("Missing discovery properties: %v", meta.Properties)
	}

	shared, err := f.store.ListFiles(ctx, storage.ListFilter{Principal: bob.Email})
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if len(shared) != 1 || shared[0].ID != g.ID {
		t.Errorf("Expected group shared with bob, got %+v", shared)
	}

	settings, err := f.svc.GetSettings(ctx, alice)
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if settings.ActiveGroupID != g.ID || len(settings.GroupCache) != 1 || settings.GroupCache[0].Role != models.RoleOwner {
		t.Errorf("Unexpected settings: %+v", settings)
	}

	t.Run("blank name is rejected", func(t *testing.T) {
		_, err := f.svc.CreateGroup(ctx, alice, "   ", nil)
		assertKind(t, err, storage.ErrValidation)
	})
}

func TestJoinGroup_MigratesIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.createGroup(t, "Flat", models.MemberInput{Email: "bob@example.com"})

	f.addExpense(t, g.ID, alice.ID, 30, split(alice.ID, 15), split("bob@example.com", 15))
	if _, err := f.svc.AddSettlement(ctx, alice, g.ID, models.Settlement{
		FromUserID: "bob@example.com",
		ToUserID:   alice.ID,
		Amount:     d(5),
	}); err != nil {
		t.Fatalf("AddSettlement failed: %v", err)
	}

	joined, err := f.svc.JoinGroup(ctx, bob, g.ID)
	if err != nil {
		t.Fatalf("JoinGroup failed: %v", err)
	}
	if joined.IsOwner {
		t.Error("Expected bob not to own the group")
	}

	data, err := f.svc.GetGroupData(ctx, bob, g.ID)
	if err != nil {
		t.Fatalf("GetGroupData failed: %v", err)
	}
	if len(data.Members) != 2 {
		t.Fatalf("Expected 2 members after migration, got %d", len(data.Members))
	}
	if m := findMember(data, bob.ID); m == nil || m.Name != "Bob" || m.Email != bob.Email {
		t.Errorf("Expected migrated bob row, got %+v", m)
	}
	if data.Expenses[0].Splits[1].UserID != bob.ID {
		t.Errorf("Expected split repointed to %s, got %s", bob.ID, data.Expenses[0].Splits[1].UserID)
	}
	if data.Settlements[0].FromUserID != bob.ID {
		t.Errorf("Expected settlement repointed to %s, got %s", bob.ID, data.Settlements[0].FromUserID)
	}

	settings, err := f.svc.GetSettings(ctx, bob)
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if settings.ActiveGroupID != g.ID || settings.GroupCache[0].Role != models.RoleMember {
		t.Errorf("Unexpected settings for bob: %+v", settings)
	}

	t.Run("joining again is a no-op", func(t *testing.T) {
		if _, err := f.svc.JoinGroup(ctx, bob, g.ID); err != nil {
			t.Fatalf("JoinGroup failed: %v", err)
		}
		data, _ := f.svc.GetGroupData(ctx, bob, g.ID)
		if len(data.Members) != 2 {
			t.Errorf("Expected 2 members, got %d", len(data.Members))
		}
	})
}

func TestJoinGroup_RequiresInvitationOrPublicLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.createGroup(t, "Flat")

	_, err := f.svc.JoinGroup(ctx, dave, g.ID)
	assertKind(t, err, storage.ErrValidation)

	if err := f.store.SetPermissions(ctx, g.ID, storage.AccessPublic); err != nil {
		t.Fatalf("SetPermissions failed: %v", err)
	}
	if _, err := f.svc.JoinGroup(ctx, dave, g.ID); err != nil {
		t.Fatalf("JoinGroup failed: %v", err)
	}
	data, err := f.svc.GetGroupData(ctx, dave, g.ID)
	if err != nil {
		t.Fatalf("GetGroupData failed: %v", err)
	}
	if m := findMember(data, dave.ID); m == nil || m.Role != models.RoleMember {
		t.Errorf("Expected dave appended as member, got %+v", m)
	}

	t.Run("reconcile keeps a link-joined group", func(t *testing.T) {
		settings, err := f.newService().ReconcileGroups(ctx, dave)
		if err != nil {
			t.Fatalf("ReconcileGroups failed: %v", err)
		}
		i := settings.FindGroup(g.ID)
		if i < 0 {
			t.Fatalf("Expected %s in dave's directory, got %+v", g.ID, settings.GroupCache)
		}
		if settings.GroupCache[i].Role != models.RoleMember {
			t.Errorf("Expected member role, got %s", settings.GroupCache[i].Role)
		}
	})
}

func TestImportGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("legacy document is stamped and caller added", func(t *testing.T) {
		id, err := f.store.CreateFile(ctx, storage.CreateFileRequest{
			Name:  "Quozen - Legacy",
			Owner: alice.Email,
			Tabs:  storage.GroupTabs,
		})
		if err != nil {
			t.Fatalf("CreateFile failed: %v", err)
		}
		err = f.store.Initialize(ctx, id, map[string][][]string{
			storage.TabExpenses:    {storage.ExpensesHeader},
			storage.TabSettlements: {storage.SettlementsHeader},
			storage.TabMembers:     {storage.MembersHeader},
		})
		if err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}

		g, err := f.svc.ImportGroup(ctx, alice, id)
		if err != nil {
			t.Fatalf("ImportGroup failed: %v", err)
		}
		if g.Name != "Legacy" || !g.IsOwner || len(g.Participants) != 1 {
			t.Errorf("Unexpected group: %+v", g)
		}
		meta, _ := f.store.GetFileMeta(ctx, id)
		if meta.Properties[storage.PropType] != storage.TypeGroup {
			t.Errorf("Expected legacy document to be stamped, got %v", meta.Properties)
		}
	})

	t.Run("document without required tabs is rejected", func(t *testing.T) {
		id, err := f.store.CreateFile(ctx, storage.CreateFileRequest{
			Name:  "Quozen - Broken",
			Owner: alice.Email,
			Tabs:  []string{storage.TabExpenses},
		})
		if err != nil {
			t.Fatalf("CreateFile failed: %v", err)
		}
		_, err = f.svc.ImportGroup(ctx, alice, id)
		assertKind(t, err, storage.ErrValidation)
	})

	t.Run("missing document", func(t *testing.T) {
		_, err := f.svc.ImportGroup(ctx, alice, "nope")
		assertKind(t, err, storage.ErrNotFound)
	})

	t.Run("outsider cannot import a restricted group", func(t *testing.T) {
		g := f.createGroup(t, "Private")
		_, err := f.svc.ImportGroup(ctx, dave, g.ID)
		assertKind(t, err, storage.ErrPermission)

		data, _ := f.svc.GetGroupData(ctx, alice, g.ID)
		if len(data.Members) != 1 {
			t.Errorf("Expected no member row for dave, got %+v", data.Members)
		}
	})

	t.Run("shared user is added on import", func(t *testing.T) {
		g := f.createGroup(t, "Shared")
		if _, err := f.store.ShareFile(ctx, g.ID, dave.Email, "writer"); err != nil {
			t.Fatalf("ShareFile failed: %v", err)
		}
		imported, err := f.svc.ImportGroup(ctx, dave, g.ID)
		if err != nil {
			t.Fatalf("ImportGroup failed: %v", err)
		}
		if imported.IsOwner || len(imported.Participants) != 2 {
			t.Errorf("Unexpected group: %+v", imported)
		}
	})

	t.Run("public group is importable", func(t *testing.T) {
		g := f.createGroup(t, "Open")
		if err := f.store.SetPermissions(ctx, g.ID, storage.AccessPublic); err != nil {
			t.Fatalf("SetPermissions failed: %v", err)
		}
		if _, err := f.svc.ImportGroup(ctx, dave, g.ID); err != nil {
			t.Fatalf("ImportGroup failed: %v", err)
		}
		shared, err := f.store.ListFiles(ctx, storage.ListFilter{Principal: dave.Email, Name: "Quozen - Open"})
		if err != nil {
			t.Fatalf("ListFiles failed: %v", err)
		}
		if len(shared) != 1 {
			t.Errorf("Expected the group shared with dave, got %+v", shared)
		}
	})
}

func TestLeaveGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.createGroup(t, "Flat", models.MemberInput{Email: "bob@example.com"})
	if _, err := f.svc.JoinGroup(ctx, bob, g.ID); err != nil {
		t.Fatalf("JoinGroup failed: %v", err)
	}

	t.Run("sole owner cannot leave", func(t *testing.T) {
		assertKind(t, f.svc.LeaveGroup(ctx, alice, g.ID), storage.ErrValidation)
	})

	t.Run("member with expenses cannot leave", func(t *testing.T) {
		e := f.addExpense(t, g.ID, bob.ID, 10, split(alice.ID, 5), split(bob.ID, 5))
		assertKind(t, f.svc.LeaveGroup(ctx, bob, g.ID), storage.ErrValidation)
		if err := f.svc.DeleteExpense(ctx, alice, g.ID, e.RowPosition, e.ID); err != nil {
			t.Fatalf("DeleteExpense failed: %v", err)
		}
	})

	t.Run("member leaves", func(t *testing.T) {
		if err := f.svc.LeaveGroup(ctx, bob, g.ID); err != nil {
			t.Fatalf("LeaveGroup failed: %v", err)
		}
		data, _ := f.svc.GetGroupData(ctx, alice, g.ID)
		if findMember(data, bob.ID) != nil {
			t.Error("Expected bob's row to be removed")
		}
		settings, err := f.svc.GetSettings(ctx, bob)
		if err != nil {
			t.Fatalf("GetSettings failed: %v", err)
		}
		if settings.FindGroup(g.ID) >= 0 || settings.ActiveGroupID == g.ID {
			t.Errorf("Expected group dropped from bob's settings: %+v", settings)
		}
	})

	t.Run("non-member", func(t *testing.T) {
		assertKind(t, f.svc.LeaveGroup(ctx, dave, g.ID), storage.ErrNotFound)
	})
}

func TestUpdateGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.createGroup(t, "Flat",
		models.MemberInput{Email: "bob@example.com"},
		models.MemberInput{Username: "Carol"},
	)
	f.addExpense(t, g.ID, alice.ID, 20, split(alice.ID, 10), split("bob@example.com", 10))

	t.Run("only the owner may edit", func(t *testing.T) {
		_, err := f.svc.UpdateGroup(ctx, bob, g.ID, "Hijacked", nil)
		assertKind(t, err, storage.ErrPermission)
	})

	t.Run("removing a member with expenses changes nothing", func(t *testing.T) {
		_, err := f.svc.UpdateGroup(ctx, alice, g.ID, "Renamed", []models.MemberInput{{Username: "Carol"}})
		assertKind(t, err, storage.ErrValidation)

		data, _ := f.svc.GetGroupData(ctx, alice, g.ID)
		if data.Group.Name != "Flat" || len(data.Members) != 3 {
			t.Errorf("Expected untouched group, got %q with %d members", data.Group.Name, len(data.Members))
		}
	})

	t.Run("rename, add and remove", func(t *testing.T) {
		updated, err := f.svc.UpdateGroup(ctx, alice, g.ID, "Flat 2", []models.MemberInput{
			{Email: "BOB@example.com"},
			{Email: dave.Email},
		})
		if err != nil {
			t.Fatalf("UpdateGroup failed: %v", err)
		}
		if updated.Name != "Flat 2" {
			t.Errorf("Expected renamed group, got %q", updated.Name)
		}
		want := map[string]bool{alice.ID: true, "bob@example.com": true, dave.Email: true}
		if len(updated.Participants) != len(want) {
			t.Fatalf("Expected %d participants, got %v", len(want), updated.Participants)
		}
		for _, id := range updated.Participants {
			if !want[id] {
				t.Errorf("Unexpected participant %s", id)
			}
		}

		settings, _ := f.svc.GetSettings(ctx, alice)
		if settings.GroupCache[0].Name != "Flat 2" {
			t.Errorf("Expected cached name to follow rename, got %q", settings.GroupCache[0].Name)
		}
	})
}

func TestDeleteGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.createGroup(t, "Flat", models.MemberInput{Email: "bob@example.com"})
	other := f.createGroup(t, "Trip", models.MemberInput{Email: "bob@example.com"})
	for _, id := range []string{g.ID, other.ID} {
		if _, err := f.svc.JoinGroup(ctx, bob, id); err != nil {
			t.Fatalf("JoinGroup failed: %v", err)
		}
	}

	assertKind(t, f.svc.DeleteGroup(ctx, bob, g.ID), storage.ErrPermission)

	if err := f.svc.DeleteGroup(ctx, alice, g.ID); err != nil {
		t.Fatalf("DeleteGroup failed: %v", err)
	}
	if _, err := f.store.GetFileMeta(ctx, g.ID); !storage.IsNotFound(err) {
		t.Errorf("Expected document gone, got %v", err)
	}

	for _, u := range []models.User{alice, bob} {
		settings, err := f.newService().GetSettings(ctx, u)
		if err != nil {
			t.Fatalf("GetSettings failed: %v", err)
		}
		if settings.FindGroup(g.ID) >= 0 {
			t.Errorf("Expected %s's settings to be scrubbed", u.Email)
		}
		if settings.ActiveGroupID == g.ID {
			t.Errorf("Expected %s's active group to move off the deleted group", u.Email)
		}
		if settings.FindGroup(other.ID) < 0 {
			t.Errorf("Expected %s to keep the other group", u.Email)
		}
	}
}

func TestCheckMemberHasExpenses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.createGroup(t, "Flat", models.MemberInput{Username: "Carol"})
	f.addExpense(t, g.ID, alice.ID, 10, split(alice.ID, 10), split("Carol", 0))

	tests := []struct {
		member string
		want   bool
	}{
		{alice.ID, true},
		{"Carol", false},
		{"nobody", false},
	}
	for _, tt := range tests {
		t.Run(tt.member, func(t *testing.T) {
			got, err := f.svc.CheckMemberHasExpenses(ctx, alice, g.ID, tt.member)
			if err != nil {
				t.Fatalf("CheckMemberHasExpenses failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestGroupAccess_RequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.createGroup(t, "Flat")
	e := f.addExpense(t, g.ID, alice.ID, 10, split(alice.ID, 10))

	t.Run("read", func(t *testing.T) {
		_, err := f.svc.GetGroupData(ctx, dave, g.ID)
		assertKind(t, err, storage.ErrPermission)
		_, err = f.svc.CheckMemberHasExpenses(ctx, dave, g.ID, alice.ID)
		assertKind(t, err, storage.ErrPermission)
	})

	t.Run("expenses", func(t *testing.T) {
		_, err := f.svc.AddExpense(ctx, dave, g.ID, models.Expense{Amount: d(1), PaidBy: alice.ID})
		assertKind(t, err, storage.ErrPermission)
		_, err = f.svc.UpdateExpense(ctx, dave, g.ID, e.RowPosition, *e, nil)
		assertKind(t, err, storage.ErrPermission)
		assertKind(t, f.svc.DeleteExpense(ctx, dave, g.ID, e.RowPosition, e.ID), storage.ErrPermission)
	})

	t.Run("settlements", func(t *testing.T) {
		st, err := f.svc.AddSettlement(ctx, dave, g.ID, models.Settlement{FromUserID: alice.ID, ToUserID: dave.ID, Amount: d(1)})
		assertKind(t, err, storage.ErrPermission)
		if st != nil {
			t.Errorf("Expected no settlement, got %+v", st)
		}
		_, err = f.svc.UpdateSettlement(ctx, dave, g.ID, storage.PositionOf(0), models.Settlement{ID: "x"})
		assertKind(t, err, storage.ErrPermission)
		assertKind(t, f.svc.DeleteSettlement(ctx, dave, g.ID, storage.PositionOf(0), "x"), storage.ErrPermission)
	})

	data, err := f.svc.GetGroupData(ctx, alice, g.ID)
	if err != nil {
		t.Fatalf("GetGroupData failed: %v", err)
	}
	if len(data.Expenses) != 1 || data.Expenses[0].ID != e.ID {
		t.Errorf("Expected the group untouched, got %+v", data.Expenses)
	}
}

// failingShares is an adapter whose ShareFile always fails.
type failingShares struct {
	storage.Adapter
}

func (failingShares) ShareFile(context.Context, string, string, string) (string, error) {
	return "", errors.New("sharing unavailable")
}

func TestCreateGroup_DiscardsDocumentWhenSetupFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := storage.NewService(failingShares{Adapter: f.store},
		storage.WithClock(f.clock.now),
		storage.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	_, err := svc.CreateGroup(ctx, alice, "Flat", []models.MemberInput{{Email: bob.Email}})
	if err == nil {
		t.Fatal("Expected CreateGroup to fail")
	}

	files, err := f.store.ListFiles(ctx, storage.ListFilter{Properties: map[string]string{storage.PropType: storage.TypeGroup}})
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("Expected the half-built document to be deleted, got %+v", files)
	}
}
