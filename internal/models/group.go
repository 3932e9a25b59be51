package models

import "time"

// Role is a member's role within a group.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

// Group represents a shared ledger backed by one remote document.
type Group struct {
	// ID is the backing document ID.
	ID string

	// Name is the display name of the group (e.g., "Roommates", "Work Lunch").
	Name string

	// Participants is the list of member IDs in this group.
	Participants []string

	// IsOwner reports whether the acting user owns the group.
	// Derived on every read, never stored.
	IsOwner bool
}

// Member is one row of a group's Members tab.
type Member struct {
	// UserID is the member's stable identity, or their email while an
	// invitation is still pending.
	UserID string

	Email string
	Name  string
	Role  Role

	// JoinedAt is when the member row was written.
	JoinedAt time.Time

	// RowPosition is the member's row in the Members tab at read time.
	// Zero until persisted.
	RowPosition int
}

// MemberInput describes a desired member when creating or updating a group.
// Email takes precedence over Username when matching existing members.
type MemberInput struct {
	Email    string
	Username string
}

// Key returns the identifier a new member row is addressed by.
func (in MemberInput) Key() string {
	if in.Email != "" {
		return in.Email
	}
	return in.Username
}

// GroupData is a full read of a group's document.
type GroupData struct {
	Group       Group
	Members     []Member
	Expenses    []Expense
	Settlements []Settlement
}
