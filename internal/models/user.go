package models

import "strings"

// User identifies the caller acting on the store.
// Users are not persisted by Quozen; they come from the identity provider's claims.
type User struct {
	// ID is the stable identity of the user.
	ID string

	// Email is the user's email address. Used to resolve invitations.
	Email string

	// Name is the display name of the user.
	Name string
}

// Matches reports whether id refers to this user, either by stable identity
// or by the email a pending invitation was addressed to.
func (u User) Matches(id string) bool {
	if id == "" {
		return false
	}
	return id == u.ID || (u.Email != "" && strings.EqualFold(id, u.Email))
}
