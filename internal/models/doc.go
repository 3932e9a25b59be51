// Package models defines the core domain models for Quozen.
//
// # Models
//
//   - Group: a shared ledger backed by one remote document
//   - Member: a row of the Members tab
//   - Expense, Split: a payment by one member divided among participants
//   - Settlement: a direct payment between two members
//   - UserSettings, CachedGroup: the per-user directory of known groups
//
// # Design Principles
//
// 1. **Row positions are volatile**: RowPosition locates a row only within the
// read that produced it. Deleting a row shifts every row after it, so writers
// re-read and compare IDs before mutating.
// 2. **Exact money**: amounts are decimal.Decimal with two-decimal precision.
// 3. **Avoid circular references**: relationships use ID strings, not pointers.
//
// # Identity
//
// A member invited by email is stored with UserID equal to that email until the
// invitee opens the group for the first time, at which point the row (and any
// settlement referencing it) is migrated to their stable identity.
package models
