// Package storage turns a remote, transaction-less tabular document store into
// a lightweight consistent database for Quozen groups.
//
// The Adapter interface is the narrow contract over the document store. The
// Service layers group lifecycle, optimistic concurrency and the per-user
// settings directory on top of it.
package storage

import (
	"context"
	"time"
)

// Tab names within a group document.
const (
	TabExpenses    = "Expenses"
	TabSettlements = "Settlements"
	TabMembers     = "Members"
)

// HeaderRows is the number of header rows above the first data row.
// A data row at slice index i lives at row position i+HeaderRows+1.
const HeaderRows = 1

// Access is a document's link-sharing mode.
type Access string

const (
	AccessRestricted Access = "restricted"
	AccessPublic     Access = "public"
)

// CreateFileRequest describes a new document.
type CreateFileRequest struct {
	Name       string
	Owner      string
	Tabs       []string
	Properties map[string]string
}

// ListFilter selects documents. Zero-valued fields match everything.
type ListFilter struct {
	// Name matches the exact document name.
	Name string
	// NamePrefix matches the start of the document name.
	NamePrefix string
	// Properties must all be present with equal values.
	Properties map[string]string
	// Principal restricts results to documents the principal owns or was shared.
	Principal string
	// OwnedOnly further restricts results to documents Principal owns.
	OwnedOnly bool
}

// Capabilities are what the listing principal may do with a document.
type Capabilities struct {
	CanEdit   bool
	CanDelete bool
}

// FileInfo is one listed document.
type FileInfo struct {
	ID           string
	Name         string
	CreatedTime  time.Time
	ModifiedTime time.Time
	Owners       []string
	Capabilities Capabilities
	Properties   map[string]string
}

// FileMeta is document-level metadata.
type FileMeta struct {
	Title      string
	Tabs       []string
	Properties map[string]string
	Owners     []string
}

// Adapter is the narrow interface over the remote document store.
// It carries no business rules. Row positions are 1-based and include the
// header row, so the first data row is at position HeaderRows+1.
//
// Implementations return *Error with KindNotFound for missing documents or
// rows and KindPermission for refused sharing.
type Adapter interface {
	CreateFile(ctx context.Context, req CreateFileRequest) (string, error)
	DeleteFile(ctx context.Context, fileID string) error
	RenameFile(ctx context.Context, fileID, name string) error
	// ShareFile grants principal the given role and returns their display name, if known.
	ShareFile(ctx context.Context, fileID, principal, role string) (string, error)
	SetPermissions(ctx context.Context, fileID string, access Access) error
	GetPermissions(ctx context.Context, fileID string) (Access, error)
	AddProperties(ctx context.Context, fileID string, props map[string]string) error
	ListFiles(ctx context.Context, filter ListFilter) ([]FileInfo, error)
	GetFileMeta(ctx context.Context, fileID string) (*FileMeta, error)

	// ReadRange returns every data row of tab, header excluded.
	ReadRange(ctx context.Context, fileID, tab string) ([][]string, error)
	// Initialize bulk-writes the given rows (header included) into each tab.
	// Used only at creation.
	Initialize(ctx context.Context, fileID string, tabs map[string][][]string) error
	AppendRow(ctx context.Context, fileID, tab string, row []string) (int, error)
	UpdateRow(ctx context.Context, fileID, tab string, position int, row []string) error
	// DeleteRow removes the row, shifting every later row up by one position.
	DeleteRow(ctx context.Context, fileID, tab string, position int) error
	ReadRow(ctx context.Context, fileID, tab string, position int) ([]string, error)

	// ReadContent and WriteContent access a plain (non-tabular) document body.
	ReadContent(ctx context.Context, fileID string) ([]byte, error)
	WriteContent(ctx context.Context, fileID string, data []byte) error
}

// PositionOf converts a data-row slice index to its row position.
func PositionOf(index int) int {
	return index + HeaderRows + 1
}

// IndexOf converts a row position to its data-row slice index.
// The result is negative for header positions.
func IndexOf(position int) int {
	return position - HeaderRows - 1
}
