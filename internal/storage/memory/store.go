// Package memory provides an in-memory implementation of storage.Adapter.
//
// Documents live only for the lifetime of the process. It backs tests and
// `quozen serve --memory`.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmynk/quozen/internal/storage"
)

var _ storage.Adapter = (*Store)(nil)

type document struct {
	id       string
	name     string
	owner    string
	shares   map[string]string
	access   storage.Access
	props    map[string]string
	tabNames []string
	tabs     map[string][][]string
	content  []byte
	created  time.Time
	modified time.Time
}

// Store is a mutex-guarded set of documents.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*document
	seq  int
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source for created and modified stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		docs: make(map[string]*document),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) get(op, fileID string) (*document, error) {
	d, ok := s.docs[fileID]
	if !ok {
		return nil, storage.NotFound(op, "document %s not found", fileID)
	}
	return d, nil
}

// touch bumps the modified stamp so pollers notice the edit.
func (s *Store) touch(d *document) {
	d.modified = s.now()
	d.props["last_touch"] = d.modified.UTC().Format(time.RFC3339Nano)
}

func copyRow(row []string) []string {
	return append([]string(nil), row...)
}

func copyProps(props map[string]string) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

func (s *Store) CreateFile(_ context.Context, req storage.CreateFileRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	now := s.now()
	d := &document{
		id:       fmt.Sprintf("mem-%04d", s.seq),
		name:     req.Name,
		owner:    req.Owner,
		shares:   make(map[string]string),
		access:   storage.AccessRestricted,
		props:    copyProps(req.Properties),
		tabNames: append([]string(nil), req.Tabs...),
		tabs:     make(map[string][][]string, len(req.Tabs)),
		created:  now,
		modified: now,
	}
	for _, tab := range req.Tabs {
		d.tabs[tab] = nil
	}
	s.docs[d.id] = d
	return d.id, nil
}

func (s *Store) DeleteFile(_ context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.get("DeleteFile", fileID); err != nil {
		return err
	}
	delete(s.docs, fileID)
	return nil
}

func (s *Store) RenameFile(_ context.Context, fileID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.get("RenameFile", fileID)
	if err != nil {
		return err
	}
	d.name = name
	s.touch(d)
	return nil
}

func (s *Store) ShareFile(_ context.Context, fileID, principal, role string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.get("ShareFile", fileID)
	if err != nil {
		return "", err
	}
	if principal == "" {
		return "", storage.Validation("ShareFile", "principal is required")
	}
	d.shares[strings.ToLower(principal)] = role
	return "", nil
}

func (s *Store) SetPermissions(_ context.Context, fileID string, access storage.Access) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.get("SetPermissions", fileID)
	if err != nil {
		return err
	}
	d.access = access
	return nil
}

func (s *Store) GetPermissions(_ context.Context, fileID string) (storage.Access, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, err := s.get("GetPermissions", fileID)
	if err != nil {
		return "", err
	}
	return d.access, nil
}

func (s *Store) AddProperties(_ context.Context, fileID string, props map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.get("AddProperties", fileID)
	if err != nil {
		return err
	}
	for k, v := range props {
		d.props[k] = v
	}
	return nil
}

func (s *Store) ListFiles(_ context.Context, filter storage.ListFilter) ([]storage.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.FileInfo
	for _, d := range s.docs {
		if filter.Name != "" && d.name != filter.Name {
			continue
		}
		if filter.NamePrefix != "" && !strings.HasPrefix(d.name, filter.NamePrefix) {
			continue
		}
		if !hasProperties(d.props, filter.Properties) {
			continue
		}
		owned := filter.Principal != "" && strings.EqualFold(d.owner, filter.Principal)
		role, shared := d.shares[strings.ToLower(filter.Principal)]
		if filter.Principal != "" && !owned && !shared {
			continue
		}
		if filter.OwnedOnly && filter.Principal != "" && !owned {
			continue
		}
		out = append(out, storage.FileInfo{
			ID:           d.id,
			Name:         d.name,
			CreatedTime:  d.created,
			ModifiedTime: d.modified,
			Owners:       []string{d.owner},
			Capabilities: storage.Capabilities{
				CanEdit:   owned || role == "writer" || filter.Principal == "",
				CanDelete: owned,
			},
			Properties: copyProps(d.props),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func hasProperties(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

func (s *Store) GetFileMeta(_ context.Context, fileID string) (*storage.FileMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, err := s.get("GetFileMeta", fileID)
	if err != nil {
		return nil, err
	}
	return &storage.FileMeta{
		Title:      d.name,
		Tabs:       append([]string(nil), d.tabNames...),
		Properties: copyProps(d.props),
		Owners:     []string{d.owner},
	}, nil
}

// tab returns the named tab's rows, header included.
func (s *Store) tab(op, fileID, tab string) (*document, [][]string, error) {
	d, err := s.get(op, fileID)
	if err != nil {
		return nil, nil, err
	}
	rows, ok := d.tabs[tab]
	if !ok {
		return nil, nil, storage.NotFound(op, "tab %s not found in %s", tab, fileID)
	}
	return d, rows, nil
}

func (s *Store) ReadRange(_ context.Context, fileID, tab string) ([][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, rows, err := s.tab("ReadRange", fileID, tab)
	if err != nil {
		return nil, err
	}
	if len(rows) <= storage.HeaderRows {
		return [][]string{}, nil
	}
	out := make([][]string, 0, len(rows)-storage.HeaderRows)
	for _, row := range rows[storage.HeaderRows:] {
		out = append(out, copyRow(row))
	}
	return out, nil
}

func (s *Store) Initialize(_ context.Context, fileID string, tabs map[string][][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.get("Initialize", fileID)
	if err != nil {
		return err
	}
	for name, rows := range tabs {
		if _, ok := d.tabs[name]; !ok {
			d.tabNames = append(d.tabNames, name)
		}
		copied := make([][]string, len(rows))
		for i, row := range rows {
			copied[i] = copyRow(row)
		}
		d.tabs[name] = copied
	}
	s.touch(d)
	return nil
}

func (s *Store) AppendRow(_ context.Context, fileID, tab string, row []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, rows, err := s.tab("AppendRow", fileID, tab)
	if err != nil {
		return 0, err
	}
	d.tabs[tab] = append(rows, copyRow(row))
	s.touch(d)
	return len(d.tabs[tab]), nil
}

func (s *Store) UpdateRow(_ context.Context, fileID, tab string, position int, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, rows, err := s.tab("UpdateRow", fileID, tab)
	if err != nil {
		return err
	}
	if position < 1 || position > len(rows) {
		return storage.NotFound("UpdateRow", "row %d not found in %s", position, tab)
	}
	rows[position-1] = copyRow(row)
	s.touch(d)
	return nil
}

func (s *Store) DeleteRow(_ context.Context, fileID, tab string, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, rows, err := s.tab("DeleteRow", fileID, tab)
	if err != nil {
		return err
	}
	if position < 1 || position > len(rows) {
		return storage.NotFound("DeleteRow", "row %d not found in %s", position, tab)
	}
	d.tabs[tab] = append(rows[:position-1], rows[position:]...)
	s.touch(d)
	return nil
}

func (s *Store) ReadRow(_ context.Context, fileID, tab string, position int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, rows, err := s.tab("ReadRow", fileID, tab)
	if err != nil {
		return nil, err
	}
	if position < 1 || position > len(rows) {
		return nil, storage.NotFound("ReadRow", "row %d not found in %s", position, tab)
	}
	return copyRow(rows[position-1]), nil
}

func (s *Store) ReadContent(_ context.Context, fileID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, err := s.get("ReadContent", fileID)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), d.content...), nil
}

func (s *Store) WriteContent(_ context.Context, fileID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.get("WriteContent", fileID)
	if err != nil {
		return err
	}
	d.content = append([]byte(nil), data...)
	d.modified = s.now()
	return nil
}
