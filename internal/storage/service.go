package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/quozen/internal/models"
)

// Document discovery convention.
const (
	// GroupNamePrefix starts the name of every group document.
	GroupNamePrefix = "Quozen - "
	// SettingsFileName is the name of each user's settings document.
	SettingsFileName = "quozen-settings.json"

	PropType    = "quozen_type"
	PropVersion = "version"

	TypeGroup    = "group"
	TypeSettings = "settings"

	SchemaVersion = "1.0"
)

// splitTolerance is how far an expense's splits may drift from its amount before we warn.
const splitTolerance = 0.01

// Service implements group lifecycle, conflict-safe row mutation and the
// per-user settings directory on top of an Adapter. It is safe for concurrent use.
type Service struct {
	adapter Adapter
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string

	mu sync.Mutex
	// settingsFiles maps a user's email to their settings document ID.
	settingsFiles map[string]string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for version stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides the expense and settlement ID generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a Service backed by adapter.
func NewService(adapter Adapter, opts ...Option) *Service {
	s := &Service{
		adapter:       adapter,
		logger:        slog.Default(),
		now:           time.Now,
		newID:         func() string { return uuid.New().String() },
		settingsFiles: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// groupDisplayName strips the discovery prefix from a document name.
func groupDisplayName(fileName string) string {
	return strings.TrimPrefix(fileName, GroupNamePrefix)
}

func groupFileName(name string) string {
	return GroupNamePrefix + name
}

// readMembers reads and decodes the Members tab.
func (s *Service) readMembers(ctx context.Context, groupID string) ([]models.Member, error) {
	rows, err := s.adapter.ReadRange(ctx, groupID, TabMembers)
	if err != nil {
		return nil, fmt.Errorf("failed to read members: %w", err)
	}
	return DecodeMembers(rows), nil
}

func (s *Service) readExpenses(ctx context.Context, groupID string) ([]models.Expense, error) {
	rows, err := s.adapter.ReadRange(ctx, groupID, TabExpenses)
	if err != nil {
		return nil, fmt.Errorf("failed to read expenses: %w", err)
	}
	return DecodeExpenses(rows), nil
}

func (s *Service) readSettlements(ctx context.Context, groupID string) ([]models.Settlement, error) {
	rows, err := s.adapter.ReadRange(ctx, groupID, TabSettlements)
	if err != nil {
		return nil, fmt.Errorf("failed to read settlements: %w", err)
	}
	return DecodeSettlements(rows), nil
}

// verifyRow re-reads the row at position and checks that its first cell is
// expectedID. Row positions shift when earlier rows are deleted, so every
// position-addressed write goes through here first.
func (s *Service) verifyRow(ctx context.Context, op, groupID, tab string, position int, expectedID string) ([]string, error) {
	if IndexOf(position) < 0 {
		return nil, NotFound(op, "row %d is not a data row", position)
	}
	row, err := s.adapter.ReadRow(ctx, groupID, tab, position)
	if err != nil {
		return nil, fmt.Errorf("failed to read row %d: %w", position, err)
	}
	if cell(row, 0) == "" {
		return nil, NotFound(op, "row %d in %s is empty", position, tab)
	}
	if actual := cell(row, 0); actual != expectedID {
		s.logger.Warn("Row identity mismatch",
			"op", op,
			"group_id", groupID,
			"tab", tab,
			"position", position,
			"expected_id", expectedID,
			"actual_id", actual,
		)
		return nil, Conflict(op, "row has shifted", expectedID, actual)
	}
	return row, nil
}

// memberIndex finds a member by stable ID or by email.
func memberIndex(members []models.Member, user models.User) int {
	for i, m := range members {
		if m.UserID == user.ID {
			return i
		}
	}
	for i, m := range members {
		if user.Matches(m.UserID) || (m.Email != "" && strings.EqualFold(m.Email, user.Email)) {
			return i
		}
	}
	return -1
}

// requireMember reads the Members tab and rejects a user without a member row.
func (s *Service) requireMember(ctx context.Context, op string, user models.User, groupID string) ([]models.Member, error) {
	members, err := s.readMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if memberIndex(members, user) < 0 {
		return nil, Permission(op, "%s is not a member of this group", user.Email)
	}
	return members, nil
}

func isMember(members []models.Member, id string) bool {
	for _, m := range members {
		if m.UserID == id {
			return true
		}
	}
	return false
}

func participantIDs(members []models.Member) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.UserID
	}
	return ids
}
