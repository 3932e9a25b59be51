package storage

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/quozen/internal/models"
)

// Column order per tab. Changing these breaks every existing document.
var (
	ExpensesHeader    = []string{"id", "date", "description", "amount", "paidBy", "category", "splits", "meta"}
	SettlementsHeader = []string{"id", "date", "fromUserId", "toUserId", "amount", "method", "notes"}
	MembersHeader     = []string{"userId", "email", "name", "role", "joinedAt"}
)

// GroupTabs lists the tabs every group document must have.
var GroupTabs = []string{TabExpenses, TabSettlements, TabMembers}

func headerFor(tab string) []string {
	switch tab {
	case TabExpenses:
		return ExpensesHeader
	case TabSettlements:
		return SettlementsHeader
	case TabMembers:
		return MembersHeader
	}
	return nil
}

// cell returns row[i], or "" when the row is short.
func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	slog.Debug("Unparseable date cell", "value", s)
	return time.Time{}
}

func parseAmount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		slog.Debug("Unparseable amount cell", "value", s, "error", err)
		return decimal.Zero
	}
	return v
}

func formatAmount(v decimal.Decimal) string {
	return v.StringFixed(2)
}

// EncodeExpense serializes an expense to its positional row.
func EncodeExpense(e models.Expense) []string {
	splits := e.Splits
	if splits == nil {
		splits = []models.Split{}
	}
	splitsJSON, _ := json.Marshal(splits)
	metaJSON, _ := json.Marshal(e.Meta)
	return []string{
		e.ID,
		formatTime(e.Date),
		e.Description,
		formatAmount(e.Amount),
		e.PaidBy,
		e.Category,
		string(splitsJSON),
		string(metaJSON),
	}
}

// DecodeExpense parses an Expenses row. Malformed splits or meta cells decode
// to their empty value instead of failing the read.
func DecodeExpense(row []string, position int) models.Expense {
	e := models.Expense{
		ID:          cell(row, 0),
		Date:        parseTime(cell(row, 1)),
		Description: cell(row, 2),
		Amount:      parseAmount(cell(row, 3)),
		PaidBy:      cell(row, 4),
		Category:    cell(row, 5),
		Splits:      []models.Split{},
		RowPosition: position,
	}
	if raw := cell(row, 6); raw != "" {
		var splits []models.Split
		if err := json.Unmarshal([]byte(raw), &splits); err != nil {
			slog.Debug("Unparseable splits cell", "expense_id", e.ID, "error", err)
		} else if splits != nil {
			e.Splits = splits
		}
	}
	if raw := cell(row, 7); raw != "" {
		var meta models.ExpenseMeta
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			slog.Debug("Unparseable meta cell", "expense_id", e.ID, "error", err)
		} else {
			e.Meta = meta
		}
	}
	return e
}

// EncodeSettlement serializes a settlement to its positional row.
func EncodeSettlement(s models.Settlement) []string {
	return []string{
		s.ID,
		formatTime(s.Date),
		s.FromUserID,
		s.ToUserID,
		formatAmount(s.Amount),
		s.Method,
		s.Notes,
	}
}

// DecodeSettlement parses a Settlements row.
func DecodeSettlement(row []string, position int) models.Settlement {
	return models.Settlement{
		ID:          cell(row, 0),
		Date:        parseTime(cell(row, 1)),
		FromUserID:  cell(row, 2),
		ToUserID:    cell(row, 3),
		Amount:      parseAmount(cell(row, 4)),
		Method:      cell(row, 5),
		Notes:       cell(row, 6),
		RowPosition: position,
	}
}

// EncodeMember serializes a member to its positional row.
func EncodeMember(m models.Member) []string {
	return []string{
		m.UserID,
		m.Email,
		m.Name,
		string(m.Role),
		formatTime(m.JoinedAt),
	}
}

// DecodeMember parses a Members row. Unknown roles read as member.
func DecodeMember(row []string, position int) models.Member {
	role := models.Role(cell(row, 3))
	if role != models.RoleOwner {
		role = models.RoleMember
	}
	return models.Member{
		UserID:      cell(row, 0),
		Email:       cell(row, 1),
		Name:        cell(row, 2),
		Role:        role,
		JoinedAt:    parseTime(cell(row, 4)),
		RowPosition: position,
	}
}

// DecodeExpenses parses a full Expenses range, skipping blank rows while
// keeping every row's true position.
func DecodeExpenses(rows [][]string) []models.Expense {
	out := make([]models.Expense, 0, len(rows))
	for i, row := range rows {
		if cell(row, 0) == "" {
			continue
		}
		out = append(out, DecodeExpense(row, PositionOf(i)))
	}
	return out
}

// DecodeSettlements parses a full Settlements range.
func DecodeSettlements(rows [][]string) []models.Settlement {
	out := make([]models.Settlement, 0, len(rows))
	for i, row := range rows {
		if cell(row, 0) == "" {
			continue
		}
		out = append(out, DecodeSettlement(row, PositionOf(i)))
	}
	return out
}

// DecodeMembers parses a full Members range.
func DecodeMembers(rows [][]string) []models.Member {
	out := make([]models.Member, 0, len(rows))
	for i, row := range rows {
		if cell(row, 0) == "" {
			continue
		}
		out = append(out, DecodeMember(row, PositionOf(i)))
	}
	return out
}
