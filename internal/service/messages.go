package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/quozen/internal/models"
)

// Empty is the request or response of calls that carry nothing.
type Empty struct{}

type MemberInput struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
}

type Group struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Participants []string `json:"participants"`
	IsOwner      bool     `json:"isOwner"`
}

type Member struct {
	UserID      string    `json:"userId"`
	Email       string    `json:"email,omitempty"`
	Name        string    `json:"name,omitempty"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joinedAt"`
	RowPosition int       `json:"rowPosition"`
}

// Expense is an expense row. RowPosition is only valid until the next mutation.
type Expense struct {
	ID           string          `json:"id,omitempty"`
	Date         time.Time       `json:"date"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	PaidBy       string          `json:"paidBy"`
	Category     string          `json:"category,omitempty"`
	Splits       []models.Split  `json:"splits"`
	CreatedAt    time.Time       `json:"createdAt,omitzero"`
	LastModified time.Time       `json:"lastModified,omitzero"`
	RowPosition  int             `json:"rowPosition,omitempty"`
}

type Settlement struct {
	ID          string          `json:"id,omitempty"`
	Date        time.Time       `json:"date,omitzero"`
	FromUserID  string          `json:"fromUserId"`
	ToUserID    string          `json:"toUserId"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	RowPosition int             `json:"rowPosition,omitempty"`
}

type GroupRequest struct {
	GroupID string `json:"groupId"`
}

type GroupResponse struct {
	Group Group `json:"group"`
}

type CreateGroupRequest struct {
	Name    string        `json:"name"`
	Members []MemberInput `json:"members"`
}

type UpdateGroupRequest struct {
	GroupID string        `json:"groupId"`
	Name    string        `json:"name"`
	Members []MemberInput `json:"members"`
}

type GetGroupResponse struct {
	Group       Group        `json:"group"`
	Members     []Member     `json:"members"`
	Expenses    []Expense    `json:"expenses"`
	Settlements []Settlement `json:"settlements"`
}

type MemberHasExpensesRequest struct {
	GroupID  string `json:"groupId"`
	MemberID string `json:"memberId"`
}

type MemberHasExpensesResponse struct {
	HasExpenses bool `json:"hasExpenses"`
}

// AddExpenseRequest adds an expense. When Splits is empty and SplitAmong is
// set, the amount is divided equally among those members.
type AddExpenseRequest struct {
	GroupID    string   `json:"groupId"`
	Expense    Expense  `json:"expense"`
	SplitAmong []string `json:"splitAmong,omitempty"`
}

type UpdateExpenseRequest struct {
	GroupID              string     `json:"groupId"`
	Position             int        `json:"position"`
	Expense              Expense    `json:"expense"`
	ExpectedLastModified *time.Time `json:"expectedLastModified,omitempty"`
}

type ExpenseResponse struct {
	Expense Expense `json:"expense"`
}

// DeleteRowRequest deletes the row at Position, provided it still holds ID.
type DeleteRowRequest struct {
	GroupID  string `json:"groupId"`
	Position int    `json:"position"`
	ID       string `json:"id"`
}

type AddSettlementRequest struct {
	GroupID    string     `json:"groupId"`
	Settlement Settlement `json:"settlement"`
}

type UpdateSettlementRequest struct {
	GroupID    string     `json:"groupId"`
	Position   int        `json:"position"`
	Settlement Settlement `json:"settlement"`
}

type SettlementResponse struct {
	Settlement Settlement `json:"settlement"`
}

type Suggestion struct {
	FromUserID string          `json:"fromUserId"`
	ToUserID   string          `json:"toUserId"`
	Amount     decimal.Decimal `json:"amount"`
}

type BalancesResponse struct {
	Balances map[string]decimal.Decimal `json:"balances"`
	// Suggestion is the caller's next payment to settle up, if any.
	Suggestion *Suggestion `json:"suggestion,omitempty"`
}

type DistributeRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Count  int             `json:"count"`
}

type DistributeResponse struct {
	Shares []decimal.Decimal `json:"shares"`
}

type SettingsResponse struct {
	Settings *models.UserSettings `json:"settings"`
}

type SaveSettingsRequest struct {
	Settings models.UserSettings `json:"settings"`
}

func toMemberInputs(in []MemberInput) []models.MemberInput {
	out := make([]models.MemberInput, len(in))
	for i, m := range in {
		out[i] = models.MemberInput{Email: m.Email, Username: m.Username}
	}
	return out
}

func groupToWire(g *models.Group) Group {
	participants := g.Participants
	if participants == nil {
		participants = []string{}
	}
	return Group{ID: g.ID, Name: g.Name, Participants: participants, IsOwner: g.IsOwner}
}

func memberToWire(m models.Member) Member {
	return Member{
		UserID:      m.UserID,
		Email:       m.Email,
		Name:        m.Name,
		Role:        string(m.Role),
		JoinedAt:    m.JoinedAt,
		RowPosition: m.RowPosition,
	}
}

func expenseToWire(e *models.Expense) Expense {
	splits := e.Splits
	if splits == nil {
		splits = []models.Split{}
	}
	return Expense{
		ID:           e.ID,
		Date:         e.Date,
		Description:  e.Description,
		Amount:       e.Amount,
		PaidBy:       e.PaidBy,
		Category:     e.Category,
		Splits:       splits,
		CreatedAt:    e.Meta.CreatedAt,
		LastModified: e.Meta.LastModified,
		RowPosition:  e.RowPosition,
	}
}

func expenseFromWire(e Expense) models.Expense {
	return models.Expense{
		ID:          e.ID,
		Date:        e.Date,
		Description: e.Description,
		Amount:      e.Amount,
		PaidBy:      e.PaidBy,
		Category:    e.Category,
		Splits:      e.Splits,
	}
}

func settlementToWire(s *models.Settlement) Settlement {
	return Settlement{
		ID:          s.ID,
		Date:        s.Date,
		FromUserID:  s.FromUserID,
		ToUserID:    s.ToUserID,
		Amount:      s.Amount,
		Method:      s.Method,
		Notes:       s.Notes,
		RowPosition: s.RowPosition,
	}
}

func settlementFromWire(s Settlement) models.Settlement {
	return models.Settlement{
		ID:         s.ID,
		Date:       s.Date,
		FromUserID: s.FromUserID,
		ToUserID:   s.ToUserID,
		Amount:     s.Amount,
		Method:     s.Method,
		Notes:      s.Notes,
	}
}
