package service

import (
	"context"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/quozen/internal/calculator"
	"github.com/mmynk/quozen/internal/storage"
)

const GroupServiceName = "quozen.v1.GroupService"

// GroupService procedures.
const (
	GroupServiceCreateGroupProcedure       = "/quozen.v1.GroupService/CreateGroup"
	GroupServiceImportGroupProcedure       = "/quozen.v1.GroupService/ImportGroup"
	GroupServiceJoinGroupProcedure         = "/quozen.v1.GroupService/JoinGroup"
	GroupServiceUpdateGroupProcedure       = "/quozen.v1.GroupService/UpdateGroup"
	GroupServiceLeaveGroupProcedure        = "/quozen.v1.GroupService/LeaveGroup"
	GroupServiceDeleteGroupProcedure       = "/quozen.v1.GroupService/DeleteGroup"
	GroupServiceGetGroupProcedure          = "/quozen.v1.GroupService/GetGroup"
	GroupServiceMemberHasExpensesProcedure = "/quozen.v1.GroupService/MemberHasExpenses"
	GroupServiceAddExpenseProcedure        = "/quozen.v1.GroupService/AddExpense"
	GroupServiceUpdateExpenseProcedure     = "/quozen.v1.GroupService/UpdateExpense"
	GroupServiceDeleteExpenseProcedure     = "/quozen.v1.GroupService/DeleteExpense"
	GroupServiceAddSettlementProcedure     = "/quozen.v1.GroupService/AddSettlement"
	GroupServiceUpdateSettlementProcedure  = "/quozen.v1.GroupService/UpdateSettlement"
	GroupServiceDeleteSettlementProcedure  = "/quozen.v1.GroupService/DeleteSettlement"
)

// GroupService implements the Connect GroupService
type GroupService struct {
	store *storage.Service
}

// NewGroupService creates a new GroupService with the given storage backend.
func NewGroupService(store *storage.Service) *GroupService {
	return &GroupService{store: store}
}

// NewGroupServiceHandler builds an HTTP handler serving every GroupService
// procedure and returns the path to mount it on.
func NewGroupServiceHandler(svc *GroupService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)
	mux := http.NewServeMux()
	mux.Handle(GroupServiceCreateGroupProcedure, connect.NewUnaryHandler(GroupServiceCreateGroupProcedure, svc.CreateGroup, opts...))
	mux.Handle(GroupServiceImportGroupProcedure, connect.NewUnaryHandler(GroupServiceImportGroupProcedure, svc.ImportGroup, opts...))
	mux.Handle(GroupServiceJoinGroupProcedure, connect.NewUnaryHandler(GroupServiceJoinGroupProcedure, svc.JoinGroup, opts...))
	mux.Handle(GroupServiceUpdateGroupProcedure, connect.NewUnaryHandler(GroupServiceUpdateGroupProcedure, svc.UpdateGroup, opts...))
	mux.Handle(GroupServiceLeaveGroupProcedure, connect.NewUnaryHandler(GroupServiceLeaveGroupProcedure, svc.LeaveGroup, opts...))
	mux.Handle(GroupServiceDeleteGroupProcedure, connect.NewUnaryHandler(GroupServiceDeleteGroupProcedure, svc.DeleteGroup, opts...))
	mux.Handle(GroupServiceGetGroupProcedure, connect.NewUnaryHandler(GroupServiceGetGroupProcedure, svc.GetGroup, opts...))
	mux.Handle(GroupServiceMemberHasExpensesProcedure, connect.NewUnaryHandler(GroupServiceMemberHasExpensesProcedure, svc.MemberHasExpenses, opts...))
	mux.Handle(GroupServiceAddExpenseProcedure, connect.NewUnaryHandler(GroupServiceAddExpenseProcedure, svc.AddExpense, opts...))
	mux.Handle(GroupServiceUpdateExpenseProcedure, connect.NewUnaryHandler(GroupServiceUpdateExpenseProcedure, svc.UpdateExpense, opts...))
	mux.Handle(GroupServiceDeleteExpenseProcedure, connect.NewUnaryHandler(GroupServiceDeleteExpenseProcedure, svc.DeleteExpense, opts...))
	mux.Handle(GroupServiceAddSettlementProcedure, connect.NewUnaryHandler(GroupServiceAddSettlementProcedure, svc.AddSettlement, opts...))
	mux.Handle(GroupServiceUpdateSettlementProcedure, connect.NewUnaryHandler(GroupServiceUpdateSettlementProcedure, svc.UpdateSettlement, opts...))
	mux.Handle(GroupServiceDeleteSettlementProcedure, connect.NewUnaryHandler(GroupServiceDeleteSettlementProcedure, svc.DeleteSettlement, opts...))
	return "/" + GroupServiceName + "/", mux
}

// CreateGroup creates a new group owned by the caller.
func (s *GroupService) CreateGroup(ctx context.Context, req *connect.Request[CreateGroupRequest]) (*connect.Response[GroupResponse], error) {
	user, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("CreateGroup request received",
		"name", req.Msg.Name,
		"members_count", len(req.Msg.Members),
	)

	group, err := s.store.CreateGroup(ctx, user, req.Msg.Name, toMemberInputs(req.Msg.Members))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GroupResponse{Group: groupToWire(group)}), nil
}

// ImportGroup attaches an existing group document to the caller's directory.
func (s *GroupService) ImportGroup(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[GroupResponse], error) {
	user, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if req.Msg.GroupID == "" {
		return nil, invalidArgument("groupId required")
	}

	group, err := s.store.ImportGroup(ctx, user, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GroupResponse{Group: groupToWire(group)}), nil
}

// JoinGroup attaches a group the caller was invited to or reached by link.
func (s *GroupService) JoinGroup(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[GroupResponse], error) {
	user, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if req.Msg.GroupID == "" {
		return nil, invalidArgument("groupId required")
	}

	group, err := s.store.JoinGroup(ctx, user, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GroupResponse{Group: groupToWire(group)}), nil
}

// UpdateGroup renames the group and reconciles its member list.
func (s *GroupService) UpdateGroup(ctx context.Context, req *connect.Request[UpdateGroupRequest]) (*connect.Response[GroupResponse], error) {
	user, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if req.Msg.GroupID == "" {
		return nil, invalidArgument("groupId required")
	}

	group, err := s.store.UpdateGroup(ctx, user, req.Msg.GroupID, req.Msg.Name, toMemberInputs(req.Msg.Members))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GroupResponse{Group: groupToWire(group)}), nil
}

// LeaveGroup removes the caller from the group.
func (s *GroupService) LeaveGroup(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[Empty], error) {
	user, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.LeaveGroup(ctx, user, req.Msg.GroupID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// DeleteGroup deletes the group document. Owner only.
func (s *GroupService) DeleteGroup(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[Empty], error) {
	user, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteGroup(ctx, user, req.Msg.GroupID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// GetGroup returns the group with its members, expenses and settlements.
func (s *GroupService) GetGroup(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[GetGroupResponse], error) {
	user, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	data, err := s.store.GetGroupData(ctx, user, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &GetGroupResponse{
		Group:       groupToWire(&data.Group),
		Members:     make([]Member, len(data.Members)),
		Expenses:    make([]Expense, len(data.Expenses)),
		Settlements: make([]Settlement, len(data.Settlements)),
	}
	for i, m := range data.Members {
		resp.Members[i] = memberToWire(m)
	}
	for i := range data.Expenses {
		resp.Expenses[i] = expenseToWire(&data.Expenses[i])
	}
	for i := range data.Settlements {
		resp.Settlements[i] = settlementToWire(&data.Settlements[i])
	}
	return connect.NewResponse(resp), nil
}

// MemberHasExpenses reports whether a member paid for or shares any expense.
func (s *GroupService) MemberHasExpenses(ctx context.Context, req *connect.Request[MemberHasExpensesRequest]) (*connect.Response[MemberHasExpensesResponse], error) {
	user, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	has, err := s.store.CheckMemberHasExpenses(ctx, user, req.Msg.GroupID, req.Msg.MemberID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&MemberHasExpensesResponse{HasExpenses: has}), nil
}

// AddExpense appends an expense to the group.
func (s *GroupService) AddExpense(ctx context.Context, req *connect.Request[AddExpenseRequest]) (*connect.Response[ExpenseResponse], error) {
	user, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	expense := expenseFromWire(req.Msg.Expense)
	if len(expense.Splits) == 0 && len(req.Msg.SplitAmong) > 0 {
		expense.Splits = calculator.EqualSplits(expense.Amount, req.Msg.SplitAmong)
	}

	created, err := s.store.AddExpense(ctx, user, req.Msg.GroupID, expense)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ExpenseResponse{Expense: expenseToWire(created)}), nil
}

// UpdateExpense overwrites an expense, rejecting stale positions and versions.
func (s *GroupService) UpdateExpense(ctx context.Context, req *connect.Request[UpdateExpenseRequest]) (*connect.Response[ExpenseResponse], error) {
	user, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if req.Msg.Expense.ID == "" {
		return nil, invalidArgument("expense.id required")
	}

	updated, err := s.store.UpdateExpense(ctx, user, req.Msg.GroupID, req.Msg.Position, expenseFromWire(req.Msg.Expense), req.Msg.ExpectedLastModified)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ExpenseResponse{Expense: expenseToWire(updated)}), nil
}

// DeleteExpense deletes an expense if its row has not shifted.
func (s *GroupService) DeleteExpense(ctx context.Context, req *connect.Request[DeleteRowRequest]) (*connect.Response[Empty], error) {
	user, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteExpense(ctx, user, req.Msg.GroupID, req.Msg.Position, req.Msg.ID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// AddSettlement records a payment between two members.
func (s *GroupService) AddSettlement(ctx context.Context, req *connect.Request[AddSettlementRequest]) (*connect.Response[SettlementResponse], error) {
	user, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	created, err := s.store.AddSettlement(ctx, user, req.Msg.GroupID, settlementFromWire(req.Msg.Settlement))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SettlementResponse{Settlement: settlementToWire(created)}), nil
}

// UpdateSettlement overwrites a settlement if its row has not shifted.
func (s *GroupService) UpdateSettlement(ctx context.Context, req *connect.Request[UpdateSettlementRequest]) (*connect.Response[SettlementResponse], error) {
	user, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if req.Msg.Settlement.ID == "" {
		return nil, invalidArgument("settlement.id required")
	}
	updated, err := s.store.UpdateSettlement(ctx, user, req.Msg.GroupID, req.Msg.Position, settlementFromWire(req.Msg.Settlement))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SettlementResponse{Settlement: settlementToWire(updated)}), nil
}

// DeleteSettlement deletes a settlement if its row has not shifted.
func (s *GroupService) DeleteSettlement(ctx context.Context, req *connect.Request[DeleteRowRequest]) (*connect.Response[Empty], error) {
	user, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteSettlement(ctx, user, req.Msg.GroupID, req.Msg.Position, req.Msg.ID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}
