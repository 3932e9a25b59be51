package service

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/quozen/internal/calculator"
	"github.com/mmynk/quozen/internal/storage"
)

const LedgerServiceName = "quozen.v1.LedgerService"

// LedgerService procedures.
const (
	LedgerServiceGetBalancesProcedure      = "/quozen.v1.LedgerService/GetBalances"
	LedgerServiceDistributeAmountProcedure = "/quozen.v1.LedgerService/DistributeAmount"
)

// LedgerService computes balances and settle-up suggestions over a group.
type LedgerService struct {
	store *storage.Service
}

func NewLedgerService(store *storage.Service) *LedgerService {
	return &LedgerService{store: store}
}

// NewLedgerServiceHandler builds an HTTP handler serving every LedgerService
// procedure and returns the path to mount it on.
func NewLedgerServiceHandler(svc *LedgerService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)
	mux := http.NewServeMux()
	mux.Handle(LedgerServiceGetBalancesProcedure, connect.NewUnaryHandler(LedgerServiceGetBalancesProcedure, svc.GetBalances, opts...))
	mux.Handle(LedgerServiceDistributeAmountProcedure, connect.NewUnaryHandler(LedgerServiceDistributeAmountProcedure, svc.DistributeAmount, opts...))
	return "/" + LedgerServiceName + "/", mux
}

// GetBalances returns every member's net balance and, when the caller is a
// member with an open balance, the single payment that best settles them.
func (s *LedgerService) GetBalances(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[BalancesResponse], error) {
	user, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if req.Msg.GroupID == "" {
		return nil, invalidArgument("groupId required")
	}

	data, err := s.store.GetGroupData(ctx, user, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(err)
	}
	balances := calculator.CalculateBalances(data.Members, data.Expenses, data.Settlements)

	resp := &BalancesResponse{Balances: balances}
	for _, m := range data.Members {
		if !user.Matches(m.UserID) {
			continue
		}
		if sg := calculator.SuggestSettlementStrategy(m.UserID, balances, data.Members); sg != nil {
			resp.Suggestion = &Suggestion{FromUserID: sg.FromUserID, ToUserID: sg.ToUserID, Amount: sg.Amount}
		}
		break
	}
	return connect.NewResponse(resp), nil
}

// DistributeAmount splits an amount into count shares that differ by at most one cent.
func (s *LedgerService) DistributeAmount(ctx context.Context, req *connect.Request[DistributeRequest]) (*connect.Response[DistributeResponse], error) {
	if req.Msg.Count < 1 {
		return nil, invalidArgument("count must be at least 1")
	}
	return connect.NewResponse(&DistributeResponse{
		Shares: calculator.DistributeAmount(req.Msg.Amount, req.Msg.Count),
	}), nil
}
