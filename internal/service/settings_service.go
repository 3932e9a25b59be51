package service

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/quozen/internal/storage"
)

const SettingsServiceName = "quozen.v1.SettingsService"

// SettingsService procedures.
const (
	SettingsServiceGetSettingsProcedure       = "/quozen.v1.SettingsService/GetSettings"
	SettingsServiceSaveSettingsProcedure      = "/quozen.v1.SettingsService/SaveSettings"
	SettingsServiceUpdateActiveGroupProcedure = "/quozen.v1.SettingsService/UpdateActiveGroup"
	SettingsServiceReconcileGroupsProcedure   = "/quozen.v1.SettingsService/ReconcileGroups"
)

// SettingsService serves the caller's group directory and preferences.
type SettingsService struct {
	store *storage.Service
}

func NewSettingsService(store *storage.Service) *SettingsService {
	return &SettingsService{store: store}
}

// NewSettingsServiceHandler builds an HTTP handler serving every
// SettingsService procedure and returns the path to mount it on.
func NewSettingsServiceHandler(svc *SettingsService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)
	mux := http.NewServeMux()
	mux.Handle(SettingsServiceGetSettingsProcedure, connect.NewUnaryHandler(SettingsServiceGetSettingsProcedure, svc.GetSettings, opts...))
	mux.Handle(SettingsServiceSaveSettingsProcedure, connect.NewUnaryHandler(SettingsServiceSaveSettingsProcedure, svc.SaveSettings, opts...))
	mux.Handle(SettingsServiceUpdateActiveGroupProcedure, connect.NewUnaryHandler(SettingsServiceUpdateActiveGroupProcedure, svc.UpdateActiveGroup, opts...))
	mux.Handle(SettingsServiceReconcileGroupsProcedure, connect.NewUnaryHandler(SettingsServiceReconcileGroupsProcedure, svc.ReconcileGroups, opts...))
	return "/" + SettingsServiceName + "/", mux
}

func (s *SettingsService) GetSettings(ctx context.Context, _ *connect.Request[Empty]) (*connect.Response[SettingsResponse], error) {
	user, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := s.store.GetSettings(ctx, user)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SettingsResponse{Settings: settings}), nil
}

// SaveSettings overwrites the caller's settings wholesale.
func (s *SettingsService) SaveSettings(ctx context.Context, req *connect.Request[SaveSettingsRequest]) (*connect.Response[SettingsResponse], error) {
	user, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	settings := req.Msg.Settings
	if err := s.store.SaveSettings(ctx, user, &settings); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SettingsResponse{Settings: &settings}), nil
}

func (s *SettingsService) UpdateActiveGroup(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[Empty], error) {
	user, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateActiveGroup(ctx, user, req.Msg.GroupID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// ReconcileGroups rebuilds the caller's directory from a full scan.
func (s *SettingsService) ReconcileGroups(ctx context.Context, _ *connect.Request[Empty]) (*connect.Response[SettingsResponse], error) {
	user, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := s.store.ReconcileGroups(ctx, user)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SettingsResponse{Settings: settings}), nil
}
