package service

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"github.com/mmynk/quozen/internal/auth"
	"github.com/mmynk/quozen/internal/middleware"
	"github.com/mmynk/quozen/internal/models"
	"github.com/mmynk/quozen/internal/storage"
)

// Metadata keys carrying the two sides of a conflict.
const (
	ConflictExpectedHeader = "Quozen-Conflict-Expected"
	ConflictActualHeader   = "Quozen-Conflict-Actual"
)

// toConnectError maps a storage error to the matching Connect code.
// Errors without a storage kind are internal.
func toConnectError(err error) error {
	code := connect.CodeInternal
	switch storage.KindOf(err) {
	case storage.KindNotFound:
		code = connect.CodeNotFound
	case storage.KindConflict:
		code = connect.CodeAborted
	case storage.KindValidation:
		code = connect.CodeInvalidArgument
	case storage.KindPermission:
		code = connect.CodePermissionDenied
	case storage.KindSessionExpired:
		code = connect.CodeUnauthenticated
	}

	connectErr := connect.NewError(code, err)
	var se *storage.Error
	if errors.As(err, &se) && se.Kind == storage.KindConflict {
		connectErr.Meta().Set(ConflictExpectedHeader, se.Expected)
		connectErr.Meta().Set(ConflictActualHeader, se.Actual)
	}
	return connectErr
}

// caller returns the authenticated user placed in ctx by middleware.RequireAuth.
func caller(ctx context.Context) (models.User, error) {
	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		return models.User{}, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
	}
	return user, nil
}

func invalidArgument(msg string) error {
	return connect.NewError(connect.CodeInvalidArgument, errors.New(msg))
}
