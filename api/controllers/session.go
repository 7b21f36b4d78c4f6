package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/dukalink-backend/api/middleware"
	pkgerrors "github.com/angelmondragon/dukalink-backend/pkg/errors"
)

func sessionFromRequest(r *http.Request) (string, error) {
	key := middleware.SessionKeyFromContext(r.Context())
	if key == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "session required")
	}
	return key, nil
}

func userFromRequest(r *http.Request) (uuid.UUID, error) {
	id := middleware.UserUUIDFromContext(r.Context())
	if id == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return *id, nil
}
