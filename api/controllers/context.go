package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/rrsoftech/agencypay-backend/api/middleware"
	pkgerrors "github.com/rrsoftech/agencypay-backend/pkg/errors"
	"github.com/rrsoftech/agencypay-backend/pkg/enums"
)

// parseUUIDField parses a UUID from a request body or query string value.
func parseUUIDField(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "field must be a UUID").
			WithDetails(map[string]any{"field": field})
	}
	return id, nil
}

// requester resolves the authenticated caller from the request context.
func requester(r *http.Request) (uuid.UUID, enums.UserRole, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	role := enums.UserRole(middleware.RoleFromContext(r.Context()))
	if !role.IsValid() {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "role context missing")
	}
	return id, role, nil
}
