package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wayfarer-tours/apiserver/internal/services"
	"github.com/wayfarer-tours/apiserver/types"
)

type contextKey string

const contextUserKey contextKey = "user"

// userFromContext returns the identity attached by the auth middleware.
func userFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	return user, ok
}

// withUser attaches the resolved identity to the request context.
func withUser(ctx context.Context, user types.User) context.Context {
	return context.WithValue(ctx, contextUserKey, user)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// writeValidationError renders a per-field validation failure, or falls
// through to a generic message for other errors.
func writeValidationError(w http.ResponseWriter, err error) bool {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "validation failed",
			Fields: verr.Fields,
		})
		return true
	}
	return false
}
