package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wayfarer-tours/apiserver/internal/services"
	"github.com/wayfarer-tours/apiserver/internal/store"
)

const maxAvatarBytes = 5 << 20

// UserHandler provides HTTP handlers for the current user's profile.
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler constructs a handler with the provided service.
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// UserRouter registers profile routes on the given router. All routes
// require authentication.
func UserRouter(r chi.Router, handler *UserHandler, requireAuth func(http.Handler) http.Handler) {
	r.Use(requireAuth)
	r.Get("/me", handler.Me)
	r.Patch("/me", handler.UpdateMe)
	r.Post("/me/photo", handler.UploadPhoto)
	r.Delete("/me", handler.DeleteMe)
}

// Me returns the current authenticated user.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateMe changes the current user's name and email. Credential and role
// fields are not accepted here; password changes go through the dedicated
// endpoint.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	for field := range raw {
		switch field {
		case "name", "email":
		default:
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:  "validation failed",
				Fields: map[string]string{field: "field cannot be updated here"},
			})
			return
		}
	}

	var update services.ProfileUpdate
	if value, ok := raw["name"]; ok {
		_ = json.Unmarshal(value, &update.Name)
	}
	if value, ok := raw["email"]; ok {
		_ = json.Unmarshal(value, &update.Email)
	}

	updated, err := h.userService.UpdateProfile(r.Context(), user.ID, update)
	if err != nil {
		if writeValidationError(w, err) {
			return
		}
		if errors.Is(err, store.ErrDuplicateEmail) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:  "validation failed",
				Fields: map[string]string{"email": "email already in use"},
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// UploadPhoto stores a new avatar for the current user.
func (h *UserHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "photo file is required")
		return
	}
	defer file.Close()

	if header.Size > maxAvatarBytes {
		writeError(w, http.StatusBadRequest, "photo too large")
		return
	}

	contentType := header.Header.Get("Content-Type")
	updated, err := h.userService.UploadAvatar(r.Context(), user.ID, file, header.Size, contentType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to store photo")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// DeleteMe deactivates the current user's account.
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	if err := h.userService.Deactivate(r.Context(), user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to deactivate account")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
