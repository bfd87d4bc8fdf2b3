package services

import (
	"context"
	"io"
	"net/mail"
	"strings"

	"github.com/wayfarer-tours/apiserver/internal/storage"
	"github.com/wayfarer-tours/apiserver/types"
)

// UserService encapsulates profile use-cases for the current user.
type UserService struct {
	repo    UserRepository
	avatars *storage.Avatars
}

func NewUserService(repo UserRepository, avatars *storage.Avatars) *UserService {
	return &UserService{
		repo:    repo,
		avatars: avatars,
	}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// ProfileUpdate carries the fields a user may change about themselves.
// Password and role deliberately have no place here.
type ProfileUpdate struct {
	Name  string
	Email string
}

// UpdateProfile changes the user's name and email. Empty fields keep
// their current value.
func (s *UserService) UpdateProfile(ctx context.Context, userID int, update ProfileUpdate) (types.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return types.User{}, err
	}

	if name := strings.TrimSpace(update.Name); name != "" {
		user.Name = name
	}
	if email := normalizeEmail(update.Email); email != "" {
		if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
			verr := newValidationError()
			verr.add("email", "email is invalid")
			return types.User{}, verr
		}
		user.Email = email
	}

	return s.repo.UpdateProfile(ctx, user)
}

// UploadAvatar stores the user's profile photo and records its object key.
func (s *UserService) UploadAvatar(ctx context.Context, userID int, r io.Reader, size int64, contentType string) (types.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return types.User{}, err
	}

	key, err := s.avatars.Save(ctx, userID, r, size, contentType)
	if err != nil {
		return types.User{}, err
	}

	user.Photo = key
	return s.repo.UpdateProfile(ctx, user)
}

// Deactivate soft-deletes the user's own account.
func (s *UserService) Deactivate(ctx context.Context, userID int) error {
	return s.repo.Deactivate(ctx, userID)
}
