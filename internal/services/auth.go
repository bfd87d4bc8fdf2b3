package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/wayfarer-tours/apiserver/internal/auth"
	"github.com/wayfarer-tours/apiserver/internal/notify"
	"github.com/wayfarer-tours/apiserver/internal/store"
	"github.com/wayfarer-tours/apiserver/types"
)

const minPasswordLength = 8

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateProfile(ctx context.Context, user types.User) (types.User, error)
	SetPassword(ctx context.Context, id int, passwordHash string, changedAt time.Time) error
	SetResetToken(ctx context.Context, id int, hash string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, id int) error
	Deactivate(ctx context.Context, id int) error
}

// AuthService owns the credential lifecycle: signup, login, password
// reset, password update, and bearer-token verification.
type AuthService struct {
	repo        UserRepository
	notifier    notify.Sender
	tokens      *auth.Tokens
	clock       auth.Clock
	resetWindow time.Duration
	baseURL     string
}

func NewAuthService(
	repo UserRepository,
	notifier notify.Sender,
	tokens *auth.Tokens,
	clock auth.Clock,
	resetWindow time.Duration,
	baseURL string,
) *AuthService {
	if clock == nil {
		clock = auth.SystemClock{}
	}
	return &AuthService{
		repo:        repo,
		notifier:    notifier,
		tokens:      tokens,
		clock:       clock,
		resetWindow: resetWindow,
		baseURL:     strings.TrimRight(baseURL, "/"),
	}
}

// SignupInput carries the fields required to create an account.
type SignupInput struct {
	Name            string
	Email           string
	Password        string
	PasswordConfirm string
}

// Signup validates the input, persists the identity with a hashed
// password, mints a token, and queues a best-effort welcome email.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (types.User, string, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = normalizeEmail(input.Email)

	verr := newValidationError()
	if input.Name == "" {
		verr.add("name", "name is required")
	}
	validateEmail(verr, input.Email)
	validateNewPassword(verr, input.Password, input.PasswordConfirm)
	if err := verr.errOrNil(); err != nil {
		return types.User{}, "", err
	}

	hashed, err := auth.HashPassword(input.Password)
	if err != nil {
		return types.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, types.User{
		Name:              input.Name,
		Email:             input.Email,
		Role:              types.RoleUser,
		PasswordHash:      hashed,
		PasswordChangedAt: s.passwordChangedAt(),
		Active:            true,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			verr := newValidationError()
			verr.add("email", "email already in use")
			return types.User{}, "", verr
		}
		return types.User{}, "", err
	}

	token, err := s.tokens.Mint(user.ID)
	if err != nil {
		return types.User{}, "", fmt.Errorf("mint token: %w", err)
	}

	// Best effort: a failed welcome email never aborts signup.
	if s.notifier != nil {
		_ = s.notifier.SendWelcome(ctx, user, s.baseURL+"/me")
	}

	return user, token, nil
}

// Login verifies credentials and mints a token. Unknown email, inactive
// account, and wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (types.User, string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return types.User{}, "", ErrInvalidCredentials
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, "", ErrInvalidCredentials
		}
		return types.User{}, "", err
	}
	if !user.Active {
		return types.User{}, "", ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return types.User{}, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Mint(user.ID)
	if err != nil {
		return types.User{}, "", fmt.Errorf("mint token: %w", err)
	}
	return user, token, nil
}

// ForgotPassword generates a reset token, stores its digest, and emails
// the secret. If the email cannot be queued the digest is cleared again so
// no valid token dangles for a user who was never notified.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	reset, err := auth.NewResetToken(s.clock, s.resetWindow)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	if err := s.repo.SetResetToken(ctx, user.ID, reset.Hash, reset.ExpiresAt); err != nil {
		return err
	}

	resetURL := fmt.Sprintf("%s/auth/reset-password/%s", s.baseURL, reset.Secret)
	if err := s.notifier.SendPasswordReset(ctx, user, resetURL); err != nil {
		_ = s.repo.ClearResetToken(ctx, user.ID)
		return ErrNotificationFailed
	}
	return nil
}

// ResetPassword consumes a reset secret and installs the new password.
// Clearing the stored digest rides on the same UPDATE that sets the
// password, so a secret can never be consumed twice.
func (s *AuthService) ResetPassword(ctx context.Context, secret, password, passwordConfirm string) (types.User, string, error) {
	verr := newValidationError()
	validateNewPassword(verr, password, passwordConfirm)
	if err := verr.errOrNil(); err != nil {
		return types.User{}, "", err
	}

	user, err := s.repo.GetByResetTokenHash(ctx, auth.HashResetToken(secret), s.clock.Now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, "", ErrTokenInvalidOrExpired
		}
		return types.User{}, "", err
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return types.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.SetPassword(ctx, user.ID, hashed, s.passwordChangedAt()); err != nil {
		return types.User{}, "", err
	}

	token, err := s.tokens.Mint(user.ID)
	if err != nil {
		return types.User{}, "", fmt.Errorf("mint token: %w", err)
	}

	user, err = s.repo.GetByID(ctx, user.ID)
	if err != nil {
		return types.User{}, "", err
	}
	return user, token, nil
}

// UpdatePassword changes an authenticated user's password after checking
// the current one.
func (s *AuthService) UpdatePassword(ctx context.Context, userID int, current, password, passwordConfirm string) (types.User, string, error) {
	verr := newValidationError()
	validateNewPassword(verr, password, passwordConfirm)
	if err := verr.errOrNil(); err != nil {
		return types.User{}, "", err
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return types.User{}, "", err
	}
	if !auth.CheckPassword(current, user.PasswordHash) {
		return types.User{}, "", ErrInvalidCredentials
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return types.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.SetPassword(ctx, user.ID, hashed, s.passwordChangedAt()); err != nil {
		return types.User{}, "", err
	}

	token, err := s.tokens.Mint(user.ID)
	if err != nil {
		return types.User{}, "", fmt.Errorf("mint token: %w", err)
	}

	user, err = s.repo.GetByID(ctx, user.ID)
	if err != nil {
		return types.User{}, "", err
	}
	return user, token, nil
}

// Authenticate verifies a bearer token end to end: signature and expiry,
// then subject resolution, then the password-changed revocation check.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (types.User, error) {
	userID, issuedAt, err := s.tokens.Parse(tokenString)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrIdentityNotFound
		}
		return types.User{}, err
	}
	if !user.Active {
		return types.User{}, ErrIdentityNotFound
	}

	// JWT iat has second resolution; compare at the same granularity.
	if user.PasswordChangedAt.Truncate(time.Second).After(issuedAt.Truncate(time.Second)) {
		return types.User{}, ErrPasswordChanged
	}
	return user, nil
}

// passwordChangedAt backdates the stamp by one second so a token minted in
// the same instant as the change is not immediately revoked.
func (s *AuthService) passwordChangedAt() time.Time {
	return s.clock.Now().Add(-time.Second)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(verr *ValidationError, email string) {
	if email == "" {
		verr.add("email", "email is required")
		return
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		verr.add("email", "email is invalid")
	}
}

func validateNewPassword(verr *ValidationError, password, passwordConfirm string) {
	if password == "" {
		verr.add("password", "password is required")
	} else if len(password) < minPasswordLength {
		verr.add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	// Byte equality, case included.
	if passwordConfirm != password {
		verr.add("passwordConfirm", "passwords do not match")
	}
}
