package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/wayfarer-tours/apiserver/internal/auth"
	"github.com/wayfarer-tours/apiserver/internal/store"
	"github.com/wayfarer-tours/apiserver/types"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type fakeRepo struct {
	users  map[int]types.User
	nextID int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: map[int]types.User{}, nextID: 1}
}

func (r *fakeRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeRepo) GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (types.User, error) {
	for _, user := range r.users {
		if user.ResetTokenHash != nil && *user.ResetTokenHash == hash &&
			user.ResetTokenExpiresAt != nil && user.ResetTokenExpiresAt.After(now) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	if _, err := r.GetByEmail(ctx, user.Email); err == nil {
		return types.User{}, store.ErrDuplicateEmail
	}
	user.ID = r.nextID
	r.nextID++
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeRepo) UpdateProfile(ctx context.Context, user types.User) (types.User, error) {
	current, ok := r.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	current.Name = user.Name
	current.Email = user.Email
	current.Photo = user.Photo
	r.users[user.ID] = current
	return current, nil
}

func (r *fakeRepo) SetPassword(ctx context.Context, id int, passwordHash string, changedAt time.Time) error {
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.PasswordChangedAt = changedAt
	user.ResetTokenHash = nil
	user.ResetTokenExpiresAt = nil
	r.users[id] = user
	return nil
}

func (r *fakeRepo) SetResetToken(ctx context.Context, id int, hash string, expiresAt time.Time) error {
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.ResetTokenHash = &hash
	user.ResetTokenExpiresAt = &expiresAt
	r.users[id] = user
	return nil
}

func (r *fakeRepo) ClearResetToken(ctx context.Context, id int) error {
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.ResetTokenHash = nil
	user.ResetTokenExpiresAt = nil
	r.users[id] = user
	return nil
}

func (r *fakeRepo) Deactivate(ctx context.Context, id int) error {
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.Active = false
	r.users[id] = user
	return nil
}

type fakeNotifier struct {
	welcomes []string
	resets   []string
	resetURL string
	fail     bool
}

func (n *fakeNotifier) SendWelcome(ctx context.Context, user types.User, loginURL string) error {
	if n.fail {
		return errors.New("broker unavailable")
	}
	n.welcomes = append(n.welcomes, user.Email)
	return nil
}

func (n *fakeNotifier) SendPasswordReset(ctx context.Context, user types.User, resetURL string) error {
	if n.fail {
		return errors.New("broker unavailable")
	}
	n.resets = append(n.resets, user.Email)
	n.resetURL = resetURL
	return nil
}

type authFixture struct {
	service  *AuthService
	repo     *fakeRepo
	notifier *fakeNotifier
	clock    *fakeClock
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	repo := newFakeRepo()
	notifier := &fakeNotifier{}
	tokens := auth.NewTokens("test-secret", time.Hour, clock)
	service := NewAuthService(repo, notifier, tokens, clock, 10*time.Minute, "http://localhost:8080")
	return &authFixture{
		service:  service,
		repo:     repo,
		notifier: notifier,
		clock:    clock,
	}
}

func (f *authFixture) signup(t *testing.T, name, email, password string) types.User {
	t.Helper()
	user, token, err := f.service.Signup(context.Background(), SignupInput{
		Name:            name,
		Email:           email,
		Password:        password,
		PasswordConfirm: password,
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if token == "" {
		t.Fatal("expected a token from signup")
	}
	return user
}

func TestSignup(t *testing.T) {
	f := newAuthFixture(t)

	user := f.signup(t, "Ana", "a@x.com", "longpass1")

	if user.ID == 0 {
		t.Fatal("expected user ID to be set")
	}
	if user.Role != types.RoleUser {
		t.Fatalf("expected default role %q, got %q", types.RoleUser, user.Role)
	}
	if !user.Active {
		t.Fatal("expected new accounts to be active")
	}

	stored := f.repo.users[user.ID]
	if stored.PasswordHash == "" || stored.PasswordHash == "longpass1" {
		t.Fatal("password must be stored hashed")
	}
	if len(f.notifier.welcomes) != 1 || f.notifier.welcomes[0] != "a@x.com" {
		t.Fatalf("expected one welcome email to a@x.com, got %v", f.notifier.welcomes)
	}
}

func TestSignupNormalizesEmail(t *testing.T) {
	f := newAuthFixture(t)

	user := f.signup(t, "Ana", "  Ana@X.COM ", "longpass1")
	if user.Email != "ana@x.com" {
		t.Fatalf("expected lower-cased email, got %q", user.Email)
	}

	if _, _, err := f.service.Login(context.Background(), "ANA@x.com", "longpass1"); err != nil {
		t.Fatalf("login with differently cased email: %v", err)
	}
}

func TestSignupValidation(t *testing.T) {
	f := newAuthFixture(t)

	tests := []struct {
		name   string
		input  SignupInput
		fields []string
	}{
		{
			name:   "missing everything",
			input:  SignupInput{},
			fields: []string{"email", "name", "password"},
		},
		{
			name: "short password",
			input: SignupInput{
				Name:            "Ana",
				Email:           "a@x.com",
				Password:        "short",
				PasswordConfirm: "short",
			},
			fields: []string{"password"},
		},
		{
			name: "confirm mismatch is case sensitive",
			input: SignupInput{
				Name:            "Ana",
				Email:           "a@x.com",
				Password:        "longpass1",
				PasswordConfirm: "Longpass1",
			},
			fields: []string{"passwordConfirm"},
		},
		{
			name: "invalid email",
			input: SignupInput{
				Name:            "Ana",
				Email:           "not-an-email",
				Password:        "longpass1",
				PasswordConfirm: "longpass1",
			},
			fields: []string{"email"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.service.Signup(context.Background(), tt.input)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			got := make([]string, 0, len(verr.Fields))
			for field := range verr.Fields {
				got = append(got, field)
			}
			sort.Strings(got)
			if len(got) != len(tt.fields) {
				t.Fatalf("expected fields %v, got %v", tt.fields, got)
			}
			for i := range got {
				if got[i] != tt.fields[i] {
					t.Fatalf("expected fields %v, got %v", tt.fields, got)
				}
			}
		})
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "Ana", "a@x.com", "longpass1")

	_, _, err := f.service.Signup(context.Background(), SignupInput{
		Name:            "Other",
		Email:           "a@x.com",
		Password:        "longpass2",
		PasswordConfirm: "longpass2",
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := verr.Fields["email"]; !ok {
		t.Fatalf("expected email field error, got %v", verr.Fields)
	}
}

func TestSignupSurvivesNotifierFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.notifier.fail = true

	user, token, err := f.service.Signup(context.Background(), SignupInput{
		Name:            "Ana",
		Email:           "a@x.com",
		Password:        "longpass1",
		PasswordConfirm: "longpass1",
	})
	if err != nil {
		t.Fatalf("signup must not fail when the welcome email fails: %v", err)
	}
	if user.ID == 0 || token == "" {
		t.Fatal("expected user and token despite notifier failure")
	}
}

func TestLoginDoesNotDistinguishFailures(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "Ana", "a@x.com", "longpass1")

	_, _, wrongPassword := f.service.Login(context.Background(), "a@x.com", "wrongpass1")
	_, _, unknownEmail := f.service.Login(context.Background(), "nobody@x.com", "longpass1")

	if !errors.Is(wrongPassword, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", wrongPassword)
	}
	if !errors.Is(unknownEmail, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", unknownEmail)
	}
	if wrongPassword.Error() != unknownEmail.Error() {
		t.Fatalf("error messages must be identical: %q vs %q", wrongPassword, unknownEmail)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	f := newAuthFixture(t)
	user := f.signup(t, "Ana", "a@x.com", "longpass1")

	if err := f.repo.Deactivate(context.Background(), user.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if _, _, err := f.service.Login(context.Background(), "a@x.com", "longpass1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for inactive account, got %v", err)
	}
}

func TestForgotResetLifecycle(t *testing.T) {
	f := newAuthFixture(t)
	user := f.signup(t, "Ana", "a@x.com", "longpass1")

	if err := f.service.ForgotPassword(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("forgot password: %v", err)
	}
	if len(f.notifier.resets) != 1 {
		t.Fatalf("expected one reset email, got %d", len(f.notifier.resets))
	}
	stored := f.repo.users[user.ID]
	if stored.ResetTokenHash == nil || stored.ResetTokenExpiresAt == nil {
		t.Fatal("expected reset hash and expiry to be persisted together")
	}

	secret := secretFromResetURL(t, f.notifier.resetURL)
	if *stored.ResetTokenHash == secret {
		t.Fatal("the raw secret must never be stored")
	}

	resetUser, token, err := f.service.ResetPassword(context.Background(), secret, "newpass123", "newpass123")
	if err != nil {
		t.Fatalf("reset password: %v", err)
	}
	if token == "" {
		t.Fatal("expected a fresh token after reset")
	}
	if resetUser.ResetTokenHash != nil || resetUser.ResetTokenExpiresAt != nil {
		t.Fatal("expected reset fields cleared after consumption")
	}

	if _, _, err := f.service.Login(context.Background(), "a@x.com", "newpass123"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, _, err := f.service.Login(context.Background(), "a@x.com", "longpass1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("login with old password: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestResetTokenSingleUse(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "Ana", "a@x.com", "longpass1")

	if err := f.service.ForgotPassword(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("forgot password: %v", err)
	}
	secret := secretFromResetURL(t, f.notifier.resetURL)

	if _, _, err := f.service.ResetPassword(context.Background(), secret, "newpass123", "newpass123"); err != nil {
		t.Fatalf("first reset: %v", err)
	}
	if _, _, err := f.service.ResetPassword(context.Background(), secret, "otherpass1", "otherpass1"); !errors.Is(err, ErrTokenInvalidOrExpired) {
		t.Fatalf("second reset: expected ErrTokenInvalidOrExpired, got %v", err)
	}
}

func TestResetTokenExpires(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "Ana", "a@x.com", "longpass1")

	if err := f.service.ForgotPassword(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("forgot password: %v", err)
	}
	secret := secretFromResetURL(t, f.notifier.resetURL)

	f.clock.advance(11 * time.Minute)

	if _, _, err := f.service.ResetPassword(context.Background(), secret, "newpass123", "newpass123"); !errors.Is(err, ErrTokenInvalidOrExpired) {
		t.Fatalf("expected ErrTokenInvalidOrExpired after window, got %v", err)
	}
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	f := newAuthFixture(t)

	if err := f.service.ForgotPassword(context.Background(), "nobody@x.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestForgotPasswordClearsTokenWhenSendFails(t *testing.T) {
	f := newAuthFixture(t)
	user := f.signup(t, "Ana", "a@x.com", "longpass1")
	f.notifier.fail = true

	if err := f.service.ForgotPassword(context.Background(), "a@x.com"); !errors.Is(err, ErrNotificationFailed) {
		t.Fatalf("expected ErrNotificationFailed, got %v", err)
	}

	stored := f.repo.users[user.ID]
	if stored.ResetTokenHash != nil || stored.ResetTokenExpiresAt != nil {
		t.Fatal("no valid reset token may remain when the user was never notified")
	}
}

func TestUpdatePassword(t *testing.T) {
	f := newAuthFixture(t)
	user := f.signup(t, "Ana", "a@x.com", "longpass1")

	if _, _, err := f.service.UpdatePassword(context.Background(), user.ID, "wrongpass1", "newpass123", "newpass123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong current password: expected ErrInvalidCredentials, got %v", err)
	}

	_, token, err := f.service.UpdatePassword(context.Background(), user.ID, "longpass1", "newpass123", "newpass123")
	if err != nil {
		t.Fatalf("update password: %v", err)
	}
	if token == "" {
		t.Fatal("expected a fresh token after password update")
	}

	if _, _, err := f.service.Login(context.Background(), "a@x.com", "newpass123"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	f := newAuthFixture(t)
	user := f.signup(t, "Ana", "a@x.com", "longpass1")

	_, token, err := f.service.Login(context.Background(), "a@x.com", "longpass1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	resolved, err := f.service.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if resolved.ID != user.ID {
		t.Fatalf("expected user %d, got %d", user.ID, resolved.ID)
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "Ana", "a@x.com", "longpass1")

	_, token, err := f.service.Login(context.Background(), "a@x.com", "longpass1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	f.clock.advance(2 * time.Hour)

	if _, err := f.service.Authenticate(context.Background(), token); !errors.Is(err, auth.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestAuthenticateRejectsTokenFromBeforePasswordChange(t *testing.T) {
	f := newAuthFixture(t)
	user := f.signup(t, "Ana", "a@x.com", "longpass1")

	_, oldToken, err := f.service.Login(context.Background(), "a@x.com", "longpass1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	f.clock.advance(5 * time.Minute)
	if _, _, err := f.service.UpdatePassword(context.Background(), user.ID, "longpass1", "newpass123", "newpass123"); err != nil {
		t.Fatalf("update password: %v", err)
	}

	if _, err := f.service.Authenticate(context.Background(), oldToken); !errors.Is(err, ErrPasswordChanged) {
		t.Fatalf("expected ErrPasswordChanged, got %v", err)
	}
}

func TestAuthenticateTokenMintedAfterPasswordChangeStaysValid(t *testing.T) {
	f := newAuthFixture(t)
	user := f.signup(t, "Ana", "a@x.com", "longpass1")

	_, token, err := f.service.UpdatePassword(context.Background(), user.ID, "longpass1", "newpass123", "newpass123")
	if err != nil {
		t.Fatalf("update password: %v", err)
	}

	if _, err := f.service.Authenticate(context.Background(), token); err != nil {
		t.Fatalf("token minted alongside the change must stay valid: %v", err)
	}
}

func TestAuthenticateMissingIdentity(t *testing.T) {
	f := newAuthFixture(t)
	user := f.signup(t, "Ana", "a@x.com", "longpass1")

	_, token, err := f.service.Login(context.Background(), "a@x.com", "longpass1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	delete(f.repo.users, user.ID)

	if _, err := f.service.Authenticate(context.Background(), token); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestAuthenticateDeactivatedIdentity(t *testing.T) {
	f := newAuthFixture(t)
	user := f.signup(t, "Ana", "a@x.com", "longpass1")

	_, token, err := f.service.Login(context.Background(), "a@x.com", "longpass1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := f.repo.Deactivate(context.Background(), user.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if _, err := f.service.Authenticate(context.Background(), token); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound for inactive account, got %v", err)
	}
}

func secretFromResetURL(t *testing.T, resetURL string) string {
	t.Helper()
	idx := strings.LastIndex(resetURL, "/")
	if idx < 0 || idx == len(resetURL)-1 {
		t.Fatalf("malformed reset URL %q", resetURL)
	}
	return resetURL[idx+1:]
}
