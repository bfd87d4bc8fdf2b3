package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/wayfarer-tours/apiserver/types"
)

const pqUniqueViolation = "23505"

const userColumns = `id, name, email, role, photo, password_hash, password_changed_at,
		reset_token_hash, reset_token_expires_at, active, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

// GetByResetTokenHash finds the user holding an unexpired reset token with
// the given digest. Expiry is checked against the supplied instant so the
// caller's clock stays authoritative.
func (r *UserRepository) GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE reset_token_hash = $1 AND reset_token_expires_at > $2`
	return r.scanOne(r.db.QueryRowContext(ctx, query, hash, now))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (name, email, role, photo, password_hash, password_changed_at, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Name,
		user.Email,
		user.Role,
		user.Photo,
		user.PasswordHash,
		user.PasswordChangedAt,
		user.Active,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, mapUniqueViolation(err)
	}
	return user, nil
}

// UpdateProfile changes name, email, and photo without touching credential
// fields, so it cannot clobber a concurrent password change.
func (r *UserRepository) UpdateProfile(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET name = $1,
			email = $2,
			photo = $3,
			updated_at = $4
		WHERE id = $5`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Name,
		user.Email,
		user.Photo,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, mapUniqueViolation(err)
	}
	if err := requireAffected(result); err != nil {
		return types.User{}, err
	}
	return r.GetByID(ctx, user.ID)
}

// SetPassword installs a new password hash, stamps password_changed_at, and
// clears any pending reset token in a single statement.
func (r *UserRepository) SetPassword(ctx context.Context, id int, passwordHash string, changedAt time.Time) error {
	const query = `
		UPDATE users
		SET password_hash = $1,
			password_changed_at = $2,
			reset_token_hash = NULL,
			reset_token_expires_at = NULL,
			updated_at = $3
		WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, passwordHash, changedAt, time.Now(), id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// SetResetToken records the reset-token digest and its expiry.
func (r *UserRepository) SetResetToken(ctx context.Context, id int, hash string, expiresAt time.Time) error {
	const query = `
		UPDATE users
		SET reset_token_hash = $1,
			reset_token_expires_at = $2,
			updated_at = $3
		WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, hash, expiresAt, time.Now(), id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// ClearResetToken drops any pending reset token.
func (r *UserRepository) ClearResetToken(ctx context.Context, id int) error {
	const query = `
		UPDATE users
		SET reset_token_hash = NULL,
			reset_token_expires_at = NULL,
			updated_at = $1
		WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// Deactivate soft-deletes the account. Rows are never removed here.
func (r *UserRepository) Deactivate(ctx context.Context, id int) error {
	const query = `
		UPDATE users
		SET active = FALSE,
			updated_at = $1
		WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (r *UserRepository) scanOne(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.Photo,
		&user.PasswordHash,
		&user.PasswordChangedAt,
		&user.ResetTokenHash,
		&user.ResetTokenExpiresAt,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return ErrDuplicateEmail
	}
	return err
}
