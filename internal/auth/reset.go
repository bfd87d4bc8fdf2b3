package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const resetSecretBytes = 32

// ResetToken is a freshly generated one-time password-reset credential.
// Secret goes to the user and is never stored; only Hash is persisted.
type ResetToken struct {
	Secret    string
	Hash      string
	ExpiresAt time.Time
}

// NewResetToken produces a random reset secret, its storable digest, and
// an expiry of now + window.
func NewResetToken(clock Clock, window time.Duration) (ResetToken, error) {
	var buf [resetSecretBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ResetToken{}, err
	}
	secret := hex.EncodeToString(buf[:])
	return ResetToken{
		Secret:    secret,
		Hash:      HashResetToken(secret),
		ExpiresAt: clock.Now().Add(window),
	}, nil
}

// HashResetToken digests a reset secret. The digest is deliberately
// unsalted so the stored hash can be recomputed from the secret alone
// for lookup.
func HashResetToken(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
