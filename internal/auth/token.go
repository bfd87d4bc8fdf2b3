package auth

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired is returned when a token's expiry has passed.
var ErrTokenExpired = errors.New("token expired")

// ErrTokenInvalid is returned for any other verification failure: bad
// signature, wrong signing method, malformed payload, or missing subject.
var ErrTokenInvalid = errors.New("token invalid")

// Tokens mints and verifies signed bearer tokens. Tokens are stateless;
// nothing is persisted and revocation is derived entirely from comparing
// the issue time against the subject's password-changed timestamp, which
// the service layer owns.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	clock  Clock
}

// NewTokens constructs a Tokens with the process-wide signing secret.
func NewTokens(secret string, ttl time.Duration, clock Clock) *Tokens {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Tokens{
		secret: []byte(secret),
		ttl:    ttl,
		clock:  clock,
	}
}

// TTL returns the configured token lifetime.
func (t *Tokens) TTL() time.Duration {
	return t.ttl
}

// Mint signs a token for the given subject with issued-at = now and
// expiry = now + ttl.
func (t *Tokens) Mint(userID int) (string, error) {
	now := t.clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse verifies signature and expiry and returns the subject's user ID
// together with the token's issue time.
func (t *Tokens) Parse(tokenString string) (int, time.Time, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.clock.Now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, time.Time{}, ErrTokenExpired
		}
		return 0, time.Time{}, ErrTokenInvalid
	}
	if !token.Valid {
		return 0, time.Time{}, ErrTokenInvalid
	}

	userID, err := strconv.Atoi(strings.TrimSpace(claims.Subject))
	if err != nil || userID < 1 {
		return 0, time.Time{}, ErrTokenInvalid
	}
	if claims.IssuedAt == nil {
		return 0, time.Time{}, ErrTokenInvalid
	}
	return userID, claims.IssuedAt.Time, nil
}
