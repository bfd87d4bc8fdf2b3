package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword applies a salted bcrypt digest to the plaintext. Repeated
// calls on the same input produce different digests.
func HashPassword(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword reports whether plain matches the stored digest. It returns
// false on any mismatch or malformed digest and never panics.
func CheckPassword(plain, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}
