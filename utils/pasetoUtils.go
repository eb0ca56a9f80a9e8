package utils

import (
	"errors"
	"time"

	"github.com/o1egl/paseto"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrSecretTooShort = errors.New("secret key is too short")
	ErrTokenExpired   = errors.New("token has expired")
)

// SessionClaims is the payload sealed inside a session cookie.
type SessionClaims struct {
	SessionID string    `json:"sid"`
	Expiry    time.Time `json:"expiry"`
}

// SymmetricKey turns a configured secret into a PASETO v2 local key,
// truncating anything past the key size.
func SymmetricKey(secret string) ([]byte, error) {
	symmetricKey := []byte(secret)
	if len(symmetricKey) < chacha20poly1305.KeySize {
		return nil, ErrSecretTooShort
	}
	if len(symmetricKey) > chacha20poly1305.KeySize {
		symmetricKey = symmetricKey[:chacha20poly1305.KeySize]
	}
	return symmetricKey, nil
}

// GeneratePASETO seals sessionID into an encrypted token that expires after expiration.
func GeneratePASETO(sessionID string, key []byte, expiration time.Duration) (string, error) {
	claims := SessionClaims{
		SessionID: sessionID,
		Expiry:    time.Now().Add(expiration),
	}

	v2 := paseto.NewV2()
	return v2.Encrypt(key, claims, nil)
}

// ValidatePASETO opens a token produced by GeneratePASETO and returns its claims.
func ValidatePASETO(token string, key []byte) (*SessionClaims, error) {
	var claims SessionClaims
	v2 := paseto.NewV2()
	if err := v2.Decrypt(token, key, &claims, nil); err != nil {
		return nil, err
	}

	if time.Now().After(claims.Expiry) {
		return nil, ErrTokenExpired
	}

	return &claims, nil
}
