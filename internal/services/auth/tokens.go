package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	domain "github.com/kzhama/todoauth/internal/domain/auth"
	"github.com/kzhama/todoauth/internal/secret"
)

// Tokens carry only the subject and an absolute expiry, signed with a
// symmetric secret.
func signToken(jwtSecret secret.String, userID uuid.UUID, expiresAt time.Time) (secret.String, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS384, claims).SignedString([]byte(jwtSecret.Expose()))
	if err != nil {
		return secret.String{}, fmt.Errorf("sign token: %w", err)
	}
	return secret.New(token), nil
}

// parseToken verifies the signature and expiry and returns the subject.
func parseToken(jwtSecret secret.String, token string) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(jwtSecret.Expose()), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS384.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return uuid.Nil, domain.ErrUnauthorized
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, domain.ErrUnauthorized
	}
	return userID, nil
}

// hashToken derives the fast-store key from a raw token string.
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
