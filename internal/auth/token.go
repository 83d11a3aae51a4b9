package auth

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nordvolt/wallbox-core/internal/infrastructure/config"
)

// Claims are the JWT claims issued to the operator after login.
//
// The supervisor runs a single configured operator account, so the
// claims carry only the standard fields; the subject is the operator
// username from config.
type Claims struct {
	jwt.RegisteredClaims
}

// Authenticate validates a username/password pair against the
// configured operator account.
//
// Both the username comparison and the Argon2id verification run in
// constant time regardless of which check fails, and the error never
// distinguishes a wrong username from a wrong password.
//
// Parameters:
//   - username, password: Credentials from the login request
//   - cfg: The api.auth section of the configuration
//
// Returns:
//   - error: nil on success, ErrInvalidCredentials otherwise
func Authenticate(username, password string, cfg config.APIAuthConfig) error {
	if cfg.Username == "" || cfg.PasswordHash == "" {
		return ErrInvalidCredentials
	}

	usernameOK := subtle.ConstantTimeCompare([]byte(username), []byte(cfg.Username)) == 1

	passwordOK, err := VerifyPassword(password, cfg.PasswordHash)
	if err != nil || !passwordOK || !usernameOK {
		return ErrInvalidCredentials
	}

	return nil
}

// GenerateAccessToken creates a signed JWT access token for the operator.
// Access tokens are short-lived (configured TTL) and validated by
// signature only.
func GenerateAccessToken(username, secret string, ttlMinutes int) (string, error) {
	if ttlMinutes <= 0 {
		ttlMinutes = 60 //nolint:mnd // default 60-minute access token TTL
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlMinutes) * time.Minute)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// ParseToken validates and parses a JWT access token, returning the claims.
// It checks the signature, expiry, and required fields.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return claims, nil
}
