package auth

import "errors"

// Sentinel errors for authentication operations.
var (
	// ErrInvalidCredentials indicates the username or password was wrong.
	// Deliberately vague: callers must not reveal which one failed.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTokenInvalid indicates the token failed signature, expiry, or
	// claim validation.
	ErrTokenInvalid = errors.New("auth: token invalid")
)
