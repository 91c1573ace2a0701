package auth

import "errors"

// LockedPassword is the password_hash value of accounts that cannot sign in.
const LockedPassword = "!"

var (
	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken  = errors.New("auth: invalid token")
	ErrMissingSecret = errors.New("auth: secret is not configured")
	ErrWeakPassword  = errors.New("auth: password too short")
	ErrLockedAccount = errors.New("auth: account has no usable password")
)
