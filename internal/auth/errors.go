package auth

import "errors"

var (
	// ErrTokenInvalid is returned for a token that fails parsing or validation.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrTokenExpired is returned for a correctly signed token past its expiry.
	ErrTokenExpired = errors.New("auth: token has expired")

	// ErrMissingSecret is returned when signing without a configured secret.
	ErrMissingSecret = errors.New("auth: jwt secret is not configured")

	// ErrForbidden is returned when a token lacks a required scope.
	ErrForbidden = errors.New("auth: insufficient scope")
)
