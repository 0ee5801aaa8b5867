package auth

import "errors"

var (
	// ErrUnauthorized reports that the requester may not access a resource.
	ErrUnauthorized = errors.New("auth: not authorized")
	// ErrInvalidToken reports a malformed, expired or wrongly signed session token.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrMissingSecret is returned when token signing is requested without a secret.
	ErrMissingSecret = errors.New("auth: signing secret is required")
)
