package auth

import "errors"

var (
	// ErrGenAccessToken is returned when we cannot create a JWT.
	ErrGenAccessToken = errors.New("failed to generate access token")
	// ErrUnsupportedJWTAlg is returned for algorithms other than HS256 and RS256.
	ErrUnsupportedJWTAlg = errors.New("unsupported JWT algorithm")
	// ErrSigningKey is returned when JWT_SECRET cannot be turned into a key for the algorithm.
	ErrSigningKey = errors.New("invalid JWT signing key")
	// ErrInvalidToken is returned for tokens that fail signature, expiry or method checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidTokenMissingUserID is returned when a valid token has no user_id claim.
	ErrInvalidTokenMissingUserID = errors.New("invalid token: missing user_id")
	// ErrInvalidTokenMissingEmail is returned when a valid token has no email claim.
	ErrInvalidTokenMissingEmail = errors.New("invalid token: missing email")
)
