package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("conflict")
	ErrMisconfigured      = errors.New("auth config invalid")

	ErrInvalidToken     = errors.New("invalid token")
	ErrMalformedToken   = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrInvalidSignature = fmt.Errorf("%w: signature invalid", ErrInvalidToken)
	ErrExpiredToken     = errors.New("token expired")
	ErrTokenNotFound    = errors.New("refresh token not found")
	ErrRevoked          = errors.New("refresh token revoked")
	ErrDeviceMismatch   = errors.New("device fingerprint mismatch")
)

// IsTokenError reports whether err is one of the token failures that the
// transport answers with 401.
func IsTokenError(err error) bool {
	for _, target := range []error{
		ErrInvalidToken,
		ErrExpiredToken,
		ErrTokenNotFound,
		ErrRevoked,
		ErrDeviceMismatch,
		ErrUnauthorized,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ErrorKind returns a short stable label for err, used in logs and metric
// labels.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedToken):
		return "malformed"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrExpiredToken):
		return "expired"
	case errors.Is(err, ErrTokenNotFound):
		return "not_found"
	case errors.Is(err, ErrRevoked):
		return "revoked"
	case errors.Is(err, ErrDeviceMismatch):
		return "device_mismatch"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
