package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/devicesession/backend/internal/db"
	"github.com/devicesession/backend/internal/model"
)

// CredentialVerifier checks a username/password pair and returns the
// caller's user identity.
type CredentialVerifier[U any] interface {
	Verify(ctx context.Context, username, password string) (U, error)
}

// UserFinder loads a user by login name. A missing user is db.ErrNotFound.
type UserFinder[U any] interface {
	GetUserByLoginID(ctx context.Context, loginID string) (U, error)
}

// UserAdapter extracts the attributes the verifier needs from U.
type UserAdapter[U any] interface {
	LoginName(user U) string
	PasswordHash(user U) string
}

type ModelUserAdapter struct{}

func (ModelUserAdapter) LoginName(user *model.User) string { return user.LoginID }
func (ModelUserAdapter) PasswordHash(user *model.User) string { return user.PasswordHash }

type PasswordVerifier[U any] struct {
	users   UserFinder[U]
	adapter UserAdapter[U]
	schemes *PasswordSchemes
	// dummyHash is compared against when the user does not exist so both
	// failure paths do the same hashing work.
	dummyHash string
}

func NewPasswordVerifier[U any](users UserFinder[U], adapter UserAdapter[U], schemes *PasswordSchemes) (*PasswordVerifier[U], error) {
	dummy, err := schemes.Hash("dummy-password-for-timing")
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}
	return &PasswordVerifier[U]{
		users:     users,
		adapter:   adapter,
		schemes:   schemes,
		dummyHash: dummy,
	}, nil
}

func (v *PasswordVerifier[U]) Verify(ctx context.Context, username, password string) (U, error) {
	var zero U
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return zero, ErrInvalidCredentials
	}

	user, err := v.users.GetUserByLoginID(ctx, username)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			_, _ = v.schemes.Verify(v.dummyHash, password)
			return zero, ErrInvalidCredentials
		}
		return zero, fmt.Errorf("load user: %w", err)
	}

	// Guard against finders that match case-insensitively.
	if v.adapter.LoginName(user) != username {
		return zero, ErrInvalidCredentials
	}

	ok, err := v.schemes.Verify(v.adapter.PasswordHash(user), password)
	if err != nil {
		return zero, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	if !ok {
		return zero, ErrInvalidCredentials
	}
	return user, nil
}
