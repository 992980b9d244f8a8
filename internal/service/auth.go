package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/devicesession/backend/internal/db"
	"github.com/devicesession/backend/internal/model"
)

const (
	minLoginIDLength  = 3
	minPasswordLength = 8
)

type UserStore interface {
	UserFinder[*model.User]
	GetUserByID(ctx context.Context, userID int64) (*model.User, error)
	CreateUser(ctx context.Context, loginID, passwordHash string) (*model.User, error)
}

// AuthService ties credential checks to session issuance and resolves the
// user behind an access token.
type AuthService struct {
	sessions *SessionManager
	verifier CredentialVerifier[*model.User]
	users    UserStore
	schemes  *PasswordSchemes
}

func NewAuthService(sessions *SessionManager, verifier CredentialVerifier[*model.User], users UserStore, schemes *PasswordSchemes) *AuthService {
	return &AuthService{
		sessions: sessions,
		verifier: verifier,
		users:    users,
		schemes:  schemes,
	}
}

func (s *AuthService) Sessions() *SessionManager {
	return s.sessions
}

func (s *AuthService) EnsureAdmin(ctx context.Context, loginID, password string) error {
	if strings.TrimSpace(loginID) == "" || strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: ADMIN_USERNAME/ADMIN_PASSWORD are required", ErrMisconfigured)
	}

	_, err := s.users.GetUserByLoginID(ctx, loginID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return err
	}

	if err := validateCredentials(loginID, password); err != nil {
		return err
	}

	hash, err := s.schemes.Hash(password)
	if err != nil {
		return err
	}

	_, err = s.users.CreateUser(ctx, loginID, hash)
	if errors.Is(err, db.ErrConflict) {
		return nil
	}
	return err
}

func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (*TokenPair, error) {
	user, err := s.verifier.Verify(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}
	return s.sessions.IssueSession(ctx, user.ID, req.DeviceName, req.Fingerprint)
}

// Authenticate verifies an access token and loads its user. A token whose
// user no longer exists is ErrUnauthorized.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*model.AuthUser, error) {
	userID, err := s.sessions.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	return &model.AuthUser{
		ID:      user.ID,
		LoginID: user.LoginID,
	}, nil
}

func validateCredentials(loginID, password string) error {
	loginID = strings.TrimSpace(loginID)
	password = strings.TrimSpace(password)

	if len(loginID) < minLoginIDLength || len(loginID) > 64 {
		return fmt.Errorf("%w: login id must be 3-64 characters", ErrMisconfigured)
	}
	if len(password) < minPasswordLength || len(password) > 128 {
		return fmt.Errorf("%w: password must be 8-128 characters", ErrMisconfigured)
	}
	return nil
}
