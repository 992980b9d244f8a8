package model

import "time"

type LoginRequest struct {
	Username    string            `json:"username" binding:"required"`
	Password    string            `json:"password" binding:"required"`
	DeviceName  string            `json:"device_name"`
	Fingerprint map[string]string `json:"fingerprint"`
}

type RefreshRequest struct {
	RefreshToken string            `json:"refresh_token" binding:"required"`
	Fingerprint  map[string]string `json:"fingerprint"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type AuthUser struct {
	ID      int64
	LoginID string
}

type User struct {
	ID           int64
	LoginID      string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshToken is one persisted device session. FingerprintHash is fixed at
// creation; Revoked only ever moves from false to true.
type RefreshToken struct {
	ID              int64
	UserID          int64
	Token           string
	DeviceName      string
	FingerprintHash string
	CreatedAt       time.Time
	ExpiresAt       time.Time
	Revoked         bool
}

type ActiveSession struct {
	RefreshToken string    `json:"refresh_token"`
	DeviceName   string    `json:"device_name"`
	CreatedAt    time.Time `json:"created_at"`
}
