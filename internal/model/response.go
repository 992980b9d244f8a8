package model

type ErrorResponse struct {
	Detail string `json:"detail"`
}

type PingResponse struct {
	Message string `json:"message"`
}

type RootResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type AuthLogoutResponse struct {
	Status string `json:"status"`
}

type RevokeSessionsResponse struct {
	Status  string `json:"status"`
	Revoked int64  `json:"revoked"`
}

type ActiveSessionsResponse struct {
	Sessions []ActiveSession `json:"sessions"`
}
