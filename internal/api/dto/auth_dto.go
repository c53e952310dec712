package dto

// ValidateTokenResponse is returned by GET /auth/validate-token.
type ValidateTokenResponse struct {
	Valid bool `json:"valid"`
}

// MessageResponse carries a human readable outcome.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserInfoResponse describes the authenticated caller.
type UserInfoResponse struct {
	Username      string `json:"username"`
	UserID        *int64 `json:"userId"`
	Authenticated bool   `json:"authenticated"`
}

// HealthResponse is the body of the auth health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
