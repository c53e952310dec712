package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTokenRevoked          EventType = "token_revoked"
	EventTokenRevocationFailed EventType = "token_revocation_failed"
	EventTokenRejected         EventType = "token_rejected"
)

// Event represents a token lifecycle event. Raw tokens never appear in
// events; TokenDigest is a short prefix of the ledger key.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	TokenDigest string    `json:"token_digest"`
	Subject     string    `json:"subject,omitempty"`
	UserID      *int64    `json:"user_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Payload     any       `json:"payload,omitempty"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(eventType EventType, tokenDigest string, payload any) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		TokenDigest: tokenDigest,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	}
}

// TokenRevokedPayload payload.
type TokenRevokedPayload struct {
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenRevocationFailedPayload payload.
type TokenRevocationFailedPayload struct {
	ExpiresAt time.Time `json:"expires_at"`
	Error     string    `json:"error"`
}

// TokenRejectedPayload payload.
type TokenRejectedPayload struct {
	Reason string `json:"reason"`
}
