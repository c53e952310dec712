package domain

import "time"

// Token describes the decoded metadata of a bearer token. The raw string is
// never kept here.
type Token struct {
	Subject   string
	UserID    *int64
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Identity is the caller identity extracted from a verified token.
type Identity struct {
	Subject string
	UserID  *int64
}

// HasUserID reports whether the identity carries a numeric user id.
func (i Identity) HasUserID() bool {
	return i.UserID != nil
}
