package token

import (
	"errors"
	"time"
)

var (
	// ErrIssuance is returned when a token cannot be minted for the given identifiers.
	ErrIssuance = errors.New("token issuance failed")
	// ErrMalformedToken means the payload did not decode to exactly four fields.
	ErrMalformedToken = errors.New("malformed token")
	// ErrSignatureMismatch means the token was forged or modified in transit.
	ErrSignatureMismatch = errors.New("token invalid or modified")
	// ErrExpired means the token was presented after its expiry.
	ErrExpired = errors.New("token expired")
)

// Token is a short-lived attendance credential. It is never persisted.
type Token struct {
	ParticipantID string
	ActivityID    string
	ExpiresAt     int64 // epoch millis
	Signature     string
}

// Expiry returns ExpiresAt as a time.
func (t Token) Expiry() time.Time {
	return time.UnixMilli(t.ExpiresAt)
}

// ExpiredAt reports whether the token is past its expiry at now.
// A token is still valid at exactly its expiry millisecond.
func (t Token) ExpiredAt(now time.Time) bool {
	return now.UnixMilli() > t.ExpiresAt
}
