package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"time"
)

// Signer computes token signatures. With a secret it is HMAC-SHA256; without
// one it degrades to a plain SHA-256 digest that anyone can recompute.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer. An empty secret selects the unkeyed digest.
func NewSigner(secret string) *Signer {
	if secret == "" {
		return &Signer{}
	}
	return &Signer{secret: []byte(secret)}
}

// Keyed reports whether signatures depend on a server-held secret.
func (s *Signer) Keyed() bool {
	return len(s.secret) > 0
}

// Sign returns the hex signature over participantID_activityID_expiresAt.
func (s *Signer) Sign(participantID, activityID string, expiresAt int64) string {
	input := []byte(signingInput(participantID, activityID, expiresAt))
	if !s.Keyed() {
		sum := sha256.Sum256(input)
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(input)
	return hex.EncodeToString(mac.Sum(nil))
}

// Check validates signature first, then expiry.
func (s *Signer) Check(t Token, now time.Time) error {
	want := s.Sign(t.ParticipantID, t.ActivityID, t.ExpiresAt)
	if subtle.ConstantTimeCompare([]byte(want), []byte(t.Signature)) != 1 {
		return ErrSignatureMismatch
	}
	if t.ExpiredAt(now) {
		return ErrExpired
	}
	return nil
}

func signingInput(participantID, activityID string, expiresAt int64) string {
	return participantID + delimiter + activityID + delimiter + strconv.FormatInt(expiresAt, 10)
}
