package token

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = 300 * time.Second

// Issuer mints signed, expiring attendance tokens. It does not check that the
// identifiers exist; callers look them up first.
type Issuer struct {
	signer *Signer
	ttl    time.Duration
	Now    func() time.Time
}

// NewIssuer creates an issuer. A non-positive ttl uses DefaultTTL.
func NewIssuer(signer *Signer, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{signer: signer, ttl: ttl, Now: time.Now}
}

// TTL returns the validity duration of issued tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue mints a token for the pair.
func (i *Issuer) Issue(participantID, activityID string) (Token, error) {
	if err := checkID("participant", participantID); err != nil {
		return Token{}, err
	}
	if err := checkID("activity", activityID); err != nil {
		return Token{}, err
	}
	expiresAt := i.Now().Add(i.ttl).UnixMilli()
	return Token{
		ParticipantID: participantID,
		ActivityID:    activityID,
		ExpiresAt:     expiresAt,
		Signature:     i.signer.Sign(participantID, activityID, expiresAt),
	}, nil
}

func checkID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s id required", ErrIssuance, kind)
	}
	// "_" is the payload delimiter.
	if strings.Contains(id, delimiter) {
		return fmt.Errorf("%w: %s id must not contain %q", ErrIssuance, kind, delimiter)
	}
	return nil
}
