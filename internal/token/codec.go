package token

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

const delimiter = "_"

// Encode renders the QR payload: base64 of the four fields joined by "_".
func Encode(t Token) string {
	joined := strings.Join([]string{
		t.ParticipantID,
		t.ActivityID,
		strconv.FormatInt(t.ExpiresAt, 10),
		t.Signature,
	}, delimiter)
	return base64.StdEncoding.EncodeToString([]byte(joined))
}

// Decode parses a QR payload. Any shape problem is ErrMalformedToken; the
// signature itself is not checked here.
func Decode(payload string) (Token, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return Token{}, fmt.Errorf("%w: not base64", ErrMalformedToken)
	}
	parts := strings.Split(string(raw), delimiter)
	if len(parts) != 4 {
		return Token{}, fmt.Errorf("%w: expected 4 fields, got %d", ErrMalformedToken, len(parts))
	}
	for _, p := range parts {
		if p == "" {
			return Token{}, fmt.Errorf("%w: empty field", ErrMalformedToken)
		}
	}
	expiresAt, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Token{}, fmt.Errorf("%w: bad expiry", ErrMalformedToken)
	}
	return Token{
		ParticipantID: parts[0],
		ActivityID:    parts[1],
		ExpiresAt:     expiresAt,
		Signature:     parts[3],
	}, nil
}
