package scan

import (
	"errors"

	"qrattend/internal/attendance"
	"qrattend/internal/directory"
	"qrattend/internal/token"
)

// Outcome is a stable label for the result of a scan.
type Outcome string

const (
	OutcomeRecorded            Outcome = "recorded"
	OutcomeMalformed           Outcome = "malformed_token"
	OutcomeSignatureMismatch   Outcome = "signature_mismatch"
	OutcomeExpired             Outcome = "expired"
	OutcomeActivityMismatch    Outcome = "activity_mismatch"
	OutcomeDuplicate           Outcome = "duplicate"
	OutcomeParticipantNotFound Outcome = "participant_not_found"
	OutcomeActivityNotFound    Outcome = "activity_not_found"
	OutcomeStoreUnavailable    Outcome = "store_unavailable"
	OutcomeInternal            Outcome = "internal_error"
)

var outcomeErrors = []struct {
	outcome Outcome
	err     error
}{
	{OutcomeMalformed, token.ErrMalformedToken},
	{OutcomeSignatureMismatch, token.ErrSignatureMismatch},
	{OutcomeExpired, token.ErrExpired},
	{OutcomeActivityMismatch, ErrActivityMismatch},
	{OutcomeDuplicate, attendance.ErrDuplicate},
	{OutcomeParticipantNotFound, directory.ErrParticipantNotFound},
	{OutcomeActivityNotFound, directory.ErrActivityNotFound},
	{OutcomeStoreUnavailable, attendance.ErrStoreUnavailable},
	{OutcomeStoreUnavailable, directory.ErrUnavailable},
}

// OutcomeOf classifies a verification error. A nil error is OutcomeRecorded.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeRecorded
	}
	for _, oe := range outcomeErrors {
		if errors.Is(err, oe.err) {
			return oe.outcome
		}
	}
	return OutcomeInternal
}

// ErrorFor maps an outcome label back to its sentinel error. Unknown labels
// map to a generic error; OutcomeRecorded maps to nil.
func ErrorFor(o Outcome) error {
	if o == OutcomeRecorded {
		return nil
	}
	for _, oe := range outcomeErrors {
		if oe.outcome == o {
			return oe.err
		}
	}
	return errors.New("scan failed")
}

// Retryable reports whether rescanning the same code can succeed. Only store
// outages qualify; every other failure needs a different input.
func Retryable(err error) bool {
	return OutcomeOf(err) == OutcomeStoreUnavailable
}

// Message is the operator-facing text for an outcome.
func (o Outcome) Message() string {
	switch o {
	case OutcomeRecorded:
		return "attendance recorded"
	case OutcomeMalformed:
		return "not an attendance code"
	case OutcomeSignatureMismatch:
		return "token invalid or modified"
	case OutcomeExpired:
		return "token expired, ask the participant to refresh it"
	case OutcomeActivityMismatch:
		return "token is for a different activity"
	case OutcomeDuplicate:
		return "attendance already recorded"
	case OutcomeParticipantNotFound:
		return "participant not found"
	case OutcomeActivityNotFound:
		return "activity not found"
	case OutcomeStoreUnavailable:
		return "attendance store unavailable, scan again"
	default:
		return "scan failed"
	}
}
