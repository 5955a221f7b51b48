package protocol

import "errors"

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Session state.
	ErrConfigUnavailable = "E_CONFIG_UNAVAILABLE"
	ErrStale             = "E_STALE"

	// Reconciliation and commit-reveal.
	ErrCommitmentMismatch = "E_COMMITMENT_MISMATCH"
	ErrUnresolvableEntity = "E_UNRESOLVABLE_ENTITY"
	ErrUnknownActionTag   = "E_UNKNOWN_ACTION_TAG"
	ErrMissingAttribute   = "E_MISSING_ATTRIBUTE"
	ErrInvalidTarget      = "E_INVALID_TARGET"
	ErrInternal           = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:    {},
	ErrProtoVersion:       {},
	ErrConfigUnavailable:  {},
	ErrStale:              {},
	ErrCommitmentMismatch: {},
	ErrUnresolvableEntity: {},
	ErrUnknownActionTag:   {},
	ErrMissingAttribute:   {},
	ErrInvalidTarget:      {},
	ErrInternal:           {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Error tags a failure with the code a NOTICE reports it under.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string { return e.Code + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the code carried by err, or ErrInternal.
func CodeOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrInternal
}
