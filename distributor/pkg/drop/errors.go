package drop

import "errors"

// Kind buckets failure codes for coarse-grained handling (status
// mapping, metrics labels). A Kind sits in the error chain of every
// *Error, so errors.Is works against either the specific code or the
// bucket.
type Kind string

const (
	KindAccessDenied Kind = "access_denied"
	KindState        Kind = "state"
	KindValidation   Kind = "validation"
	KindResource     Kind = "resource"
	KindNotFound     Kind = "not_found"
)

func (k Kind) Error() string {
	return string(k)
}

// Error is a stable, enumerable failure code raised by a distribution
// operation. Errors are terminal: a rejected operation applies no state
// change at all.
type Error struct {
	Code string
	Kind Kind
}

func (e *Error) Error() string {
	return e.Code
}

// Unwrap exposes the kind, so errors.Is(err, drop.KindState) holds for
// every state error.
func (e *Error) Unwrap() error {
	return e.Kind
}

// KindOf returns the kind carried by err, or the empty kind when err is
// not a distribution error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Kind("")
}

var (
	ErrNotOperator = &Error{Code: "not_operator", Kind: KindAccessDenied}
	ErrNotCreator  = &Error{Code: "not_creator", Kind: KindAccessDenied}

	ErrAlreadyStarted = &Error{Code: "already_started", Kind: KindState}
	ErrWindowNotSet   = &Error{Code: "window_not_set", Kind: KindState}
	ErrNotStarted     = &Error{Code: "not_started", Kind: KindState}
	ErrEnded          = &Error{Code: "ended", Kind: KindState}
	ErrNotEnded       = &Error{Code: "not_ended", Kind: KindState}
	ErrNoCommitment   = &Error{Code: "no_commitment", Kind: KindState}

	ErrInvalidStartTime  = &Error{Code: "invalid_start_time", Kind: KindValidation}
	ErrStartTimeTooFar   = &Error{Code: "start_time_too_far", Kind: KindValidation}
	ErrInvalidCommitment = &Error{Code: "invalid_commitment", Kind: KindValidation}
	ErrNothingToClaim    = &Error{Code: "nothing_to_claim", Kind: KindValidation}
	ErrInvalidProof      = &Error{Code: "invalid_proof", Kind: KindValidation}
	ErrInvalidAmount     = &Error{Code: "invalid_amount", Kind: KindValidation}
	ErrInvalidOperator   = &Error{Code: "invalid_operator", Kind: KindValidation}

	ErrInsufficientPool   = &Error{Code: "insufficient_pool", Kind: KindResource}
	ErrArithmeticOverflow = &Error{Code: "arithmetic_overflow", Kind: KindResource}
	ErrAssetMismatch      = &Error{Code: "asset_mismatch", Kind: KindResource}

	// ErrNotFound is returned by stores for absent records.
	ErrNotFound = &Error{Code: "not_found", Kind: KindNotFound}
)
