package finuraauth

import (
	"errors"
	"fmt"
)

// ErrInvalidSession matches every validation failure via errors.Is.
var ErrInvalidSession = errors.New("invalid session")

type Kind int

const (
	// KindUnavailable means the session authority could not be reached.
	KindUnavailable Kind = iota + 1
	// KindRejected means the authority answered and refused the token.
	KindRejected
	// KindMalformed means the authority's answer could not be understood.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindRejected:
		return "rejected"
	case KindMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ValidationError is the typed failure returned by Validator.Validate. It is
// scoped to one connection or one heartbeat tick.
type ValidationError struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *ValidationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("session validation %v (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("session validation %v: %v", e.Kind, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidSession }

// IsUnavailable reports whether err is a validation failure caused by the
// session authority being unreachable rather than the token being bad.
func IsUnavailable(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Kind == KindUnavailable
}
