package bounty

import (
	"errors"
	"fmt"
)

// The error taxonomy of the ledger. Every operation failure is one of these
// kinds; there is no local recovery or retry anywhere in the core, because
// the host's all-or-nothing call execution makes every abort equivalent to
// "this call never happened".
var (
	// ErrIllegalState marks a missing or corrupt root, a decode failure of
	// persisted state, or an index load/flush failure.
	ErrIllegalState = errors.New("bounty: illegal state")
	// ErrForbidden marks a failed authorization check. It is raised before
	// any state mutation.
	ErrForbidden = errors.New("bounty: forbidden")
	// ErrSerialization marks a parameter or payload encode/decode failure.
	ErrSerialization = errors.New("bounty: serialization")
	// ErrUnhandledOperation marks an unknown method selector.
	ErrUnhandledOperation = errors.New("bounty: unhandled operation")
)

func illegalStatef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrIllegalState, fmt.Sprintf(format, args...))
}

func forbiddenf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

func serializationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrSerialization, fmt.Sprintf(format, args...))
}
