package cli

import "errors"

// ErrUsage marks errors caused by how the tool was invoked: bad flags,
// missing inputs, contradictory config. main exits 2 for these so scripts
// can tell operator mistakes from generation failures.
var ErrUsage = errors.New("cli usage error")

// usageError carries a user-facing message and matches ErrUsage via
// errors.Is. It deliberately has no wrapped cause: the message is the whole
// story for an invocation mistake.
type usageError struct {
	msg string
}

func newUsageError(msg string) error {
	return usageError{msg: msg}
}

func (e usageError) Error() string { return e.msg }

func (e usageError) Is(target error) bool { return target == ErrUsage }
