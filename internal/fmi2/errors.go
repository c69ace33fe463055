package fmi2

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalCall indicates an operation invoked in a mode where the FMI
	// state machine forbids it.
	ErrIllegalCall = errors.New("fmi2: illegal call for current mode")
	// ErrUnknownVariable indicates a name with no matching scalar variable.
	ErrUnknownVariable = errors.New("fmi2: unknown variable")
	// ErrTypeMismatch indicates a value whose type does not match the
	// variable's declared type.
	ErrTypeMismatch = errors.New("fmi2: value type mismatch")
	// ErrNotSettable indicates a set on a constant, or on a fixed parameter
	// after initialization ended.
	ErrNotSettable = errors.New("fmi2: variable not settable")
	// ErrDiscarded maps fmi2Discard: the model rejected the step or value but
	// remains usable with different arguments.
	ErrDiscarded = errors.New("fmi2: call discarded by model")
	// ErrFatal maps fmi2Fatal: the instance is unusable.
	ErrFatal = errors.New("fmi2: model reported fatal error")
)

// statusErr converts a backend status to a Go error. Warnings succeed; the
// instance logs them at the call site.
func statusErr(op string, st Status) error {
	switch st {
	case StatusOK, StatusWarning:
		return nil
	case StatusDiscard:
		return fmt.Errorf("%s: %w", op, ErrDiscarded)
	case StatusFatal:
		return fmt.Errorf("%s: %w", op, ErrFatal)
	default:
		return fmt.Errorf("%s: model returned status %s", op, st)
	}
}
