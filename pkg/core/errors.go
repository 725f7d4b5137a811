// Package core holds the error taxonomy shared by every subsystem of the
// transactional editing core (fs, journal, lineage, token, txn, task, facade).
package core

import (
	"errors"
	"fmt"
)

// Kind classifies an [*Error] the way a tool-facing report needs to: it is the
// machine-usable field a caller switches on, distinct from the human-readable
// Message.
type Kind string

// Error kinds. Grouped the way the spec's taxonomy groups them; not every
// Kind is a class of its own Go type, matching the spec's "kinds, not class
// names" instruction.
const (
	KindParamMissing       Kind = "PARAM_MISSING"
	KindParamInvalid       Kind = "PARAM_INVALID"
	KindParamOutOfRange    Kind = "PARAM_OUT_OF_RANGE"
	KindParamLineExceeds   Kind = "PARAM_LINE_EXCEEDS_FILE"
	KindParamConflicting   Kind = "PARAM_CONFLICTING"
	KindParamSymbolNotFound Kind = "PARAM_SYMBOL_NOT_FOUND"
	KindParamPatternNotFound Kind = "PARAM_PATTERN_NOT_FOUND"

	KindFileNotFound      Kind = "FILE_NOT_FOUND"
	KindFileTooLarge      Kind = "FILE_TOO_LARGE"
	KindDirNotFound       Kind = "FILE_DIRECTORY_NOT_FOUND"
	KindDirNotEmpty       Kind = "FILE_DIRECTORY_NOT_EMPTY"

	KindTokenCRCMismatch       Kind = "TOKEN_CRC_MISMATCH"
	KindTokenLineCountMismatch Kind = "TOKEN_LINE_COUNT_MISMATCH"
	KindTokenNotFound          Kind = "TOKEN_NOT_FOUND"
	KindTokenPathMismatch      Kind = "TOKEN_PATH_MISMATCH"

	KindIOAccessDenied Kind = "IO_ACCESS_DENIED"
	KindIOFileLocked   Kind = "IO_FILE_LOCKED"
	KindIORetriedOut   Kind = "IO_RETRIED_OUT"

	KindBinaryFile Kind = "BINARY_FILE"

	KindTransactionNone             Kind = "TRANSACTION_NONE_ACTIVE"
	KindTransactionCheckpointNotFound Kind = "TRANSACTION_CHECKPOINT_NOT_FOUND"

	KindSchemaUnknown Kind = "SCHEMA_VERSION_UNKNOWN"
)

// Error is the single exported error type every subsystem constructs,
// carrying a machine-usable Kind and an optional fix-it Suggestion alongside
// the usual Go error chain (Cause, via Unwrap).
type Error struct {
	Kind       Kind
	Message    string
	Suggestion string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an [*Error] with no suggestion or cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an [*Error] that chains a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithSuggestion returns a copy of e with Suggestion set.
func (e *Error) WithSuggestion(suggestion string) *Error {
	cp := *e
	cp.Suggestion = suggestion

	return &cp
}

// Sentinel values for conditions that do not need a dynamic Message, checked
// with errors.Is the way the teacher's errors.go sentinels are checked.
var (
	ErrTaskNotFound          = errors.New("task not found")
	ErrNoActiveTransaction   = errors.New("no active transaction")
	ErrCheckpointNotFound    = errors.New("checkpoint not found")
	ErrNothingToUndo         = errors.New("nothing to undo")
	ErrNothingToRedo         = errors.New("nothing to redo")
	ErrEntryNotFound         = errors.New("journal entry not found")
	ErrOutsideWorkingDir     = errors.New("path escapes working directory")
	ErrFileVanished          = errors.New("file vanished between check and open")
)

// Is reports whether err's Kind matches kind, walking the error chain like
// errors.Is.
func Is(err error, kind Kind) bool {
	var e *Error

	for {
		if errors.As(err, &e) {
			if e.Kind == kind {
				return true
			}

			err = e.Cause

			continue
		}

		return false
	}
}
