package actionqueue

import (
	stderrors "errors"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

const (
	ErrCodeAlreadySet     = "ACTION_ALREADY_SET"
	ErrCodeAlreadyStarted = "ACTION_ALREADY_STARTED"
	ErrCodeNilAction      = "ACTION_NIL"
	ErrCodeNilCallback    = "ACTION_NIL_CALLBACK"
	ErrCodeExecutionFault = "ACTION_EXECUTION_FAULT"
	ErrCodeAborted        = "ACTION_ABORTED"
	ErrCodeDisposed       = "QUEUE_DISPOSED"
	ErrCodeQueueExists    = "QUEUE_EXISTS"
	ErrCodeConfigInvalid  = "CONFIG_INVALID"
	ErrCodeRejected       = "ACTION_REJECTED"
)

var (
	// ErrAlreadySet is returned when a write-once member of an action is configured twice.
	ErrAlreadySet = apperrors.New("value can only be set once", apperrors.CategoryBadInput).WithTextCode(ErrCodeAlreadySet)
	// ErrAlreadyStarted is returned when an action is mutated or executed after execution began.
	ErrAlreadyStarted = apperrors.New("action execution already started", apperrors.CategoryConflict).WithTextCode(ErrCodeAlreadyStarted)
	ErrNilAction = apperrors.New("nil action", apperrors.CategoryValidation).WithTextCode(ErrCodeNilAction)
	ErrNilCallback = apperrors.New("nil callback", apperrors.CategoryValidation).WithTextCode(ErrCodeNilCallback)
	// ErrExecutionFault wraps an error or panic raised by a guard, step or finisher.
	ErrExecutionFault = apperrors.New("action execution fault", apperrors.CategoryHandler).WithTextCode(ErrCodeExecutionFault)
	// ErrAborted marks work canceled by a forced disposal.
	ErrAborted = apperrors.New("action aborted", apperrors.CategoryExternal).WithTextCode(ErrCodeAborted)
	// ErrDisposed is returned by operations on a disposed queue or manager.
	ErrDisposed = apperrors.New("resource has already been disposed", apperrors.CategoryConflict).WithTextCode(ErrCodeDisposed)
	ErrQueueExists = apperrors.New("queue already registered for key", apperrors.CategoryConflict).WithTextCode(ErrCodeQueueExists)
	// ErrRejected reports an admission rejection where an error value is needed, as in retries.
	ErrRejected = apperrors.New("action rejected by queue", apperrors.CategoryConflict).WithTextCode(ErrCodeRejected)
	ErrConfigInvalid = apperrors.New("invalid configuration", apperrors.CategoryValidation).WithTextCode(ErrCodeConfigInvalid)
)

// NewError clones base, overriding the message and attaching source and metadata.
func NewError(base *apperrors.Error, message string, source error, metadata map[string]any) *apperrors.Error {
	if base == nil {
		base = ErrExecutionFault
	}
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// ErrorCode returns the text code of the first go-errors error in the chain.
func ErrorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

func hasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	if ge, ok := err.(*apperrors.Error); ok {
		if ge.TextCode == code {
			return true
		}
		return hasCode(ge.Source, code)
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if hasCode(e, code) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return hasCode(u.Unwrap(), code)
	}
	return false
}

func IsAlreadySet(err error) bool { return hasCode(err, ErrCodeAlreadySet) }
func IsAlreadyStarted(err error) bool { return hasCode(err, ErrCodeAlreadyStarted) }
func IsDisposed(err error) bool { return hasCode(err, ErrCodeDisposed) }
func IsExecutionFault(err error) bool { return hasCode(err, ErrCodeExecutionFault) }
func IsAborted(err error) bool { return hasCode(err, ErrCodeAborted) }
func IsConfigInvalid(err error) bool { return hasCode(err, ErrCodeConfigInvalid) }
func IsRejected(err error) bool { return hasCode(err, ErrCodeRejected) }
func IsQueueExists(err error) bool { return hasCode(err, ErrCodeQueueExists) }
func IsNilActionError(err error) bool { return hasCode(err, ErrCodeNilAction) }
func IsNilCallbackError(err error) bool { return hasCode(err, ErrCodeNilCallback) }

func newConfigError(message string) error {
	return NewError(ErrConfigInvalid, message, nil, nil)
}
