// Package exception defines BatchError, the error type returned by readers, processors,
// writers, tasklets and repositories, together with a small registry of named sentinel
// errors so that failures can be classified by name in logs and step exit descriptions.
package exception

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

var (
	registryMu    sync.RWMutex
	errorRegistry = make(map[string]error)
)

// RegisterErrorType registers a sentinel error under name.
// It panics on an empty name or a nil prototype, since both are programming errors.
func RegisterErrorType(name string, prototype error) {
	if name == "" {
		panic("exception: error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("exception: cannot register nil prototype for %q", name))
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered reports whether name has been registered.
func IsErrorTypeRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// BatchError is an error raised while running a step.
type BatchError struct {
	Module      string // component that raised the error ("reader", "trip_enricher", "job_repository", ...)
	Message     string // short human readable description
	OriginalErr error  // wrapped cause, may be nil
	StackTrace  string // goroutine stack captured at construction

	isRetryable bool
	isSkippable bool
}

// NewBatchError creates a BatchError.
//
// Parameters:
//
//	module: the component raising the error.
//	message: a short description.
//	originalErr: the cause, may be nil.
//	isSkippable, isRetryable: classification flags consulted by IsFatal and IsTemporary.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		StackTrace:  captureStack(),
		isRetryable: isRetryable,
		isSkippable: isSkippable,
	}
}

// NewBatchErrorf is the formatting variant of NewBatchError.
// Trailing arguments are inspected from the end: an error becomes the cause, then up to two
// bools are taken as isRetryable and isSkippable (in that order from the end). The rest feed fmt.Sprintf.
//
//	NewBatchErrorf("writer", "insert into %s failed", table, err)
//	NewBatchErrorf("reader", "row %d unreadable", n, true, false, err) // skippable, not retryable
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	args := a
	var cause error
	if n := len(args); n > 0 {
		if err, ok := args[n-1].(error); ok {
			cause = err
			args = args[:n-1]
		}
	}
	flags := make([]bool, 0, 2)
	for len(flags) < 2 && len(args) > 0 {
		b, ok := args[len(args)-1].(bool)
		if !ok {
			break
		}
		flags = append(flags, b)
		args = args[:len(args)-1]
	}
	var retryable, skippable bool
	if len(flags) > 0 {
		retryable = flags[0]
	}
	if len(flags) > 1 {
		skippable = flags[1]
	}

	return NewBatchError(module, fmt.Sprintf(format, args...), cause, skippable, retryable)
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// Error implements error as "[module] message: cause".
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the cause.
func (e *BatchError) Unwrap() error { return e.OriginalErr }

// IsRetryable reports whether the operation may succeed if repeated.
func (e *BatchError) IsRetryable() bool { return e.isRetryable }

// IsSkippable reports whether the offending item may be dropped without failing the step.
func (e *BatchError) IsSkippable() bool { return e.isSkippable }

// IsBatchError reports whether err, or anything it wraps, is a *BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

// IsTemporary reports whether err looks transient. A BatchError's retryable flag wins;
// otherwise connection-level failures are treated as temporary.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsRetryable()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "database is locked")
}

// IsFatal reports whether err can neither be retried nor skipped.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var be *BatchError
	if errors.As(err, &be) {
		return !be.IsRetryable() && !be.IsSkippable()
	}
	return !IsTemporary(err)
}

// IsErrorOfType matches err against a registered sentinel name, a message substring,
// or a Go type name such as "*exception.BatchError", walking the wrap chain.
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil {
		return false
	}

	registryMu.RLock()
	target, registered := errorRegistry[errorTypeName]
	registryMu.RUnlock()
	if registered && errors.Is(err, target) {
		return true
	}

	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if strings.Contains(cur.Error(), errorTypeName) {
			return true
		}
		if t := reflect.TypeOf(cur); t != nil {
			if t.String() == errorTypeName || (t.Kind() == reflect.Ptr && t.Elem().String() == errorTypeName) {
				return true
			}
		}
	}
	return false
}

// ExtractErrorMessage returns the Message of a BatchError, or err.Error() for anything else.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}

func init() {
	RegisterErrorType("io.EOF", io.EOF)
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
	RegisterErrorType("sql.ErrNoRows", sql.ErrNoRows)
	RegisterErrorType("sql.ErrTxDone", sql.ErrTxDone)
}
