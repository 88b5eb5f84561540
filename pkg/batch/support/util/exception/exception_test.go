package exception_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"

	"github.com/stretchr/testify/assert"
)

type columnError struct {
	Column string
}

func (e *columnError) Error() string {
	return fmt.Sprintf("column %s missing", e.Column)
}

func TestNewBatchError(t *testing.T) {
	cause := errors.New("db connection refused")
	be := exception.NewBatchError("db", "failed to connect", cause, false, true)

	assert.Equal(t, "db", be.Module)
	assert.Equal(t, "failed to connect", be.Message)
	assert.Equal(t, cause, be.Unwrap())
	assert.True(t, be.IsRetryable())
	assert.False(t, be.IsSkippable())
	assert.Contains(t, be.Error(), "[db] failed to connect: db connection refused")
	assert.NotEmpty(t, be.StackTrace)
}

func TestNewBatchErrorf(t *testing.T) {
	be := exception.NewBatchErrorf("reader", "row %d not found", 10)
	assert.False(t, be.IsRetryable())
	assert.False(t, be.IsSkippable())
	assert.Nil(t, be.Unwrap())
	assert.Equal(t, "[reader] row 10 not found", be.Error())

	be = exception.NewBatchErrorf("net", "timeout occurred", true)
	assert.True(t, be.IsRetryable())
	assert.False(t, be.IsSkippable())

	// (..., isSkippable, isRetryable)
	be = exception.NewBatchErrorf("item", "bad row %d", 5, true, false)
	assert.False(t, be.IsRetryable())
	assert.True(t, be.IsSkippable())
	assert.Equal(t, "bad row 5", be.Message)

	cause := errors.New("data format error")
	be = exception.NewBatchErrorf("proc", "format error in %s", "trip_distance", true, true, cause)
	assert.True(t, be.IsRetryable())
	assert.True(t, be.IsSkippable())
	assert.Equal(t, cause, be.Unwrap())
	assert.Equal(t, "format error in trip_distance", be.Message)
}

func TestIsBatchError_Wrapped(t *testing.T) {
	be := exception.NewBatchError("writer", "insert failed", nil, false, false)
	wrapped := fmt.Errorf("step failed: %w", be)

	assert.True(t, exception.IsBatchError(be))
	assert.True(t, exception.IsBatchError(wrapped))
	assert.False(t, exception.IsBatchError(errors.New("plain")))
	assert.False(t, exception.IsBatchError(nil))
}

func TestIsTemporaryAndIsFatal(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		temporary bool
		fatal     bool
	}{
		{"nil", nil, false, false},
		{"retryable batch error", exception.NewBatchError("db", "x", nil, false, true), true, false},
		{"skippable batch error", exception.NewBatchError("db", "x", nil, true, false), false, false},
		{"fatal batch error", exception.NewBatchError("db", "x", nil, false, false), false, true},
		{"deadline", context.DeadlineExceeded, true, false},
		{"sqlite busy", errors.New("database is locked"), true, false},
		{"plain", errors.New("syntax error"), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.temporary, exception.IsTemporary(tt.err))
			assert.Equal(t, tt.fatal, exception.IsFatal(tt.err))
		})
	}
}

func TestIsErrorOfType(t *testing.T) {
	noRows := exception.NewBatchError("repo", "lookup", sql.ErrNoRows, false, false)
	assert.True(t, exception.IsErrorOfType(noRows, "sql.ErrNoRows"))
	assert.True(t, exception.IsErrorOfType(fmt.Errorf("read: %w", io.EOF), "io.EOF"))

	colErr := exception.NewBatchError("enricher", "schema", &columnError{Column: "trip_distance"}, false, false)
	assert.True(t, exception.IsErrorOfType(colErr, "exception_test.columnError"))
	assert.True(t, exception.IsErrorOfType(colErr, "*exception.BatchError"))
	assert.True(t, exception.IsErrorOfType(colErr, "trip_distance missing"))
	assert.False(t, exception.IsErrorOfType(colErr, "sql.ErrNoRows"))
	assert.False(t, exception.IsErrorOfType(nil, "io.EOF"))
}

func TestRegisterErrorType(t *testing.T) {
	sentinel := errors.New("factor missing")
	exception.RegisterErrorType("test.FactorMissing", sentinel)

	assert.True(t, exception.IsErrorTypeRegistered("test.FactorMissing"))
	assert.True(t, exception.IsErrorOfType(fmt.Errorf("lookup: %w", sentinel), "test.FactorMissing"))
	assert.Panics(t, func() { exception.RegisterErrorType("", sentinel) })
	assert.Panics(t, func() { exception.RegisterErrorType("x", nil) })
}

func TestExtractErrorMessage(t *testing.T) {
	assert.Equal(t, "", exception.ExtractErrorMessage(nil))
	assert.Equal(t, "clean", exception.ExtractErrorMessage(exception.NewBatchError("m", "clean", errors.New("noisy"), false, false)))
	assert.Equal(t, "plain", exception.ExtractErrorMessage(errors.New("plain")))
}
