package crdterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := New(CodeUnknownID, "parent not integrated").With("container", "doc")
	err.ID = "3@7"
	assert.Equal(t, "UNKNOWN_ID: parent not integrated (id=3@7) container=doc", err.Error())
}

func TestClassification(t *testing.T) {
	tests := []struct {
		code      Code
		contract  bool
		invariant bool
		boundary  bool
	}{
		{CodeOutOfRange, true, false, false},
		{CodeUnknownID, true, false, false},
		{CodeDuplicateID, true, false, false},
		{CodeUnknownEndVersion, true, false, false},
		{CodeInvalidOp, true, false, false},
		{CodeInvariantViolation, false, true, false},
		{CodeDepthExceeded, false, false, true},
		{CodeWrongKind, false, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", New(tt.code, "x"))
			assert.Equal(t, tt.contract, IsContractViolation(err))
			assert.Equal(t, tt.invariant, IsInvariantViolation(err))
			assert.Equal(t, tt.boundary, IsBoundaryViolation(err))
		})
	}
}

func TestPoisonedKeepsCause(t *testing.T) {
	cause := New(CodeInvariantViolation, "delta overflow")
	err := Poisoned("doc", cause)

	assert.True(t, Is(err, CodeContainerPoisoned))
	assert.True(t, Is(err, CodeInvariantViolation))
	assert.True(t, IsInvariantViolation(err))
	assert.False(t, IsContractViolation(err))

	var target *Error
	assert.True(t, errors.As(errors.Unwrap(err), &target))
	assert.Equal(t, CodeInvariantViolation, target.Code)
}

func TestIsNil(t *testing.T) {
	assert.False(t, Is(nil, CodeUnknownID))
	assert.False(t, IsContractViolation(errors.New("plain")))
}
