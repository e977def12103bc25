package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	t.Run("matches direct code", func(t *testing.T) {
		err := New(CodeUnknownBackpack, "backpack not found")
		assert.True(t, HasCode(err, CodeUnknownBackpack))
		assert.False(t, HasCode(err, CodePermissionDenied))
	})

	t.Run("matches through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("record purchase: %w", New(CodePermissionDenied, "not an agent"))
		assert.True(t, HasCode(err, CodePermissionDenied))
	})

	t.Run("matches inner code of nested coded errors", func(t *testing.T) {
		inner := New(CodeIndexOutOfRange, "index 4")
		err := Wrap(inner, CodeInternal, "load item")
		assert.True(t, HasCode(err, CodeInternal))
		assert.True(t, HasCode(err, CodeIndexOutOfRange))
		assert.Equal(t, CodeInternal, CodeOf(err))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		err := errors.New("boom")
		assert.False(t, HasCode(err, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(err))
	})
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeInternal, "nothing"))

	cause := errors.New("disk full")
	err := Wrap(cause, CodeInternal, "append item")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "internal: append item: disk full", err.Error())
}

func TestErrorsIsByCode(t *testing.T) {
	err := fmt.Errorf("top category: %w", New(CodeUnknownBackpack, "backpack 9 not found"))
	assert.ErrorIs(t, err, &Error{Code: CodeUnknownBackpack})
	assert.NotErrorIs(t, err, &Error{Code: CodePermissionDenied})
}
