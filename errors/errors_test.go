package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.class.String())
	}
}

func TestWrapFormat(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, "Engine", "StartProcess", "consume inputs")
	require.Error(t, err)
	assert.Equal(t, "Engine.StartProcess: consume inputs failed: boom", err.Error())
	assert.True(t, stderrors.Is(err, base))

	assert.NoError(t, Wrap(nil, "Engine", "StartProcess", "consume inputs"))
}

func TestClassifiedWrappers(t *testing.T) {
	base := stderrors.New("boom")

	transient := WrapTransient(base, "Engine", "Tick", "node update")
	invalid := WrapInvalid(base, "Registry", "RegisterRecipe", "validation")
	fatal := WrapFatal(base, "Config", "Load", "parse")

	assert.True(t, IsTransient(transient))
	assert.False(t, IsTransient(invalid))
	assert.True(t, IsInvalid(invalid))
	assert.True(t, IsFatal(fatal))

	// Classification survives further wrapping with %w.
	wrapped := fmt.Errorf("outer: %w", invalid)
	assert.True(t, IsInvalid(wrapped))
	assert.Equal(t, ErrorInvalid, Classify(wrapped))

	var ce *ClassifiedError
	require.True(t, stderrors.As(transient, &ce))
	assert.Equal(t, "Engine", ce.Component)
	assert.Equal(t, "Tick", ce.Operation)
	assert.True(t, stderrors.Is(transient, base))
}

func TestSentinelClassification(t *testing.T) {
	assert.True(t, IsInvalid(ErrRecipeNotFound))
	assert.True(t, IsInvalid(ErrConverterNotFound))
	assert.True(t, IsInvalid(ErrInsufficientResources))

	assert.True(t, IsTransient(ErrConsumeFailed))
	assert.True(t, IsTransient(ErrTransferFailed))
	assert.True(t, IsTransient(ErrNodeUpdateFailed))
	assert.True(t, IsTransient(ErrConverterAtCapacity))
	assert.True(t, IsTransient(context.DeadlineExceeded))

	assert.True(t, IsFatal(ErrInvalidConfig))
	assert.True(t, IsFatal(ErrMissingConfig))
}

func TestClassifyDefaultsToTransient(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(stderrors.New("mystery")))
	assert.Equal(t, ErrorFatal, Classify(ErrMissingConfig))
	assert.Equal(t, ErrorInvalid, Classify(ErrChainNotFound))
}

func TestNilSafety(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsInvalid(nil))
	assert.False(t, IsFatal(nil))
	assert.NoError(t, WrapTransient(nil, "a", "b", "c"))
	assert.NoError(t, WrapInvalid(nil, "a", "b", "c"))
	assert.NoError(t, WrapFatal(nil, "a", "b", "c"))
}
