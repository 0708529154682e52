package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigurationError_Is(t *testing.T) {
	err := NewConfigurationError("algorithm", "unknown optimizer %q", "simplex-2")

	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Equal(t, `configuration error: algorithm: unknown optimizer "simplex-2"`, err.Error())

	wrapped := fmt.Errorf("failed to create driver: %w", err)
	var cfgErr *ConfigurationError
	assert.True(t, errors.As(wrapped, &cfgErr))
	assert.Equal(t, "algorithm", cfgErr.Field)
}

func TestConfigurationError_NoField(t *testing.T) {
	err := &ConfigurationError{Reason: "empty"}
	assert.Equal(t, "configuration error: empty", err.Error())
}

func TestExecutorFailure_Unwrap(t *testing.T) {
	cause := context.DeadlineExceeded
	err := &ExecutorFailure{Term: "X0X1", Err: cause}

	assert.True(t, errors.Is(err, ErrExecutorFailure))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "X0X1")
}
