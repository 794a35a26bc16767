package estimator

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvalidParameterError(t *testing.T) {
	err := &InvalidParameterError{Param: "sampling type", Value: "mondays"}

	assert.Equal(t, "the sampling type mondays is not supported", err.Error())
	assert.True(t, IsInvalidParameter(err))
	assert.False(t, IsNotFitted(err))
}

func TestNotFittedError(t *testing.T) {
	err := &NotFittedError{Estimator: "Resampler"}

	assert.Equal(t, "Resampler is not fitted, call Fit before Transform", err.Error())
	assert.True(t, IsNotFitted(err))
	assert.False(t, IsInvalidParameter(err))
}

func TestErrorPredicatesUnwrap(t *testing.T) {
	wrapped := fmt.Errorf("step resample: %w", &InvalidParameterError{Param: "sampling type", Value: "x"})
	assert.True(t, IsInvalidParameter(wrapped))

	assert.False(t, IsInvalidParameter(errors.New("plain")))
	assert.False(t, IsNotFitted(nil))
}
