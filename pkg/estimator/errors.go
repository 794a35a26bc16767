package estimator

import (
	"errors"
	"fmt"
)

// InvalidParameterError reports a parameter value an estimator does not
// support. Fit returns it before touching any data.
type InvalidParameterError struct {
	Param string
	Value any
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("the %s %v is not supported", e.Param, e.Value)
}

// NotFittedError reports a Transform call on an estimator that has not been
// fitted yet.
type NotFittedError struct {
	Estimator string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("%s is not fitted, call Fit before Transform", e.Estimator)
}

// IsInvalidParameter reports whether err wraps an InvalidParameterError.
func IsInvalidParameter(err error) bool {
	var target *InvalidParameterError
	return errors.As(err, &target)
}

// IsNotFitted reports whether err wraps a NotFittedError.
func IsNotFitted(err error) bool {
	var target *NotFittedError
	return errors.As(err, &target)
}
