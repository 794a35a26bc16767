// Package estimator defines the fit/transform contract shared by the
// preprocessing transformers. An estimator is configured at construction,
// validates its configuration and learns input shape in Fit, and only then
// accepts Transform calls.
package estimator

import (
	"SeriesPrep/pkg/timeseries"
)

// Params is a flat snapshot of an estimator's configuration. Keys are
// stable parameter names, values the configured settings. It reflects
// construction-time state only, so it is identical before and after Fit.
type Params map[string]any

// Transformer is a fitted, stateless-per-call series transform.
//
// Fit validates parameters and records whatever the transform needs about
// the training input (such as its width). Transform applies the transform
// to a frame, returning a new frame and leaving the input untouched. Calling
// Transform before a successful Fit returns a NotFittedError.
type Transformer interface {
	Fit(x *timeseries.Frame) error
	Transform(x *timeseries.Frame) (*timeseries.Frame, error)
	FitTransform(x *timeseries.Frame) (*timeseries.Frame, error)
	Params() Params
}
