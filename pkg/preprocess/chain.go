package preprocess

import (
	"fmt"

	"SeriesPrep/pkg/estimator"
	"SeriesPrep/pkg/timeseries"
)

// Step is a named transformer inside a Chain. The name namespaces the step's
// parameters and errors.
type Step struct {
	Name string
	T    estimator.Transformer
}

// Chain runs transformers in sequence, feeding each step the previous step's
// output. It satisfies the estimator contract itself, so chains nest.
type Chain struct {
	steps  []Step
	fitted bool
}

var _ estimator.Transformer = (*Chain)(nil)

// NewChain builds a chain over steps. An empty chain is valid and passes
// frames through untouched.
func NewChain(steps ...Step) *Chain {
	return &Chain{steps: steps}
}

// Fit fits every step in order. Intermediate steps are applied to produce
// the input the next step is fitted on. Step errors are wrapped with the
// step name and keep their type for errors.As.
func (c *Chain) Fit(x *timeseries.Frame) error {
	cur := x
	for i, s := range c.steps {
		if err := s.T.Fit(cur); err != nil {
			return fmt.Errorf("step %s: %w", s.Name, err)
		}
		if i == len(c.steps)-1 {
			break
		}
		next, err := s.T.Transform(cur)
		if err != nil {
			return fmt.Errorf("step %s: %w", s.Name, err)
		}
		cur = next
	}
	c.fitted = true
	return nil
}

// Transform applies every step in order to x.
func (c *Chain) Transform(x *timeseries.Frame) (*timeseries.Frame, error) {
	if !c.fitted {
		return nil, &estimator.NotFittedError{Estimator: "Chain"}
	}
	cur := x
	for _, s := range c.steps {
		next, err := s.T.Transform(cur)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", s.Name, err)
		}
		cur = next
	}
	if cur == x {
		return x.Clone(), nil
	}
	return cur, nil
}

// FitTransform fits the chain on x and transforms it.
func (c *Chain) FitTransform(x *timeseries.Frame) (*timeseries.Frame, error) {
	if err := c.Fit(x); err != nil {
		return nil, err
	}
	return c.Transform(x)
}

// Params merges every step's parameters under "<step>__<param>" keys.
func (c *Chain) Params() estimator.Params {
	out := estimator.Params{}
	for _, s := range c.steps {
		for k, v := range s.T.Params() {
			out[s.Name+"__"+k] = v
		}
	}
	return out
}
