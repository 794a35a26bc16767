// Package preprocess implements time series preprocessing transformers:
// resampling of an indexed frame onto a coarser grid and stationarization
// of level series into (log-)returns. Transformers follow the
// estimator.Transformer contract and can be composed with Chain.
package preprocess
