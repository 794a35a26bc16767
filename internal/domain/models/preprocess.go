package models

import "time"

// ColumnStats summarizes one output column after preprocessing.
type ColumnStats struct {
	Column int       `json:"column"`
	Count  int       `json:"count"`
	Mean   float64   `json:"mean"`
	Std    float64   `json:"std"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
	ACF    []float64 `json:"acf,omitempty"` // lags 1..max_lag
}

// PreprocessResult is the outcome of one preprocessing run over a series.
type PreprocessResult struct {
	Series    string         `json:"series"`
	RowsIn    int            `json:"rows_in"`
	RowsOut   int            `json:"rows_out"`
	Columns   int            `json:"columns"`
	Values    [][]float64    `json:"values"`
	Params    map[string]any `json:"params"`
	Stats     []ColumnStats  `json:"stats,omitempty"`
	Cached    bool           `json:"cached"`
	TookMs    int64          `json:"took_ms"`
	Timestamp time.Time      `json:"timestamp"`
}

// BatchResult is the outcome of one preprocessing run over several series.
type BatchResult struct {
	Results map[string]*PreprocessResult `json:"results"`
	Errors  map[string]string            `json:"errors,omitempty"`
}

// Job lifecycle states.
const (
	JobStatePending = "pending"
	JobStateRunning = "running"
	JobStateDone    = "done"
	JobStateFailed  = "failed"
)

// JobStatus is the cached record of an asynchronous job. Result is set for
// preprocessing jobs, Rows for backfills.
type JobStatus struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	State      string            `json:"state"`
	Error      string            `json:"error,omitempty"`
	Result     *PreprocessResult `json:"result,omitempty"`
	Rows       int               `json:"rows,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
	FinishedAt time.Time         `json:"finished_at,omitempty"`
}

// PreprocessJobPayload is the queue message for an async preprocessing run.
type PreprocessJobPayload struct {
	JobID   string               `json:"job_id"`
	Request RunPreprocessRequest `json:"request"`
}

// BackfillPayload is the queue message for a historical backfill run.
type BackfillPayload struct {
	JobID  string `json:"job_id"`
	Series string `json:"series"`
	From   int64  `json:"from"` // unix seconds
	To     int64  `json:"to"`   // unix seconds
}
