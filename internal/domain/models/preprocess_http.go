package models

// Requests for preprocessing HTTP endpoints. Defined in domain for consistency and reuse.
//
// The "duration", "timeofday" and "flextime" validators are registered by
// the API handler.

// ResampleOptions selects and configures the resampling step.
type ResampleOptions struct {
	SamplingType   string   `json:"sampling_type" default:"periodic" validate:"omitempty,oneof=periodic fixed"`
	SamplingPeriod string   `json:"sampling_period" default:"2h" validate:"omitempty,duration"`
	SamplingTimes  []string `json:"sampling_times" validate:"omitempty,dive,timeofday"`
	RemoveWeekends *bool    `json:"remove_weekends"`
}

// StationarizeOptions selects and configures the stationarization step.
type StationarizeOptions struct {
	StationarizationType string `json:"stationarization_type" default:"return" validate:"omitempty,oneof=return log-return"`
}

// RunPreprocessRequest drives a full preprocessing run over one series.
// A nil step is skipped; an empty object takes the step's defaults.
type RunPreprocessRequest struct {
	Series       string               `json:"series" validate:"required"`
	From         int64                `json:"from" validate:"omitempty,gte=0"`
	To           int64                `json:"to" validate:"omitempty,gte=0"`
	Rows         int                  `json:"rows" default:"600" validate:"gte=0,lte=100000"`
	Resample     *ResampleOptions     `json:"resample"`
	Stationarize *StationarizeOptions `json:"stationarize"`
	Diagnostics  bool                 `json:"diagnostics"`
	MaxLag       int                  `json:"max_lag" default:"10" validate:"gte=0,lte=200"`
}

// BatchPreprocessRequest runs the same preprocessing over several series.
type BatchPreprocessRequest struct {
	Series       []string             `json:"series" validate:"required,min=1,max=50,dive,required"`
	From         int64                `json:"from" validate:"omitempty,gte=0"`
	To           int64                `json:"to" validate:"omitempty,gte=0"`
	Rows         int                  `json:"rows" default:"600" validate:"gte=0,lte=100000"`
	Resample     *ResampleOptions     `json:"resample"`
	Stationarize *StationarizeOptions `json:"stationarize"`
	Diagnostics  bool                 `json:"diagnostics"`
	MaxLag       int                  `json:"max_lag" default:"10" validate:"gte=0,lte=200"`
}

// ResampleRequest runs the resampling step alone.
type ResampleRequest struct {
	Series string `json:"series" validate:"required"`
	From   int64  `json:"from" validate:"omitempty,gte=0"`
	To     int64  `json:"to" validate:"omitempty,gte=0"`
	Rows   int    `json:"rows" default:"600" validate:"gte=0,lte=100000"`
	ResampleOptions
}

// StationarizeRequest runs the stationarization step alone.
type StationarizeRequest struct {
	Series string `json:"series" validate:"required"`
	From   int64  `json:"from" validate:"omitempty,gte=0"`
	To     int64  `json:"to" validate:"omitempty,gte=0"`
	Rows   int    `json:"rows" default:"600" validate:"gte=0,lte=100000"`
	StationarizeOptions
}

// PointsRequest pages raw observations of one series. The series name
// comes from the URL path. From and To take RFC3339 or unix seconds; an
// unset end leaves that side of the range open.
type PointsRequest struct {
	From  string `query:"from" json:"from" validate:"omitempty,flextime"`
	To    string `query:"to" json:"to" validate:"omitempty,flextime"`
	Limit int    `query:"limit" json:"limit" default:"600" validate:"gte=1,lte=10000"`
}

// BackfillRequest loads historical points for one series into storage.
type BackfillRequest struct {
	Series string `json:"series" validate:"required"`
	From   int64  `json:"from" validate:"required,gt=0"`
	To     int64  `json:"to" validate:"required,gtfield=From"`
}
