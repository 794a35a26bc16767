package histdata

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"SeriesPrep/internal/domain/models"
	"SeriesPrep/pkg/config"
	xhttp "SeriesPrep/pkg/http"
)

// Client fetches historical observations from the backfill provider over HTTP.
type Client struct {
	baseURL string
	client  *xhttp.Client
	retries int
}

// New builds an HTTP client with timeout and base URL from config.
func New(cfg *config.Config) *Client {
	timeout := cfg.HistData.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.HistData.Retries
	if retries <= 0 {
		retries = 3
	}
	return &Client{
		baseURL: cfg.HistData.BaseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		retries: retries,
	}
}

type histPoint struct {
	T int64   `json:"t"` // unix seconds
	V float64 `json:"v"`
}

type rangeResponse struct {
	Series string      `json:"series"`
	Points []histPoint `json:"points"`
}

// FetchRange gets points for a series within [from, to], retrying transient
// errors with a simple backoff.
func (c *Client) FetchRange(ctx context.Context, series string, from, to time.Time) ([]*models.Point, error) {
	if c.client == nil || c.baseURL == "" {
		return nil, fmt.Errorf("histdata http client not initialized")
	}

	var resp rangeResponse
	var err error
	for i := 1; i <= c.retries; i++ {
		err = c.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method: http.MethodGet,
			URL:    fmt.Sprintf("%s/series/%s/range", c.baseURL, series),
			QueryParams: map[string][]string{
				"from": {strconv.FormatInt(from.Unix(), 10)},
				"to":   {strconv.FormatInt(to.Unix(), 10)},
			},
		}, &resp)
		if err == nil {
			break
		}
		// simple backoff
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch range %s: %w", series, err)
	}

	out := make([]*models.Point, 0, len(resp.Points))
	for _, p := range resp.Points {
		if p.T <= 0 {
			continue
		}
		out = append(out, &models.Point{Series: series, Timestamp: p.T, Value: p.V})
	}
	return out, nil
}
