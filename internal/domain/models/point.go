package models

import "fmt"

// Point is a single observation of a named time series.
// Timestamp is unix seconds.
type Point struct {
	Series    string  `json:"series"`
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// EventID derives a stable identifier for the observation. Storage
// uses it for insert idempotency and publishers stamp it on messages
// so one observation can be followed across services.
func (p *Point) EventID() string {
	return fmt.Sprintf("%s-%d", p.Series, p.Timestamp)
}

// Message returns the wire form Publish puts on the points topic.
func (p *Point) Message() PointMessage {
	return PointMessage{Series: p.Series, T: p.Timestamp, V: p.Value}
}

// PointMessage is the Kafka wire form of a Point. It is written by the
// publisher and decoded by the consumer-side handler; both ends share
// this one schema.
type PointMessage struct {
	Series string  `json:"series"`
	T      int64   `json:"t"`
	V      float64 `json:"v"`
}

// Timestamps above the cutoff cannot be sane second counts (1e11 seconds
// sits past the year 5000), so they are read as milliseconds.
const msTimestampCutoff = int64(1e11)

// Point converts the wire form back to the domain form, folding
// millisecond timestamps down to seconds.
func (m PointMessage) Point() *Point {
	ts := m.T
	if ts > msTimestampCutoff {
		ts /= 1000
	}
	return &Point{Series: m.Series, Timestamp: ts, Value: m.V}
}
