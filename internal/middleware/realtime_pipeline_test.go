package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"SeriesPrep/internal/domain/models"
)

type fakeProc struct {
	mu    sync.Mutex
	got   []*models.Point
	fail  int // fail this many calls before succeeding
	calls int
}

func (f *fakeProc) Process(_ context.Context, p *models.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fail {
		return errors.New("downstream down")
	}
	f.got = append(f.got, p)
	return nil
}

func (f *fakeProc) delivered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

type fakeMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{errors: make(map[string]int)}
}

func (m *fakeMetrics) RecordMessageSent(string, string) {}
func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}
func (m *fakeMetrics) RecordLastValue(string, float64) {}

func (m *fakeMetrics) RecordLatency(string, float64) {}

func (m *fakeMetrics) RecordRowsTransformed(string, int) {}

func (m *fakeMetrics) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func pt(series string, ts int64, v float64) *models.Point {
	return &models.Point{Series: series, Timestamp: ts, Value: v}
}

func TestProcessForwardsValidPoint(t *testing.T) {
	proc := &fakeProc{}
	p := NewRealtimePipeline(proc, newFakeMetrics())

	if err := p.Process(context.Background(), pt("cpu", 1700000000, 0.5)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if proc.delivered() != 1 {
		t.Fatalf("delivered %d points, want 1", proc.delivered())
	}
}

func TestProcessRejectsInvalidPoints(t *testing.T) {
	proc := &fakeProc{}
	m := newFakeMetrics()
	p := NewRealtimePipeline(proc, m)

	bad := []*models.Point{
		nil,
		pt("", 1700000000, 1),
		pt("cpu", 0, 1),
	}
	for i, b := range bad {
		if err := p.Process(context.Background(), b); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
	if proc.delivered() != 0 {
		t.Fatal("invalid points must not reach the processor")
	}
	if m.count("pipeline_validate") != len(bad) {
		t.Fatalf("got %d validate errors, want %d", m.count("pipeline_validate"), len(bad))
	}
}

func TestProcessThrottlesPerSeries(t *testing.T) {
	proc := &fakeProc{}
	m := newFakeMetrics()
	p := NewRealtimePipeline(proc, m, WithMaxRPS(1))

	if err := p.Process(context.Background(), pt("cpu", 1700000000, 1)); err != nil {
		t.Fatalf("first point: %v", err)
	}
	// same series immediately again: dropped without error
	if err := p.Process(context.Background(), pt("cpu", 1700000001, 2)); err != nil {
		t.Fatalf("throttled point should not error: %v", err)
	}
	// a different series is unaffected
	if err := p.Process(context.Background(), pt("mem", 1700000001, 2)); err != nil {
		t.Fatalf("other series: %v", err)
	}

	if proc.delivered() != 2 {
		t.Fatalf("delivered %d points, want 2", proc.delivered())
	}
	if m.count("pipeline_throttle") != 1 {
		t.Fatalf("got %d throttle drops, want 1", m.count("pipeline_throttle"))
	}
}

func TestTransformRunsBeforeThrottle(t *testing.T) {
	proc := &fakeProc{}
	p := NewRealtimePipeline(proc, newFakeMetrics(), WithTransform(func(in *models.Point) *models.Point {
		out := *in
		out.Series = "prefix." + in.Series
		return &out
	}))

	if err := p.Process(context.Background(), pt("cpu", 1700000000, 1)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	proc.mu.Lock()
	series := proc.got[0].Series
	proc.mu.Unlock()
	if series != "prefix.cpu" {
		t.Fatalf("got series %q, want prefix.cpu", series)
	}
}

func TestDownstreamFailureBuffersAndFlushes(t *testing.T) {
	proc := &fakeProc{fail: 1}
	m := newFakeMetrics()
	p := NewRealtimePipeline(proc, m, WithBufferSize(4))

	ctx := context.Background()
	if err := p.Process(ctx, pt("cpu", 1700000000, 1)); err == nil {
		t.Fatal("expected downstream error")
	}
	if m.count("pipeline_process") != 1 {
		t.Fatal("downstream failure should be counted")
	}

	p.Start(ctx)
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for proc.delivered() == 0 {
		select {
		case <-deadline:
			t.Fatal("buffered point never flushed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
