package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook observes and decorates message handling. BeforeHandle
// may replace the context, message and payload it is given; returning
// a non-nil error skips the handler and routes the message through
// error handling instead.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error)
	AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
	OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
}

// NoopHook satisfies ConsumerHook without doing anything.
type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	return ctx, km, data, nil
}

func (NoopHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {}

func (NoopHook) OnError(context.Context, string, kafka.Message, []byte, error) {}

// HookFuncs adapts plain functions to ConsumerHook. Nil entries act as
// no-ops.
type HookFuncs struct {
	Before func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error)
	After  func(context.Context, string, kafka.Message, []byte, error)
	Err    func(context.Context, string, kafka.Message, []byte, error)
}

func (h HookFuncs) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	if h.Before == nil {
		return ctx, km, data, nil
	}
	return h.Before(ctx, topic, km, data)
}

func (h HookFuncs) AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	if h.After != nil {
		h.After(ctx, topic, km, data, err)
	}
}

func (h HookFuncs) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	if h.Err != nil {
		h.Err(ctx, topic, km, data, err)
	}
}

// HookChain runs several hooks as one. BeforeHandle threads context,
// message and payload through the hooks in order; AfterHandle unwinds
// in reverse. Every callback runs behind a recover, so a broken hook
// cannot take a consumer worker down with it.
type HookChain struct {
	hooks []ConsumerHook
}

// NewHookChain composes hooks into a single ConsumerHook. Nil entries
// are skipped.
func NewHookChain(hooks ...ConsumerHook) *HookChain {
	chain := &HookChain{}
	for _, h := range hooks {
		if h != nil {
			chain.hooks = append(chain.hooks, h)
		}
	}
	return chain
}

func (c *HookChain) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	for _, h := range c.hooks {
		nctx, nkm, ndata, err := safeBefore(h, ctx, topic, km, data)
		if err != nil {
			c.OnError(ctx, topic, km, data, err)
			return ctx, km, data, err
		}
		ctx, km, data = nctx, nkm, ndata
	}
	return ctx, km, data, nil
}

func (c *HookChain) AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	for i := len(c.hooks) - 1; i >= 0; i-- {
		h := c.hooks[i]
		guard(func() { h.AfterHandle(ctx, topic, km, data, err) })
	}
}

func (c *HookChain) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	for _, h := range c.hooks {
		h := h
		guard(func() { h.OnError(ctx, topic, km, data, err) })
	}
}

func safeBefore(h ConsumerHook, ctx context.Context, topic string, km kafka.Message, data []byte) (nctx context.Context, nkm kafka.Message, ndata []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			nctx, nkm, ndata = ctx, km, data
			err = fmt.Errorf("hook panic: %v", r)
		}
	}()
	return h.BeforeHandle(ctx, topic, km, data)
}

func guard(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}

type ctxKey string

const (
	// CtxStartTime carries the handling start time set by WithStartTime.
	CtxStartTime ctxKey = "kafka_hook_start_time"
	// CtxTraceID carries the correlation id set by WithTraceID.
	CtxTraceID ctxKey = "kafka_hook_trace_id"
)

// traceHeader is the message header producers stamp and consumers read
// to correlate a message across services.
const traceHeader = "trace_id"

// WithStartTime stamps the context with the moment handling began.
func WithStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, CtxStartTime, t)
}

// WithTraceID attaches a correlation id to the context. Empty ids are
// ignored.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, CtxTraceID, traceID)
}

// ExtractTraceID reads the trace header from a message, returning ""
// when absent.
func ExtractTraceID(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == traceHeader && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	return ""
}
