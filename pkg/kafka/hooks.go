package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook observes message handling. OnError is called once per failed
// attempt; AfterHandle once per message with the final error.
type ConsumerHook interface {
	AfterHandle(ctx context.Context, topic string, km kafka.Message, attempts int, err error)
	OnError(ctx context.Context, topic string, km kafka.Message, attempt int, err error)
}

// NoopHook does nothing.
type NoopHook struct{}

func (NoopHook) AfterHandle(context.Context, string, kafka.Message, int, error) {}

func (NoopHook) OnError(context.Context, string, kafka.Message, int, error) {}

// HookFuncs adapts plain functions to ConsumerHook. Nil functions are no-ops.
type HookFuncs struct {
	After func(ctx context.Context, topic string, km kafka.Message, attempts int, err error)
	Err   func(ctx context.Context, topic string, km kafka.Message, attempt int, err error)
}

func (h HookFuncs) AfterHandle(ctx context.Context, topic string, km kafka.Message, attempts int, err error) {
	if h.After != nil {
		h.After(ctx, topic, km, attempts, err)
	}
}

func (h HookFuncs) OnError(ctx context.Context, topic string, km kafka.Message, attempt int, err error) {
	if h.Err != nil {
		h.Err(ctx, topic, km, attempt, err)
	}
}

// Header returns the value of header key, or "".
func Header(km kafka.Message, key string) string {
	for _, h := range km.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func safeCall(fn func()) {
	defer func() { _ = recover() }()
	fn()
}
