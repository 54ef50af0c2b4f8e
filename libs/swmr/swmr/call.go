package swmr

import (
	"context"
	"time"

	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
	"github.com/xinkaiwang/swmr/libs/xklib/krunloop"
)

type response[T any] struct {
	value T
	err   error
}

func newResponseChan[T any]() chan response[T] {
	return make(chan response[T], 1)
}

// call posts event and waits for its reply on ch, bounded by timeout and ctx.
func call[R krunloop.CriticalResource, T any](ctx context.Context, timeout time.Duration, loop *krunloop.RunLoop[R], event krunloop.IEvent[R], ch chan response[T]) (T, error) {
	var zero T
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := loop.PostEventWait(ctx, event); err != nil {
		return zero, err
	}
	select {
	case resp := <-ch:
		return resp.value, resp.err
	case <-ctx.Done():
		return zero, kerror.Wrap(ctx.Err(), "CallTimeout", "no reply before deadline", false).
			WithErrorCode(kerror.EC_TIMEOUT).With("event", event.GetName()).With("timeoutMs", timeout.Milliseconds())
	}
}
