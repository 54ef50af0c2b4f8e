package kmetrics

import (
	"context"
	"time"

	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
	"github.com/xinkaiwang/swmr/libs/xklib/klogging"
)

var (
	OpsLatencyMetric = CreateKmetric(context.Background(), "op_latency_ms", "latency of instrumented operations", []string{"method", "status", "error"})
)

// FuncTypeError is the decorated function, errors are returned (panics are converted).
type FuncTypeError func(ctx context.Context) error

func invokeFuncError(ctx context.Context, ef FuncTypeError) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case *kerror.Kerror:
				err = v
			case error:
				err = kerror.Wrap(v, "InternalServerError", v.Error(), true)
			default:
				klogging.Fatal(ctx).WithPanic(v).Log("InvalidPanic", "invalid panic with non-error value")
			}
		}
	}()
	return ef(ctx)
}

// InstrumentSummaryRunError runs ef and records its latency in op_latency_ms{method,status,error}.
func InstrumentSummaryRunError(ctx context.Context, method string, ef FuncTypeError) error {
	start := time.Now()
	err := invokeFuncError(ctx, ef)
	elapsedMs := time.Since(start).Milliseconds()

	status, errType := "OK", ""
	if err != nil {
		status = "ERROR"
		if ke := kerror.As(err); ke != nil {
			errType = ke.Type
		} else {
			errType = "error"
		}
	}
	OpsLatencyMetric.GetTimeSequence(ctx, method, status, errType).Add(elapsedMs)
	return err
}
