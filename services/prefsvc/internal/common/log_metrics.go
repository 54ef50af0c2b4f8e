package common

import (
	"context"
	"strconv"

	"github.com/xinkaiwang/swmr/libs/xklib/kmetrics"
)

var (
	LogSizeMetric  = kmetrics.CreateKmetric(context.Background(), "log_size_bytes", "bytes of log output", []string{"level", "event"})
	LogErrorMetric = kmetrics.CreateKmetric(context.Background(), "log_error_count", "error and fatal log entries", []string{"level", "event", "logged"}).CountOnly()
)

// LogMetricsReporter feeds klogging output volume into kmetrics.
type LogMetricsReporter struct{}

func (LogMetricsReporter) ReportLogSizeBytes(ctx context.Context, size int, logLevel, eventType string) {
	LogSizeMetric.GetTimeSequence(ctx, logLevel, eventType).Add(int64(size))
}

func (LogMetricsReporter) ReportLogErrorCount(ctx context.Context, count int, logLevel, eventType string, isLogged bool) {
	LogErrorMetric.GetTimeSequence(ctx, logLevel, eventType, strconv.FormatBool(isLogged)).Add(int64(count))
}
