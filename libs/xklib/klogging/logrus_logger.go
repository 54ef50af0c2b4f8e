package klogging

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
)

// LogrusLogger implements Logger on top of logrus. The level threshold is evaluated here,
// the underlying logrus.Logger accepts everything.
type LogrusLogger struct {
	ctx             context.Context
	RusLogger       *logrus.Logger
	logLevel        Level
	logFormat       LogFormat
	metricsReporter LoggerMetricsReporter
}

// TimestampFormat is sortable, millisecond resolution, with timezone.
const TimestampFormat = "2006-01-02T15:04:05.999Z07:00"

type LoggerMetricsReporter interface {
	ReportLogSizeBytes(ctx context.Context, size int, logLevel, eventType string)
	ReportLogErrorCount(ctx context.Context, count int, logLevel, eventType string, isLogged bool)
}

func NewLogrusLogger(ctx context.Context) *LogrusLogger {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		TimestampFormat: TimestampFormat,
		FullTimestamp:   true,
	})
	log.SetLevel(logrus.TraceLevel)
	return &LogrusLogger{
		ctx:       ctx,
		RusLogger: log,
		logLevel:  InfoLevel,
		logFormat: TextFormat,
	}
}

func (logger *LogrusLogger) WithMetricsReporter(reporter LoggerMetricsReporter) *LogrusLogger {
	logger.metricsReporter = reporter
	return logger
}

func (logger *LogrusLogger) WithOutput(w io.Writer) *LogrusLogger {
	logger.RusLogger.SetOutput(w)
	return logger
}

type LogFormat uint32

const (
	TextFormat LogFormat = iota + 1
	JsonFormat
	SimpleFormat
)

func (e LogFormat) String() string {
	switch e {
	case TextFormat:
		return "Text"
	case JsonFormat:
		return "Json"
	case SimpleFormat:
		return "Simple"
	default:
		return fmt.Sprintf("%d", int(e))
	}
}

func parseLogFormat(str string) LogFormat {
	switch {
	case strings.EqualFold("text", str):
		return TextFormat
	case strings.EqualFold("json", str):
		return JsonFormat
	case strings.EqualFold("simple", str):
		return SimpleFormat
	}
	panic(kerror.Create("UnknownLogFormat", "parse log format failed").WithErrorCode(kerror.EC_INVALID_PARAMETER).With("str", str))
}

// SetConfig applies level (fatal/error/warn/info/debug/verbose) and format (text/json/simple).
// Invalid input is logged and the previous setting is kept.
func (logger *LogrusLogger) SetConfig(ctx context.Context, newLevelStr string, newFormatStr string) (ret *LogrusLogger) {
	ret = logger
	defer func() {
		if r := recover(); r != nil {
			Warning(ctx).WithPanic(r).Log("UpdateLogConfigFailed", "log config update failed")
		}
	}()
	newLevel := ParseLogLevel(newLevelStr)
	newFormat := parseLogFormat(newFormatStr)
	if logger.logLevel != newLevel {
		logger.logLevel = newLevel
	}
	if logger.logFormat != newFormat {
		switch newFormat {
		case TextFormat:
			logger.RusLogger.SetFormatter(&logrus.TextFormatter{
				TimestampFormat: TimestampFormat,
				FullTimestamp:   true,
			})
		case JsonFormat:
			logger.RusLogger.SetFormatter(&logrus.JSONFormatter{
				TimestampFormat: TimestampFormat,
			})
		case SimpleFormat:
			logger.RusLogger.SetFormatter(NewSimpleFormatter())
		}
		logger.logFormat = newFormat
	}
	return logger
}

func estimateLength(obj interface{}) int {
	if str, ok := obj.(fmt.Stringer); ok {
		return len(str.String())
	}
	return len(fmt.Sprintf("%+v", obj))
}

// Log implements Logger. Entries below threshold are not written but are still counted.
func (logger *LogrusLogger) Log(entry *LogEntry, shouldLog bool) {
	if logger.metricsReporter != nil {
		if shouldLog {
			logSize := len(entry.Msg) + len(entry.LogType)
			for _, item := range entry.Details {
				logSize += len(item.K) + estimateLength(item.V)
			}
			logger.metricsReporter.ReportLogSizeBytes(logger.ctx, logSize, entry.Level.String(), entry.LogType)
		}
		if NeedLog(entry.Level, DebugLevel) {
			logger.metricsReporter.ReportLogErrorCount(logger.ctx, 1, entry.Level.String(), entry.LogType, shouldLog)
		}
	}
	if !shouldLog {
		return
	}
	fields := make(logrus.Fields, len(entry.Details)+1)
	for _, item := range entry.Details {
		fields[item.K] = item.V
	}
	fields["event"] = entry.LogType
	ent := logger.RusLogger.WithFields(fields)
	ent.Time = entry.Timestamp
	ent.Log(logrus.Level(int(entry.Level)), entry.Msg)
}

func (logger *LogrusLogger) Level() Level {
	return logger.logLevel
}
