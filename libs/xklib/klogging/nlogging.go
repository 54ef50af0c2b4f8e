package klogging

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
)

// Level type
type Level uint32

const (
	FatalLevel Level = iota + 1
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
	VerboseLevel
)

func (e Level) String() string {
	switch e {
	case FatalLevel:
		return "fatal"
	case ErrorLevel:
		return "error"
	case WarnLevel:
		return "warn"
	case InfoLevel:
		return "info"
	case DebugLevel:
		return "debug"
	case VerboseLevel:
		return "verbose"
	default:
		return fmt.Sprintf("%d", int(e))
	}
}

// ParseLogLevel panics on unknown input, callers at startup use it with TryCatchRun
func ParseLogLevel(str string) Level {
	switch {
	case strings.EqualFold("fatal", str):
		return FatalLevel
	case strings.EqualFold("error", str) || strings.EqualFold("err", str):
		return ErrorLevel
	case strings.EqualFold("warning", str) || strings.EqualFold("warn", str):
		return WarnLevel
	case strings.EqualFold("information", str) || strings.EqualFold("info", str):
		return InfoLevel
	case strings.EqualFold("debug", str):
		return DebugLevel
	case strings.EqualFold("verbose", str) || strings.EqualFold("trace", str):
		return VerboseLevel
	default:
		panic(kerror.Create("UnknownLogLevel", "parse log level failed").WithErrorCode(kerror.EC_INVALID_PARAMETER).With("str", str))
	}
}

func NeedLog(importance Level, threshold Level) bool {
	return int(importance) <= int(threshold)
}

type Logger interface {
	Log(entry *LogEntry, shouldLog bool)
	Level() Level
}

type LoggerHolder struct {
	Logger Logger
}

var currentLogger atomic.Value

func getCurrentLogger() Logger {
	val := currentLogger.Load()
	if l, ok := val.(*LoggerHolder); ok {
		return l.Logger
	}
	return nil
}

func GetLogger() Logger {
	current := getCurrentLogger()
	if current == nil {
		current = &BasicLogger{
			LogLevel: DebugLevel,
		}
		currentLogger.Store(&LoggerHolder{current})
	}
	return current
}

func SetDefaultLogger(logger Logger) {
	currentLogger.Store(&LoggerHolder{logger})
}

type Keypair struct {
	K string
	V interface{}
}

type LogEntry struct {
	Logger             Logger
	Level              Level
	EffectiveThreshold Level
	ShouldLog          bool
	LogType            string
	Msg                string
	Details            []Keypair
	Ctx                context.Context
	Timestamp          time.Time
}

func NewEntry(ctx context.Context, level Level) *LogEntry {
	logger := GetLogger()
	threshold := logger.Level()
	entry := &LogEntry{
		Logger:             logger,
		Level:              level,
		EffectiveThreshold: threshold,
		ShouldLog:          NeedLog(level, threshold),
		Ctx:                ctx,
		Timestamp:          time.Now(),
	}
	if entry.ShouldLog {
		GetCurrentCtxInfo(ctx).VisitForward(func(k, v string) bool {
			entry.Details = append(entry.Details, Keypair{k, v})
			return true
		})
	}
	return entry
}

func (entry *LogEntry) With(k string, v interface{}) *LogEntry {
	if entry.ShouldLog {
		entry.Details = append(entry.Details, Keypair{k, v})
	}
	return entry
}

func (entry *LogEntry) WithError(err error) *LogEntry {
	if !entry.ShouldLog || err == nil {
		return entry
	}
	if ke, ok := err.(*kerror.Kerror); ok {
		for _, item := range ke.Details {
			entry.Details = append(entry.Details, Keypair{item.K, item.V})
		}
		entry.Details = append(entry.Details, Keypair{"errorType", ke.Type}, Keypair{"errorMsg", ke.Msg}, Keypair{"errorCode", string(ke.ErrorCode)})
		if ke.Stack != "" {
			entry.Details = append(entry.Details, Keypair{"stack", ke.Stack})
		}
		if ke.CausedBy != nil {
			entry.Details = append(entry.Details, Keypair{"causedBy", ke.CausedByString()})
		}
	} else {
		entry.Details = append(entry.Details, Keypair{"error", err.Error()})
	}
	return entry
}

func (entry *LogEntry) WithPanic(r interface{}) *LogEntry {
	if err, ok := r.(error); ok {
		entry.WithError(err)
		if _, isKe := r.(*kerror.Kerror); !isKe {
			entry.With("stack", kerror.GetCallStack(1))
		}
	} else {
		entry.With("panic", r)
		entry.With("stack", kerror.GetCallStack(1))
	}
	return entry
}

func (entry *LogEntry) Log(logType, msg string) {
	entry.LogType = logType
	entry.Msg = msg
	entry.Logger.Log(entry, entry.ShouldLog)
	if entry.Level == FatalLevel {
		OsExit(1)
	}
}

func (entry *LogEntry) String() string {
	var b strings.Builder
	b.Grow(256)
	fmt.Fprintf(&b, "level=%v, event=%s, msg=%s", entry.Level.String(), entry.LogType, entry.Msg)
	for _, item := range entry.Details {
		fmt.Fprintf(&b, ", %s=%v", item.K, item.V)
	}
	return b.String()
}

func Fatal(ctx context.Context) *LogEntry {
	return NewEntry(ctx, FatalLevel)
}
func Error(ctx context.Context) *LogEntry {
	return NewEntry(ctx, ErrorLevel)
}
func Warning(ctx context.Context) *LogEntry {
	return NewEntry(ctx, WarnLevel)
}
func Info(ctx context.Context) *LogEntry {
	return NewEntry(ctx, InfoLevel)
}
func Debug(ctx context.Context) *LogEntry {
	return NewEntry(ctx, DebugLevel)
}
func Verbose(ctx context.Context) *LogEntry {
	return NewEntry(ctx, VerboseLevel)
}

/********************************* BasicLogger ************************************/

// BasicLogger prints to stdout, it is the default until main() installs a LogrusLogger.
type BasicLogger struct {
	LogLevel Level
}

func (bl *BasicLogger) Log(entry *LogEntry, shouldLog bool) {
	if shouldLog {
		str := entry.String()
		fmt.Println(str)
		lastLoggedMessage.Store(str)
	}
}

func (bl *BasicLogger) Level() Level {
	return bl.LogLevel
}

var lastLoggedMessage atomic.Value

// GetLastLoggedMessage is for tests
func GetLastLoggedMessage() string {
	str, _ := lastLoggedMessage.Load().(string)
	return str
}

// NullLogger discards all log entries
type NullLogger struct{}

func (nl *NullLogger) Log(entry *LogEntry, shouldLog bool) {}

func (nl *NullLogger) Level() Level {
	return VerboseLevel
}

func NewNullLogger() Logger {
	return &NullLogger{}
}
