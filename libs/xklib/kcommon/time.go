package kcommon

import (
	"context"
	"sync/atomic"
	"time"
)

var currentTimeProvider atomic.Value

type timeProviderHolder struct {
	provider TimeProvider
}

func init() {
	currentTimeProvider.Store(&timeProviderHolder{NewSystemTimeProvider()})
}

// TimeProvider is the single source of time for runtime code. Tests swap in a FakeTimeProvider.
type TimeProvider interface {
	GetWallTimeMs() int64
	GetMonoTimeMs() int64
	ScheduleRun(delayMs int, fn func())
	SleepMs(ctx context.Context, ms int)
}

func getTimeProvider() TimeProvider {
	return currentTimeProvider.Load().(*timeProviderHolder).provider
}

func SetTimeProvider(provider TimeProvider) {
	currentTimeProvider.Store(&timeProviderHolder{provider})
}

// RunWithTimeProvider installs tp for the duration of fn.
func RunWithTimeProvider(tp TimeProvider, fn func()) {
	old := getTimeProvider()
	SetTimeProvider(tp)
	defer SetTimeProvider(old)
	fn()
}

func GetWallTimeMs() int64 {
	return getTimeProvider().GetWallTimeMs()
}

func GetMonoTimeMs() int64 {
	return getTimeProvider().GetMonoTimeMs()
}

func ScheduleRun(delayMs int, fn func()) {
	getTimeProvider().ScheduleRun(delayMs, fn)
}

func SleepMs(ctx context.Context, ms int) {
	getTimeProvider().SleepMs(ctx, ms)
}

// SystemTimeProvider implements TimeProvider
type SystemTimeProvider struct {
	startTime time.Time
}

func NewSystemTimeProvider() *SystemTimeProvider {
	return &SystemTimeProvider{
		startTime: time.Now(),
	}
}

func (provider *SystemTimeProvider) GetWallTimeMs() int64 {
	return time.Now().UnixMilli()
}

func (provider *SystemTimeProvider) GetMonoTimeMs() int64 {
	return time.Since(provider.startTime).Milliseconds()
}

func (provider *SystemTimeProvider) ScheduleRun(delayMs int, fn func()) {
	time.AfterFunc(time.Duration(delayMs)*time.Millisecond, fn)
}

// SleepMs returns early when ctx is done
func (provider *SystemTimeProvider) SleepMs(ctx context.Context, ms int) {
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
