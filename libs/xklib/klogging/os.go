package klogging

import (
	"os"
	"sync"
)

// OsProvider is where a Fatal log entry ends the process. Tests swap it out.
type OsProvider interface {
	Exit(code int)
}

var (
	osProviderMu      sync.RWMutex
	currentOsProvider OsProvider = &SystemOsProvider{}
)

func OsExit(code int) {
	osProviderMu.RLock()
	provider := currentOsProvider
	osProviderMu.RUnlock()
	provider.Exit(code)
}

// SetOsProvider installs provider and returns a func restoring the previous one.
func SetOsProvider(provider OsProvider) (restore func()) {
	osProviderMu.Lock()
	old := currentOsProvider
	currentOsProvider = provider
	osProviderMu.Unlock()
	return func() { SetOsProvider(old) }
}

type SystemOsProvider struct{}

func (provider *SystemOsProvider) Exit(code int) {
	os.Exit(code)
}

// RecordingOsProvider records exit codes instead of exiting.
type RecordingOsProvider struct {
	mu    sync.Mutex
	codes []int
}

func (provider *RecordingOsProvider) Exit(code int) {
	provider.mu.Lock()
	defer provider.mu.Unlock()
	provider.codes = append(provider.codes, code)
}

func (provider *RecordingOsProvider) ExitCodes() []int {
	provider.mu.Lock()
	defer provider.mu.Unlock()
	return append([]int(nil), provider.codes...)
}
