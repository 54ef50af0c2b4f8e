package biz

import (
	"github.com/xinkaiwang/swmr/libs/swmr/swmr"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
)

// PrefsState is the persisted state of one prefs grain.
type PrefsState struct {
	Prefs map[string]string `json:"prefs"`
}

func NewPrefsState() *PrefsState {
	return &PrefsState{Prefs: map[string]string{}}
}

func (s *PrefsState) Clone() *PrefsState {
	cloned := &PrefsState{Prefs: make(map[string]string, len(s.Prefs))}
	for k, v := range s.Prefs {
		cloned.Prefs[k] = v
	}
	return cloned
}

// PrefsGrain is a per-user key/value preference store.
type PrefsGrain struct {
	id    swmr.GrainId
	state *PrefsState
}

func NewPrefsGrain(id swmr.GrainId) *PrefsGrain {
	return &PrefsGrain{id: id, state: NewPrefsState()}
}

func (g *PrefsGrain) GetState() *PrefsState {
	return g.state
}

func (g *PrefsGrain) SetState(s *PrefsState) {
	if s.Prefs == nil {
		s.Prefs = map[string]string{}
	}
	g.state = s
}

// SetValue adds a new entry; an existing key is a conflict.
func (g *PrefsGrain) SetValue(key, value string) error {
	if key == "" {
		return kerror.Create("InvalidKey", "key must not be empty").WithErrorCode(kerror.EC_INVALID_PARAMETER)
	}
	if _, ok := g.state.Prefs[key]; ok {
		return kerror.Create("DuplicateKey", "key already exists").WithErrorCode(kerror.EC_CONFLICT).
			With("grainId", g.id).With("key", key)
	}
	g.state.Prefs[key] = value
	return nil
}

func (g *PrefsGrain) ClearValues() {
	g.state.Prefs = map[string]string{}
}

func GetValue(s *PrefsState, key string) (string, error) {
	value, ok := s.Prefs[key]
	if !ok {
		return "", kerror.Create("KeyNotFound", "no such key").WithErrorCode(kerror.EC_NOT_FOUND).With("key", key)
	}
	return value, nil
}

// GetAllEntries returns a copy; the replica's snapshot must stay untouched.
func GetAllEntries(s *PrefsState) map[string]string {
	return s.Clone().Prefs
}
