package biz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
)

func TestPrefsGrainSetValue(t *testing.T) {
	g := NewPrefsGrain("u1")
	assert.Nil(t, g.SetValue("theme", "dark"))

	err := g.SetValue("theme", "light")
	assert.True(t, kerror.IsType(err, "DuplicateKey"))
	assert.Equal(t, kerror.EC_CONFLICT, kerror.As(err).ErrorCode)
	assert.Equal(t, "dark", g.GetState().Prefs["theme"])

	assert.True(t, kerror.IsType(g.SetValue("", "x"), "InvalidKey"))
}

func TestPrefsGrainClear(t *testing.T) {
	g := NewPrefsGrain("u1")
	assert.Nil(t, g.SetValue("a", "1"))
	g.ClearValues()
	assert.Empty(t, g.GetState().Prefs)
	// a cleared key can be set again
	assert.Nil(t, g.SetValue("a", "2"))
}

func TestPrefsStateCloneIsDeep(t *testing.T) {
	s := NewPrefsState()
	s.Prefs["a"] = "1"
	c := s.Clone()
	c.Prefs["a"] = "2"
	assert.Equal(t, "1", s.Prefs["a"])
}

func TestSetStateInitializesNilMap(t *testing.T) {
	g := NewPrefsGrain("u1")
	g.SetState(&PrefsState{})
	assert.NotNil(t, g.GetState().Prefs)
	assert.Nil(t, g.SetValue("a", "1"))
}

func TestQueries(t *testing.T) {
	s := NewPrefsState()
	s.Prefs["a"] = "1"

	v, err := GetValue(s, "a")
	assert.Nil(t, err)
	assert.Equal(t, "1", v)

	_, err = GetValue(s, "missing")
	assert.Equal(t, kerror.EC_NOT_FOUND, kerror.As(err).ErrorCode)

	entries := GetAllEntries(s)
	entries["b"] = "2"
	assert.Equal(t, 1, len(s.Prefs))
}
