package kcommon

import "sync"

func RunWithLock(m sync.Locker, fnc func()) {
	m.Lock()
	defer m.Unlock()
	fnc()
}

// ReadWithLock returns fnc's value computed while holding m.
func ReadWithLock[T any](m sync.Locker, fnc func() T) T {
	m.Lock()
	defer m.Unlock()
	return fnc()
}
