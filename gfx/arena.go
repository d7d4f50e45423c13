// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"sync"
)

// Arena stores backend objects behind 32 bit handles.
// Handle 0 is never used, freed slots are recycled.
type Arena[T any] struct {
	mu    sync.Mutex
	slots []T
	used  []bool
	free  []uint32
}

// Put stores v and returns its handle.
func (a *Arena[T]) Put(v T) uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[idx] = v
		a.used[idx] = true
		return idx + 1
	}
	a.slots = append(a.slots, v)
	a.used = append(a.used, true)
	return uint32(len(a.slots))
}

// Get returns the object stored under handle.
func (a *Arena[T]) Get(handle uint32) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var zero T
	if !a.valid(handle) {
		return zero, false
	}
	return a.slots[handle-1], true
}

// Take removes the object stored under handle and returns it.
func (a *Arena[T]) Take(handle uint32) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var zero T
	if !a.valid(handle) {
		return zero, false
	}
	idx := handle - 1
	v := a.slots[idx]
	a.slots[idx] = zero
	a.used[idx] = false
	a.free = append(a.free, idx)
	return v, true
}

// Len returns the number of live objects.
func (a *Arena[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.slots) - len(a.free)
}

// Each calls fn for every live object.
func (a *Arena[T]) Each(fn func(handle uint32, v T)) {
	a.mu.Lock()
	handles := make([]uint32, 0, len(a.slots))
	values := make([]T, 0, len(a.slots))
	for idx, ok := range a.used {
		if ok {
			handles = append(handles, uint32(idx)+1)
			values = append(values, a.slots[idx])
		}
	}
	a.mu.Unlock()

	for i := range handles {
		fn(handles[i], values[i])
	}
}

func (a *Arena[T]) valid(handle uint32) bool {
	return handle != 0 && int(handle) <= len(a.slots) && a.used[handle-1]
}
