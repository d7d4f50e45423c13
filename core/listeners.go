// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"golang.org/x/exp/slices"
)

type listener[T any] struct {
	id ID
	fn T
}

// Listeners is an ordered registry of handlers. Handlers are kept
// in registration order and removed by the ID handed out on Add.
// It is not safe for concurrent use, owners mutate it from one goroutine.
type Listeners[T any] struct {
	ids  *IDs
	list []listener[T]
}

// NewListeners creates an empty registry that draws ids from ids.
func NewListeners[T any](ids *IDs) *Listeners[T] {
	return &Listeners[T]{ids: ids}
}

// Add registers a handler and returns its token.
func (l *Listeners[T]) Add(fn T) ID {
	id := l.ids.Next()
	l.list = append(l.list, listener[T]{id: id, fn: fn})
	return id
}

// Remove unregisters the handler with the given token.
// Returns false if no such handler exists.
func (l *Listeners[T]) Remove(id ID) bool {
	idx := slices.IndexFunc(l.list, func(e listener[T]) bool { return e.id == id })
	if idx < 0 {
		return false
	}
	l.list = slices.Delete(l.list, idx, idx+1)
	return true
}

// Has reports whether a handler is registered under id.
func (l *Listeners[T]) Has(id ID) bool {
	return slices.ContainsFunc(l.list, func(e listener[T]) bool { return e.id == id })
}

// Len returns the number of registered handlers.
func (l *Listeners[T]) Len() int {
	return len(l.list)
}

// Clear drops every handler.
func (l *Listeners[T]) Clear() {
	l.list = nil
}

// Each calls fn for every handler in registration order until fn returns false.
// The iteration works on a snapshot, handlers may add or remove listeners.
func (l *Listeners[T]) Each(fn func(T) bool) bool {
	for _, e := range slices.Clone(l.list) {
		if !fn(e.fn) {
			return false
		}
	}
	return true
}

// Reverse is Each in reverse registration order.
func (l *Listeners[T]) Reverse(fn func(T) bool) bool {
	snapshot := slices.Clone(l.list)
	for idx := len(snapshot) - 1; idx >= 0; idx-- {
		if !fn(snapshot[idx].fn) {
			return false
		}
	}
	return true
}
