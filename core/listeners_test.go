// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenersOrder(t *testing.T) {
	l := NewListeners[func() string](NewIDs())
	l.Add(func() string { return "a" })
	l.Add(func() string { return "b" })
	l.Add(func() string { return "c" })

	var forward, backward []string
	l.Each(func(fn func() string) bool {
		forward = append(forward, fn())
		return true
	})
	l.Reverse(func(fn func() string) bool {
		backward = append(backward, fn())
		return true
	})
	assert.Equal(t, []string{"a", "b", "c"}, forward)
	assert.Equal(t, []string{"c", "b", "a"}, backward)
}

func TestListenersRemove(t *testing.T) {
	l := NewListeners[int](NewIDs())
	first := l.Add(1)
	second := l.Add(2)
	require.Equal(t, 2, l.Len())

	assert.True(t, l.Remove(first))
	assert.False(t, l.Remove(first))
	assert.False(t, l.Has(first))
	assert.True(t, l.Has(second))

	var got []int
	l.Each(func(v int) bool {
		got = append(got, v)
		return true
	})
	assert.Equal(t, []int{2}, got)

	l.Clear()
	assert.Equal(t, 0, l.Len())
}

func TestListenersStop(t *testing.T) {
	l := NewListeners[int](NewIDs())
	l.Add(1)
	l.Add(2)

	calls := 0
	complete := l.Each(func(int) bool {
		calls++
		return false
	})
	assert.False(t, complete)
	assert.Equal(t, 1, calls)
}

func TestListenersRemoveDuringIteration(t *testing.T) {
	l := NewListeners[int](NewIDs())
	var second ID
	l.Add(1)
	second = l.Add(2)

	visited := 0
	l.Each(func(int) bool {
		visited++
		l.Remove(second)
		return true
	})
	assert.Equal(t, 2, visited)
	assert.Equal(t, 1, l.Len())
}
