// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	cases := []struct {
		status  Status
		outcome Outcome
		fails   bool
	}{
		{Success, OutcomeSuccess, false},
		{Timeout, OutcomeSuccess, false},
		{NotReady, OutcomeSuccess, false},
		{Suboptimal, OutcomeSuboptimal, false},
		{ErrorOutOfDate, OutcomeSuboptimal, false},
		{ErrorDeviceLost, OutcomeFailed, true},
		{ErrorOutOfHostMemory, OutcomeFailed, true},
		{ErrorSurfaceLost, OutcomeFailed, true},
	}
	for _, c := range cases {
		outcome, err := Check("vk.Op", c.status)
		assert.Equal(t, c.outcome, outcome, c.status.String())
		if c.fails {
			var se *StatusError
			require.True(t, errors.As(err, &se), c.status.String())
			assert.Equal(t, c.status, se.Status)
			assert.Equal(t, "vk.Op", se.Op)
		} else {
			assert.NoError(t, err, c.status.String())
		}
	}
}

func TestStatusErrorIs(t *testing.T) {
	err := fmt.Errorf("draw: %w", &StatusError{Op: "vk.QueueSubmit", Status: ErrorDeviceLost})
	assert.True(t, errors.Is(err, &StatusError{Status: ErrorDeviceLost}))
	assert.True(t, errors.Is(err, &StatusError{Op: "vk.QueueSubmit", Status: ErrorDeviceLost}))
	assert.False(t, errors.Is(err, &StatusError{Op: "vk.QueuePresent", Status: ErrorDeviceLost}))
	assert.False(t, errors.Is(err, &StatusError{Status: ErrorOutOfHostMemory}))
	assert.Equal(t, "draw: vk.QueueSubmit(): device lost", err.Error())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "out of date", ErrorOutOfDate.String())
	assert.Equal(t, "status(42)", Status(42).String())
}

func TestArena(t *testing.T) {
	var a Arena[string]
	first := a.Put("a")
	second := a.Put("b")
	assert.Equal(t, uint32(1), first)
	assert.Equal(t, uint32(2), second)

	v, ok := a.Get(first)
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok = a.Get(0)
	assert.False(t, ok)
	_, ok = a.Get(7)
	assert.False(t, ok)

	v, ok = a.Take(first)
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = a.Take(first)
	assert.False(t, ok)
	assert.Equal(t, 1, a.Len())

	third := a.Put("c")
	assert.Equal(t, first, third)

	var seen []string
	a.Each(func(_ uint32, v string) { seen = append(seen, v) })
	assert.ElementsMatch(t, []string{"b", "c"}, seen)
}

func TestExtentZero(t *testing.T) {
	assert.True(t, Extent2D{Width: 0, Height: 10}.Zero())
	assert.True(t, Extent2D{Width: 10}.Zero())
	assert.False(t, Extent2D{Width: 1, Height: 1}.Zero())
}

func BenchmarkArenaPutTake(b *testing.B) {
	var a Arena[int]
	for i := 0; i < b.N; i++ {
		a.Take(a.Put(i))
	}
}
