// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package frame runs the main loop: events, messages and the
// registered run functions, once per step.
package frame

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/devblok/kframe/core"
	"github.com/devblok/kframe/gfx"
	"github.com/devblok/kframe/utility/telegraph"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var (
	// ErrStillRunning is returned by Run while a loop is running.
	ErrStillRunning = errors.New("frame: still running")

	// ErrRunAborted is returned when a run function stopped the loop.
	ErrRunAborted = errors.New("frame: run aborted")
)

// RunFunc is called every step with its own id. Returning false aborts the loop.
type RunFunc func(id core.ID) bool

// RunOnceFunc is called on the next step only. Returning false aborts the loop.
type RunOnceFunc func() bool

// RunEndFunc is called after the loop ends.
type RunEndFunc func()

// Idler waits until the device has no work left.
type Idler interface {
	WaitIdle() gfx.Status
}

// Options wires the loop to its collaborators. Every field is optional.
type Options struct {
	// Events pumps window events, called first in every step.
	Events func()

	// Telegraph is updated with the running time every step.
	Telegraph *telegraph.Dispatcher

	// Time paces steps to its frame rate and provides the run clock.
	Time *core.Time

	// Device is idled before run end functions are called.
	Device Idler
}

// Frame is the main loop.
type Frame struct {
	ids  *core.IDs
	log  logrus.FieldLogger
	opts Options

	running atomic.Bool
	start   time.Time

	runs    map[core.ID]RunFunc
	runEnds map[core.ID]RunEndFunc
	once    []RunOnceFunc
	remove  []core.ID
}

// New creates a loop.
func New(ids *core.IDs, opts Options, log logrus.FieldLogger) *Frame {
	return &Frame{
		ids:     ids,
		log:     core.Logger(log).WithField("component", "frame"),
		opts:    opts,
		runs:    make(map[core.ID]RunFunc),
		runEnds: make(map[core.ID]RunEndFunc),
	}
}

// Run steps until ShutDown is called, ctx is done or a run function aborts.
func (f *Frame) Run(ctx context.Context) error {
	if !f.running.CompareAndSwap(false, true) {
		return ErrStillRunning
	}
	f.start = time.Now()
	if f.opts.Time != nil {
		f.opts.Time.Reset()
	}
	f.log.Debug("run started")

	var ticker <-chan time.Time
	if f.opts.Time != nil && f.opts.Time.Fps() > 0 {
		ticker = f.opts.Time.FpsTicker().C
	}

	aborted := false
loop:
	for f.running.Load() {
		if ticker != nil {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker:
			}
		} else if ctx.Err() != nil {
			break
		}

		if !f.step() {
			aborted = true
			break
		}
	}

	if f.opts.Device != nil {
		if err := gfx.Failed("vk.DeviceWaitIdle", f.opts.Device.WaitIdle()); err != nil {
			f.log.WithError(err).Warn("wait idle failed")
		}
	}
	f.runEnd()

	f.running.Store(false)
	f.log.WithField("time", f.RunningTime()).Debug("run ended")
	f.start = time.Time{}
	if aborted {
		return ErrRunAborted
	}
	return nil
}

func (f *Frame) step() bool {
	if f.opts.Events != nil {
		f.opts.Events()
	}
	if f.opts.Telegraph != nil {
		f.opts.Telegraph.Update(f.RunningTime())
	}

	if len(f.once) > 0 {
		once := f.once
		f.once = nil
		for _, fn := range once {
			if !fn() {
				return false
			}
		}
	}

	for _, id := range sortedKeys(f.runs) {
		fn, ok := f.runs[id]
		if !ok {
			continue
		}
		if !fn(id) {
			return false
		}
	}

	f.flushRemoved()
	return true
}

func (f *Frame) runEnd() {
	f.flushRemoved()
	ids := sortedKeys(f.runEnds)
	for idx := len(ids) - 1; idx >= 0; idx-- {
		f.runEnds[ids[idx]]()
	}
}

func (f *Frame) flushRemoved() {
	for _, id := range f.remove {
		if _, ok := f.runs[id]; ok {
			delete(f.runs, id)
		} else {
			delete(f.runEnds, id)
		}
	}
	f.remove = nil
}

func sortedKeys[V any](m map[core.ID]V) []core.ID {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}

// ShutDown stops the loop after the current step. Returns false when not running.
func (f *Frame) ShutDown() bool {
	return f.running.CompareAndSwap(true, false)
}

// Running reports whether the loop is running.
func (f *Frame) Running() bool {
	return f.running.Load()
}

// RunningTime returns the time since Run started.
func (f *Frame) RunningTime() time.Duration {
	if f.opts.Time != nil {
		return f.opts.Time.Current()
	}
	if f.start.IsZero() {
		return 0
	}
	return time.Since(f.start)
}

// AddRun registers fn to be called every step, in registration order.
func (f *Frame) AddRun(fn RunFunc) core.ID {
	id := f.ids.Next()
	f.runs[id] = fn
	return id
}

// AddRunEnd registers fn to be called after the loop, in reverse registration order.
func (f *Frame) AddRunEnd(fn RunEndFunc) core.ID {
	id := f.ids.Next()
	f.runEnds[id] = fn
	return id
}

// AddRunOnce queues fn for the next step.
func (f *Frame) AddRunOnce(fn RunOnceFunc) {
	f.once = append(f.once, fn)
}

// Remove drops a run or run end function at the end of the current step.
// Returns false when the removal is already pending.
func (f *Frame) Remove(id core.ID) bool {
	if slices.Contains(f.remove, id) {
		return false
	}
	f.remove = append(f.remove, id)
	if !f.running.Load() {
		f.flushRemoved()
	}
	return true
}
