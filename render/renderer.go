// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package render drives frames through a presentation target. The
// Renderer keeps one fence and two semaphores per queued frame and
// makes sure no backbuffer is written while the GPU may still read it.
package render

import (
	"errors"
	"fmt"
	"time"

	"github.com/devblok/kframe/core"
	"github.com/devblok/kframe/gfx"
	"github.com/sirupsen/logrus"
)

// State of a Renderer.
type State int

// Renderer states.
const (
	StateIdle State = iota
	StateActive
	StateSuspended
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateSuspended:
		return "suspended"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// DefaultFencePollTimeout is used when the configuration leaves the poll timeout unset.
const DefaultFencePollTimeout = time.Millisecond

// ExtraSync holds caller owned semaphores added to every submission.
// WaitSemaphores and WaitStages pair up by index.
type ExtraSync struct {
	WaitSemaphores   []gfx.Semaphore
	WaitStages       []gfx.PipelineStage
	SignalSemaphores []gfx.Semaphore
}

// Renderer submits and presents frames. It is driven from a single goroutine.
type Renderer struct {
	id  core.ID
	cfg core.RendererConfiguration
	log logrus.FieldLogger

	target Target
	dev    gfx.Device
	queue  gfx.Queue
	sync   *syncSet

	state   State
	active  bool
	pending bool

	frame     uint32
	syncIndex uint32

	extra     ExtraSync
	onDestroy *core.Listeners[func()]
}

// NewRenderer creates an idle renderer.
func NewRenderer(ids *core.IDs, cfg core.RendererConfiguration, log logrus.FieldLogger) *Renderer {
	id := ids.Next()
	if cfg.FencePollTimeout <= 0 {
		cfg.FencePollTimeout = core.Duration(DefaultFencePollTimeout)
	}
	return &Renderer{
		id:        id,
		cfg:       cfg,
		log:       core.Logger(log).WithField("renderer", id),
		active:    true,
		onDestroy: core.NewListeners[func()](ids),
	}
}

// Create prepares the renderer for target. On failure nothing is left behind
// and the renderer keeps its previous state.
func (r *Renderer) Create(target Target) error {
	if r.state == StateActive || r.state == StateSuspended {
		return fmt.Errorf("%w: renderer already created", ErrSetup)
	}
	if target == nil {
		return fmt.Errorf("%w: no target", ErrSetup)
	}

	dev := target.Device()
	var (
		queue gfx.Queue
		found bool
	)
	for _, q := range dev.GraphicsQueues() {
		if target.SurfaceSupported(q.Family) {
			queue, found = q, true
			break
		}
	}
	if !found {
		return ErrNoPresentQueue
	}

	count := target.BackbufferCount()
	if count == 0 {
		return fmt.Errorf("%w: target has no backbuffers", ErrSetup)
	}

	sync, err := newSyncSet(dev, count)
	if err != nil {
		r.log.WithError(err).Error("failed to create frame synchronization")
		return err
	}

	r.target = target
	r.dev = dev
	r.queue = queue
	r.sync = sync
	r.frame = 0
	r.syncIndex = 0
	r.pending = false
	r.state = StateActive

	r.log.WithFields(logrus.Fields{
		"frames": count,
		"family": queue.Family,
	}).Debug("renderer created")
	return nil
}

// Destroy runs the pre-destroy listeners and releases every primitive.
func (r *Renderer) Destroy() {
	if r.state != StateActive && r.state != StateSuspended {
		return
	}

	r.onDestroy.Each(func(fn func()) bool {
		fn()
		return true
	})

	r.sync.destroy(r.dev)
	r.sync = nil
	r.target = nil
	r.pending = false
	r.state = StateDestroyed
	r.log.Debug("renderer destroyed")
}

// BeginFrame waits until the next sync slot is free and acquires a backbuffer.
// It returns the backbuffer index to record for. A skipped frame is
// reported with ErrInactive, ErrSuspended or ErrOutOfDate.
func (r *Renderer) BeginFrame() (uint32, error) {
	switch r.state {
	case StateIdle, StateDestroyed:
		return 0, ErrNotActive
	case StateSuspended:
		if r.target.ReloadRequested() {
			return 0, ErrSuspended
		}
		r.state = StateActive
		r.log.Debug("renderer resumed")
	}
	if !r.active {
		return 0, ErrInactive
	}
	if r.pending {
		return r.frame, nil
	}

	current := r.sync.fences[r.syncIndex]
	if err := r.waitFence(current); err != nil {
		return 0, err
	}

	frame, status := r.dev.AcquireNextImage(r.target.Handle(), r.acquireTimeout(), r.sync.acquire[r.syncIndex])
	outcome, err := gfx.Check("vk.AcquireNextImage", status)
	switch {
	case outcome == gfx.OutcomeSuboptimal:
		r.suspend(status)
		return 0, ErrOutOfDate
	case err != nil:
		return 0, err
	case status == gfx.Timeout || status == gfx.NotReady:
		return 0, &gfx.StatusError{Op: "vk.AcquireNextImage", Status: status}
	}

	if int(frame) >= len(r.sync.inUse) {
		return 0, fmt.Errorf("vk.AcquireNextImage(): image %d out of range", frame)
	}

	if used := r.sync.inUse[frame]; used != 0 && used != current {
		if err := r.waitFence(used); err != nil {
			r.dropFrame(false)
			return 0, err
		}
	}
	r.sync.inUse[frame] = current

	if err := gfx.Failed("vk.ResetFences", r.dev.ResetFences([]gfx.Fence{current})); err != nil {
		r.dropFrame(true)
		return 0, err
	}

	r.frame = frame
	r.pending = true
	return frame, nil
}

// EndFrame submits cmds for the frame started by BeginFrame and presents it.
// A stale target only requests a reload, the frame still counts as done.
func (r *Renderer) EndFrame(cmds []gfx.CommandBuffer) error {
	if r.state != StateActive {
		return ErrNotActive
	}
	if !r.pending {
		return ErrNoFrame
	}
	if len(cmds) == 0 {
		return ErrNoCommandBuffers
	}
	if len(r.extra.WaitSemaphores) != len(r.extra.WaitStages) {
		return ErrWaitStageMismatch
	}

	waits := append([]gfx.Semaphore{r.sync.acquire[r.syncIndex]}, r.extra.WaitSemaphores...)
	stages := append([]gfx.PipelineStage{gfx.PipelineStageColorAttachmentOutput}, r.extra.WaitStages...)
	present := r.sync.present[r.syncIndex]
	signals := append([]gfx.Semaphore{present}, r.extra.SignalSemaphores...)

	submit := gfx.SubmitInfo{
		WaitSemaphores:   waits,
		WaitStages:       stages,
		CommandBuffers:   cmds,
		SignalSemaphores: signals,
	}

	status := r.dev.QueueSubmit(r.queue, []gfx.SubmitInfo{submit}, r.sync.fences[r.syncIndex])
	outcome, err := gfx.Check("vk.QueueSubmit", status)
	if err != nil {
		r.pending = false
		r.dropFrame(true)
		return err
	}
	if outcome == gfx.OutcomeSuboptimal {
		r.suspend(status)
	}

	r.pending = false
	r.syncIndex = (r.syncIndex + 1) % r.sync.len()

	status = r.dev.QueuePresent(r.queue, gfx.PresentInfo{
		WaitSemaphores: []gfx.Semaphore{present},
		Swapchain:      r.target.Handle(),
		ImageIndex:     r.frame,
	})
	outcome, err = gfx.Check("vk.QueuePresent", status)
	if err != nil {
		return err
	}
	if outcome == gfx.OutcomeSuboptimal {
		r.suspend(status)
	}
	return nil
}

// Frame begins a frame, records it with record and ends it.
// Skipped frames are reported as by BeginFrame.
func (r *Renderer) Frame(record func(frame uint32) []gfx.CommandBuffer) error {
	frame, err := r.BeginFrame()
	if err != nil {
		return err
	}
	return r.EndFrame(record(frame))
}

// Skipped reports whether err only means the frame was skipped.
func Skipped(err error) bool {
	return errors.Is(err, ErrInactive) || errors.Is(err, ErrSuspended) || errors.Is(err, ErrOutOfDate)
}

func (r *Renderer) waitFence(fence gfx.Fence) error {
	fences := []gfx.Fence{fence}
	timeout := uint64(r.cfg.FencePollTimeout.D().Nanoseconds())
	for {
		status := r.dev.WaitForFences(fences, timeout)
		if status == gfx.Timeout {
			continue
		}
		if status == gfx.ErrorOutOfDate {
			r.suspend(status)
			return ErrOutOfDate
		}
		return gfx.Failed("vk.WaitForFences", status)
	}
}

// dropFrame renews the primitives of the current slot after an acquired
// frame was abandoned. fence must be set once the slot fence was reset.
func (r *Renderer) dropFrame(fence bool) {
	log := r.log.WithField("sync", r.syncIndex)
	if fence {
		if err := r.sync.renewFence(r.dev, r.syncIndex); err != nil {
			log.WithError(err).Warn("failed to renew frame fence")
		}
	}
	if err := r.sync.renewAcquire(r.dev, r.syncIndex); err != nil {
		log.WithError(err).Warn("failed to renew acquire semaphore")
	}
}

func (r *Renderer) acquireTimeout() uint64 {
	if r.cfg.AcquireTimeout <= 0 {
		return gfx.WaitForever
	}
	return uint64(r.cfg.AcquireTimeout.D().Nanoseconds())
}

func (r *Renderer) suspend(status gfx.Status) {
	r.target.RequestReload()
	if r.state != StateSuspended {
		r.log.WithFields(logrus.Fields{
			"sync":   r.syncIndex,
			"frame":  r.frame,
			"status": status,
		}).Debug("target stale, suspending")
	}
	r.state = StateSuspended
}

// SetActive switches rendering on or off. Inactive renderers skip every frame.
func (r *Renderer) SetActive(active bool) {
	r.active = active
}

// Active reports whether rendering is switched on.
func (r *Renderer) Active() bool {
	return r.active
}

// SetExtraSync sets caller owned semaphores added to every submission.
func (r *Renderer) SetExtraSync(extra ExtraSync) {
	r.extra = extra
}

// OnDestroy registers fn to run before the renderer releases its primitives.
func (r *Renderer) OnDestroy(fn func()) core.ID {
	return r.onDestroy.Add(fn)
}

// RemoveListener unregisters a pre-destroy listener.
func (r *Renderer) RemoveListener(id core.ID) bool {
	return r.onDestroy.Remove(id)
}

// Attach recreates the renderer along with the backbuffers of sc.
func (r *Renderer) Attach(sc *Swapchain) core.ID {
	return sc.AddListener(SwapchainListener{
		Created: func() error {
			return r.Create(sc)
		},
		Destroyed: r.Destroy,
	})
}

// ID returns the renderer identity.
func (r *Renderer) ID() core.ID {
	return r.id
}

// State returns the lifecycle state.
func (r *Renderer) State() State {
	return r.state
}

// FrameIndex returns the backbuffer index of the last begun frame.
func (r *Renderer) FrameIndex() uint32 {
	return r.frame
}

// SyncIndex returns the sync slot the next frame will use.
func (r *Renderer) SyncIndex() uint32 {
	return r.syncIndex
}

// QueuedFrames returns the number of sync slots, zero when not created.
func (r *Renderer) QueuedFrames() uint32 {
	if r.sync == nil {
		return 0
	}
	return r.sync.len()
}

// Queue returns the queue frames are submitted to.
func (r *Renderer) Queue() gfx.Queue {
	return r.queue
}
