// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfxtest provides a scripted in-memory gfx.Device for tests.
package gfxtest

import (
	"sync"

	"github.com/devblok/kframe/gfx"
)

// EventKind names a recorded device call.
type EventKind int

// Recorded calls.
const (
	EventWait EventKind = iota
	EventReset
	EventAcquire
	EventSubmit
	EventPresent
	EventWaitIdle
	EventCreateSwapchain
	EventDestroySwapchain
	EventResetPool
	EventRecord
)

// Event is one recorded device call.
type Event struct {
	Kind    EventKind
	Fences  []gfx.Fence
	Image   uint32
	Buffers []gfx.CommandBuffer
	Status  gfx.Status
}

// Submit is a recorded queue submission.
type Submit struct {
	Queue gfx.Queue
	Info  gfx.SubmitInfo
	Fence gfx.Fence
}

// MaxSpins bounds waits on fences nobody will ever signal.
const MaxSpins = 1000

type fence struct {
	signaled  bool
	submitted bool
	timeouts  int
	spins     int
}

type swapchain struct {
	info   gfx.SwapchainCreateInfo
	images []gfx.Image
	next   uint32
}

type buffer struct {
	pool      gfx.CommandPool
	recording bool
	recorded  int
}

// Device is a scripted gfx.Device. Submitted work completes immediately,
// fences signal once TimeoutsBeforeSignal waits have timed out.
// Scripted statuses are keyed by the 1-based call number.
type Device struct {
	Queues          []gfx.Queue
	PresentFamilies map[uint32]bool
	Caps            gfx.SurfaceCapabilities
	Formats         []gfx.SurfaceFormat
	PresentModes    []gfx.PresentMode

	// AcquireOrder is cycled to pick image indices, round robin when empty.
	AcquireOrder []uint32

	AcquireStatus map[int]gfx.Status
	WaitStatus    map[int]gfx.Status
	SubmitStatus  map[int]gfx.Status
	PresentStatus map[int]gfx.Status

	TimeoutsBeforeSignal int

	// FailCreateAt fails the n-th object creation with ErrorOutOfDeviceMemory.
	FailCreateAt int

	mu sync.Mutex

	fences     gfx.Arena[*fence]
	semaphores gfx.Arena[struct{}]
	pools      gfx.Arena[uint32]
	buffers    gfx.Arena[*buffer]
	swapchains gfx.Arena[*swapchain]
	images     uint32

	events   []Event
	submits  []Submit
	presents []gfx.PresentInfo

	createCalls  int
	waitCalls    int
	acquireCalls int
	submitCalls  int
	presentCalls int
}

// NewDevice creates a device with one graphics queue that can present
// and a surface that supports everything.
func NewDevice() *Device {
	return &Device{
		Queues: []gfx.Queue{{Family: 0, Index: 0, Flags: gfx.QueueGraphics, Priority: 1}},
		Caps: gfx.SurfaceCapabilities{
			MinImageCount:           2,
			MaxImageCount:           8,
			CurrentExtent:           gfx.Extent2D{Width: 800, Height: 600},
			MinImageExtent:          gfx.Extent2D{Width: 1, Height: 1},
			MaxImageExtent:          gfx.Extent2D{Width: 4096, Height: 4096},
			SupportedTransforms:     gfx.SurfaceTransformIdentity,
			CurrentTransform:        gfx.SurfaceTransformIdentity,
			SupportedCompositeAlpha: gfx.CompositeAlphaOpaque,
			SupportedUsage:          gfx.ImageUsageColorAttachment | gfx.ImageUsageTransferSrc | gfx.ImageUsageTransferDst,
		},
		Formats:      []gfx.SurfaceFormat{{Format: 44, ColorSpace: gfx.ColorSpaceSrgbNonlinear}},
		PresentModes: []gfx.PresentMode{gfx.PresentModeFifo, gfx.PresentModeMailbox, gfx.PresentModeImmediate},
	}
}

func (d *Device) create() gfx.Status {
	d.createCalls++
	if d.FailCreateAt > 0 && d.createCalls == d.FailCreateAt {
		return gfx.ErrorOutOfDeviceMemory
	}
	return gfx.Success
}

func scripted(script map[int]gfx.Status, call int) (gfx.Status, bool) {
	s, ok := script[call]
	return s, ok
}

// CreateFence implements gfx.SyncDevice
func (d *Device) CreateFence(signaled bool) (gfx.Fence, gfx.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.create(); s != gfx.Success {
		return 0, s
	}
	return gfx.Fence(d.fences.Put(&fence{signaled: signaled})), gfx.Success
}

// DestroyFence implements gfx.SyncDevice
func (d *Device) DestroyFence(f gfx.Fence) {
	d.fences.Take(uint32(f))
}

// WaitForFences implements gfx.SyncDevice
func (d *Device) WaitForFences(fences []gfx.Fence, timeout uint64) gfx.Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.waitCalls++
	status := d.waitLocked(fences)
	if s, ok := scripted(d.WaitStatus, d.waitCalls); ok {
		status = s
	}
	d.events = append(d.events, Event{Kind: EventWait, Fences: append([]gfx.Fence(nil), fences...), Status: status})
	return status
}

func (d *Device) waitLocked(fences []gfx.Fence) gfx.Status {
	for _, h := range fences {
		f, ok := d.fences.Get(uint32(h))
		if !ok {
			return gfx.ErrorDeviceLost
		}
		if f.signaled {
			continue
		}
		if !f.submitted {
			f.spins++
			if f.spins > MaxSpins {
				return gfx.ErrorDeviceLost
			}
			return gfx.Timeout
		}
		if f.timeouts > 0 {
			f.timeouts--
			return gfx.Timeout
		}
		f.signaled = true
	}
	return gfx.Success
}

// ResetFences implements gfx.SyncDevice
func (d *Device) ResetFences(fences []gfx.Fence) gfx.Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, h := range fences {
		if f, ok := d.fences.Get(uint32(h)); ok {
			*f = fence{}
		}
	}
	d.events = append(d.events, Event{Kind: EventReset, Fences: append([]gfx.Fence(nil), fences...)})
	return gfx.Success
}

// CreateSemaphore implements gfx.SyncDevice
func (d *Device) CreateSemaphore() (gfx.Semaphore, gfx.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.create(); s != gfx.Success {
		return 0, s
	}
	return gfx.Semaphore(d.semaphores.Put(struct{}{})), gfx.Success
}

// DestroySemaphore implements gfx.SyncDevice
func (d *Device) DestroySemaphore(s gfx.Semaphore) {
	d.semaphores.Take(uint32(s))
}

// GraphicsQueues implements gfx.QueueDevice
func (d *Device) GraphicsQueues() []gfx.Queue {
	var out []gfx.Queue
	for _, q := range d.Queues {
		if q.Flags&gfx.QueueGraphics != 0 {
			out = append(out, q)
		}
	}
	return out
}

// QueueSubmit implements gfx.QueueDevice
func (d *Device) QueueSubmit(queue gfx.Queue, submits []gfx.SubmitInfo, f gfx.Fence) gfx.Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.submitCalls++
	status := gfx.Success
	if s, ok := scripted(d.SubmitStatus, d.submitCalls); ok {
		status = s
	}

	var buffers []gfx.CommandBuffer
	for _, info := range submits {
		buffers = append(buffers, info.CommandBuffers...)
	}
	d.events = append(d.events, Event{Kind: EventSubmit, Fences: []gfx.Fence{f}, Buffers: buffers, Status: status})
	if status < 0 && !status.Stale() {
		return status
	}

	for _, info := range submits {
		d.submits = append(d.submits, Submit{Queue: queue, Info: info, Fence: f})
	}
	if fe, ok := d.fences.Get(uint32(f)); ok {
		fe.submitted = true
		fe.timeouts = d.TimeoutsBeforeSignal
	}
	return status
}

// QueuePresent implements gfx.QueueDevice
func (d *Device) QueuePresent(queue gfx.Queue, info gfx.PresentInfo) gfx.Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.presentCalls++
	status := gfx.Success
	if s, ok := scripted(d.PresentStatus, d.presentCalls); ok {
		status = s
	}
	d.presents = append(d.presents, info)
	d.events = append(d.events, Event{Kind: EventPresent, Image: info.ImageIndex, Status: status})
	return status
}

// SurfaceSupported implements gfx.SwapchainDevice
func (d *Device) SurfaceSupported(family uint32, surface gfx.Surface) bool {
	if d.PresentFamilies == nil {
		return true
	}
	return d.PresentFamilies[family]
}

// SurfaceCapabilities implements gfx.SwapchainDevice
func (d *Device) SurfaceCapabilities(surface gfx.Surface) (gfx.SurfaceCapabilities, gfx.Status) {
	return d.Caps, gfx.Success
}

// SurfaceFormats implements gfx.SwapchainDevice
func (d *Device) SurfaceFormats(surface gfx.Surface) ([]gfx.SurfaceFormat, gfx.Status) {
	return d.Formats, gfx.Success
}

// SurfacePresentModes implements gfx.SwapchainDevice
func (d *Device) SurfacePresentModes(surface gfx.Surface) ([]gfx.PresentMode, gfx.Status) {
	return d.PresentModes, gfx.Success
}

// CreateSwapchain implements gfx.SwapchainDevice
func (d *Device) CreateSwapchain(info gfx.SwapchainCreateInfo) (gfx.Swapchain, gfx.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.create(); s != gfx.Success {
		return 0, s
	}

	sc := &swapchain{info: info}
	for i := uint32(0); i < info.MinImageCount; i++ {
		d.images++
		sc.images = append(sc.images, gfx.Image(d.images))
	}
	d.events = append(d.events, Event{Kind: EventCreateSwapchain})
	return gfx.Swapchain(d.swapchains.Put(sc)), gfx.Success
}

// DestroySwapchain implements gfx.SwapchainDevice
func (d *Device) DestroySwapchain(sc gfx.Swapchain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.swapchains.Take(uint32(sc)); ok {
		d.events = append(d.events, Event{Kind: EventDestroySwapchain})
	}
}

// SwapchainImages implements gfx.SwapchainDevice
func (d *Device) SwapchainImages(sc gfx.Swapchain) ([]gfx.Image, gfx.Status) {
	chain, ok := d.swapchains.Get(uint32(sc))
	if !ok {
		return nil, gfx.ErrorSurfaceLost
	}
	return append([]gfx.Image(nil), chain.images...), gfx.Success
}

// AcquireNextImage implements gfx.SwapchainDevice
func (d *Device) AcquireNextImage(sc gfx.Swapchain, timeout uint64, semaphore gfx.Semaphore) (uint32, gfx.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.acquireCalls++
	chain, ok := d.swapchains.Get(uint32(sc))
	if !ok {
		return 0, gfx.ErrorSurfaceLost
	}

	status := gfx.Success
	if s, ok := scripted(d.AcquireStatus, d.acquireCalls); ok {
		status = s
	}
	if status < 0 {
		d.events = append(d.events, Event{Kind: EventAcquire, Status: status})
		return 0, status
	}

	var idx uint32
	if len(d.AcquireOrder) > 0 {
		idx = d.AcquireOrder[int(chain.next)%len(d.AcquireOrder)]
	} else {
		idx = chain.next % uint32(len(chain.images))
	}
	chain.next++
	d.events = append(d.events, Event{Kind: EventAcquire, Image: idx, Status: status})
	return idx, status
}

// CreateCommandPool implements gfx.CommandDevice
func (d *Device) CreateCommandPool(family uint32) (gfx.CommandPool, gfx.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.create(); s != gfx.Success {
		return 0, s
	}
	return gfx.CommandPool(d.pools.Put(family)), gfx.Success
}

// DestroyCommandPool implements gfx.CommandDevice
func (d *Device) DestroyCommandPool(pool gfx.CommandPool) {
	d.pools.Take(uint32(pool))
	d.buffers.Each(func(h uint32, b *buffer) {
		if b.pool == pool {
			d.buffers.Take(h)
		}
	})
}

// ResetCommandPool implements gfx.CommandDevice
func (d *Device) ResetCommandPool(pool gfx.CommandPool) gfx.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pools.Get(uint32(pool)); !ok {
		return gfx.ErrorDeviceLost
	}
	d.buffers.Each(func(_ uint32, b *buffer) {
		if b.pool == pool {
			b.recording = false
		}
	})
	d.events = append(d.events, Event{Kind: EventResetPool})
	return gfx.Success
}

// AllocateCommandBuffers implements gfx.CommandDevice
func (d *Device) AllocateCommandBuffers(pool gfx.CommandPool, count uint32) ([]gfx.CommandBuffer, gfx.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.create(); s != gfx.Success {
		return nil, s
	}
	out := make([]gfx.CommandBuffer, 0, count)
	for i := uint32(0); i < count; i++ {
		out = append(out, gfx.CommandBuffer(d.buffers.Put(&buffer{pool: pool})))
	}
	return out, gfx.Success
}

// FreeCommandBuffers implements gfx.CommandDevice
func (d *Device) FreeCommandBuffers(pool gfx.CommandPool, buffers []gfx.CommandBuffer) {
	for _, b := range buffers {
		d.buffers.Take(uint32(b))
	}
}

// BeginCommandBuffer implements gfx.CommandDevice
func (d *Device) BeginCommandBuffer(cb gfx.CommandBuffer) gfx.Status {
	b, ok := d.buffers.Get(uint32(cb))
	if !ok || b.recording {
		return gfx.ErrorDeviceLost
	}
	b.recording = true
	return gfx.Success
}

// EndCommandBuffer implements gfx.CommandDevice
func (d *Device) EndCommandBuffer(cb gfx.CommandBuffer) gfx.Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers.Get(uint32(cb))
	if !ok || !b.recording {
		return gfx.ErrorDeviceLost
	}
	b.recording = false
	b.recorded++
	d.events = append(d.events, Event{Kind: EventRecord, Buffers: []gfx.CommandBuffer{cb}})
	return gfx.Success
}

// WaitIdle implements gfx.Device
func (d *Device) WaitIdle() gfx.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, Event{Kind: EventWaitIdle})
	return gfx.Success
}

// Events returns every recorded call in order.
func (d *Device) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.events...)
}

// EventsOf returns the recorded calls of one kind.
func (d *Device) EventsOf(kind EventKind) []Event {
	var out []Event
	for _, e := range d.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Submits returns the accepted submissions.
func (d *Device) Submits() []Submit {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Submit(nil), d.submits...)
}

// Presents returns every presentation request.
func (d *Device) Presents() []gfx.PresentInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gfx.PresentInfo(nil), d.presents...)
}

// Recorded returns how many times cb finished recording.
func (d *Device) Recorded(cb gfx.CommandBuffer) int {
	if b, ok := d.buffers.Get(uint32(cb)); ok {
		return b.recorded
	}
	return 0
}

// Swapchain returns the create info of a live swapchain.
func (d *Device) Swapchain(sc gfx.Swapchain) (gfx.SwapchainCreateInfo, bool) {
	chain, ok := d.swapchains.Get(uint32(sc))
	if !ok {
		return gfx.SwapchainCreateInfo{}, false
	}
	return chain.info, true
}

// Live returns the number of live fences, semaphores, command pools and swapchains.
func (d *Device) Live() (fences, semaphores, pools, swapchains int) {
	return d.fences.Len(), d.semaphores.Len(), d.pools.Len(), d.swapchains.Len()
}

var _ gfx.Device = (*Device)(nil)
