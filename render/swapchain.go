// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"fmt"

	"github.com/devblok/kframe/core"
	"github.com/devblok/kframe/gfx"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// Target is a presentation target the renderer draws into.
type Target interface {
	Device() gfx.Device
	BackbufferCount() uint32

	// RequestReload marks the target stale. Repeated requests collapse into one.
	RequestReload()
	ReloadRequested() bool

	SurfaceSupported(family uint32) bool
	Handle() gfx.Swapchain
}

// SwapchainListener observes backbuffer recreation. Destroyed is called
// before the backbuffers go away, Created once the new ones are in place.
// Either may be nil.
type SwapchainListener struct {
	Created   func() error
	Destroyed func()
}

// Swapchain owns the presentable images of a surface and rebuilds them on demand.
// The surface itself belongs to the caller.
type Swapchain struct {
	id  core.ID
	dev gfx.Device
	log logrus.FieldLogger
	cfg core.SwapchainConfiguration

	surface gfx.Surface
	format  gfx.SurfaceFormat
	size    gfx.Extent2D

	handle      gfx.Swapchain
	backbuffers []gfx.Image
	presentMode gfx.PresentMode
	reload      bool

	listeners *core.Listeners[SwapchainListener]
}

// NewSwapchain creates an empty swapchain on dev.
func NewSwapchain(ids *core.IDs, dev gfx.Device, cfg core.SwapchainConfiguration, log logrus.FieldLogger) *Swapchain {
	id := ids.Next()
	return &Swapchain{
		id:        id,
		dev:       dev,
		cfg:       cfg,
		log:       core.Logger(log).WithField("swapchain", id),
		listeners: core.NewListeners[SwapchainListener](ids),
	}
}

// Create builds the chain on surface. A zero format picks the first one the surface offers.
func (s *Swapchain) Create(surface gfx.Surface, format gfx.SurfaceFormat, size gfx.Extent2D) error {
	formats, status := s.dev.SurfaceFormats(surface)
	if err := gfx.Failed("vk.GetPhysicalDeviceSurfaceFormats", status); err != nil {
		return fmt.Errorf("%w: %w", ErrSetup, err)
	}
	if len(formats) == 0 {
		return fmt.Errorf("%w: surface reports no formats", ErrSetup)
	}
	if format.Format == gfx.FormatUndefined || !slices.Contains(formats, format) {
		format = formats[0]
	}

	s.surface = surface
	s.format = format
	s.size = size

	if size.Zero() {
		s.reload = true
		return nil
	}
	return s.setup()
}

// Resize rebuilds the backbuffers at size. A zero size tears the chain down
// and leaves it waiting for a usable size.
func (s *Swapchain) Resize(size gfx.Extent2D) error {
	if err := gfx.Failed("vk.DeviceWaitIdle", s.dev.WaitIdle()); err != nil {
		return err
	}

	if len(s.backbuffers) > 0 {
		s.listeners.Each(func(l SwapchainListener) bool {
			if l.Destroyed != nil {
				l.Destroyed()
			}
			return true
		})
		s.backbuffers = nil
	}

	s.size = size
	if size.Zero() {
		s.reload = true
		s.log.Debug("swapchain minimized")
		return nil
	}

	if err := s.setup(); err != nil {
		return err
	}

	var err error
	s.listeners.Reverse(func(l SwapchainListener) bool {
		if l.Created == nil {
			return true
		}
		err = l.Created()
		return err == nil
	})
	return err
}

// Reload rebuilds the chain at its current size.
func (s *Swapchain) Reload() error {
	return s.Resize(s.size)
}

func (s *Swapchain) setup() error {
	modes, status := s.dev.SurfacePresentModes(s.surface)
	if err := gfx.Failed("vk.GetPhysicalDeviceSurfacePresentModes", status); err != nil {
		return fmt.Errorf("%w: %w", ErrSetup, err)
	}
	if len(modes) == 0 {
		return fmt.Errorf("%w: surface reports no present modes", ErrSetup)
	}

	caps, status := s.dev.SurfaceCapabilities(s.surface)
	if err := gfx.Failed("vk.GetPhysicalDeviceSurfaceCapabilities", status); err != nil {
		return fmt.Errorf("%w: %w", ErrSetup, err)
	}

	info := s.createInfo(caps, modes)
	old := s.handle

	handle, status := s.dev.CreateSwapchain(info)
	if err := gfx.Failed("vk.CreateSwapchain", status); err != nil {
		return fmt.Errorf("%w: %w", ErrSetup, err)
	}

	images, status := s.dev.SwapchainImages(handle)
	if err := gfx.Failed("vk.GetSwapchainImages", status); err != nil {
		s.dev.DestroySwapchain(handle)
		return fmt.Errorf("%w: %w", ErrSetup, err)
	}

	if old != 0 {
		s.dev.DestroySwapchain(old)
	}
	s.handle = handle
	s.backbuffers = images
	s.presentMode = info.PresentMode
	s.reload = false

	s.log.WithFields(logrus.Fields{
		"width":   s.size.Width,
		"height":  s.size.Height,
		"images":  len(images),
		"present": info.PresentMode,
	}).Debug("swapchain created")
	return nil
}

func (s *Swapchain) createInfo(caps gfx.SurfaceCapabilities, modes []gfx.PresentMode) gfx.SwapchainCreateInfo {
	info := gfx.SwapchainCreateInfo{
		Surface:        s.surface,
		Format:         s.format,
		Usage:          gfx.ImageUsageColorAttachment,
		Transform:      gfx.SurfaceTransformIdentity,
		CompositeAlpha: gfx.CompositeAlphaOpaque,
		PresentMode:    choosePresentMode(modes, s.cfg.VSync, s.cfg.TripleBuffer),
		Clipped:        true,
		OldSwapchain:   s.handle,
	}

	info.MinImageCount = caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && info.MinImageCount > caps.MaxImageCount {
		info.MinImageCount = caps.MaxImageCount
	}

	if caps.CurrentExtent.Width != gfx.UndefinedExtent {
		s.size = caps.CurrentExtent
	}
	info.Extent = s.size

	if caps.SupportedTransforms&gfx.SurfaceTransformIdentity == 0 {
		info.Transform = caps.CurrentTransform
	}

	if caps.SupportedUsage&gfx.ImageUsageTransferSrc != 0 {
		info.Usage |= gfx.ImageUsageTransferSrc
	}
	if caps.SupportedUsage&gfx.ImageUsageTransferDst != 0 {
		info.Usage |= gfx.ImageUsageTransferDst
	}

	for _, alpha := range []gfx.CompositeAlpha{
		gfx.CompositeAlphaOpaque,
		gfx.CompositeAlphaPreMultiplied,
		gfx.CompositeAlphaPostMultiplied,
		gfx.CompositeAlphaInherit,
	} {
		if caps.SupportedCompositeAlpha&alpha != 0 {
			info.CompositeAlpha = alpha
			break
		}
	}
	return info
}

func choosePresentMode(modes []gfx.PresentMode, vsync, tripleBuffer bool) gfx.PresentMode {
	if vsync {
		return gfx.PresentModeFifo
	}

	preference := []gfx.PresentMode{gfx.PresentModeImmediate, gfx.PresentModeMailbox}
	if tripleBuffer {
		preference = []gfx.PresentMode{gfx.PresentModeMailbox, gfx.PresentModeImmediate}
	}
	for _, mode := range preference {
		if slices.Contains(modes, mode) {
			return mode
		}
	}
	return gfx.PresentModeFifo
}

// Destroy tears the chain down. The surface is left to its owner.
func (s *Swapchain) Destroy() {
	s.dev.WaitIdle()
	if len(s.backbuffers) > 0 {
		s.listeners.Each(func(l SwapchainListener) bool {
			if l.Destroyed != nil {
				l.Destroyed()
			}
			return true
		})
	}
	s.backbuffers = nil
	if s.handle != 0 {
		s.dev.DestroySwapchain(s.handle)
		s.handle = 0
	}
}

// AddListener registers l and returns its token.
func (s *Swapchain) AddListener(l SwapchainListener) core.ID {
	return s.listeners.Add(l)
}

// RemoveListener unregisters the listener with the given token.
func (s *Swapchain) RemoveListener(id core.ID) bool {
	return s.listeners.Remove(id)
}

// ID returns the swapchain identity, stable across resizes.
func (s *Swapchain) ID() core.ID {
	return s.id
}

// Device implements Target
func (s *Swapchain) Device() gfx.Device {
	return s.dev
}

// BackbufferCount implements Target
func (s *Swapchain) BackbufferCount() uint32 {
	return uint32(len(s.backbuffers))
}

// Backbuffers returns the current presentable images.
func (s *Swapchain) Backbuffers() []gfx.Image {
	return s.backbuffers
}

// RequestReload implements Target
func (s *Swapchain) RequestReload() {
	if !s.reload {
		s.log.Debug("swapchain reload requested")
	}
	s.reload = true
}

// ReloadRequested implements Target
func (s *Swapchain) ReloadRequested() bool {
	return s.reload
}

// SurfaceSupported implements Target
func (s *Swapchain) SurfaceSupported(family uint32) bool {
	return s.dev.SurfaceSupported(family, s.surface)
}

// Handle implements Target
func (s *Swapchain) Handle() gfx.Swapchain {
	return s.handle
}

// Surface returns the surface the chain presents to.
func (s *Swapchain) Surface() gfx.Surface {
	return s.surface
}

// Format returns the backbuffer format.
func (s *Swapchain) Format() gfx.SurfaceFormat {
	return s.format
}

// Size returns the backbuffer size.
func (s *Swapchain) Size() gfx.Extent2D {
	return s.size
}

// PresentMode returns the present mode of the current chain.
func (s *Swapchain) PresentMode() gfx.PresentMode {
	return s.presentMode
}

var _ Target = (*Swapchain)(nil)
