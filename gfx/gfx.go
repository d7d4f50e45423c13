// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines the device boundary that renderers work against.
// Backends hand out opaque handles and report raw statuses, callers
// classify them with Check.
package gfx

// Releasable defines any memory-occupying item that can be freed.
type Releasable interface {

	// Release releases memory occupied by the implementing structure.
	Release()
}

// Handles are indices into backend arenas. The zero value is the null handle.
type (
	Fence         uint32
	Semaphore     uint32
	CommandPool   uint32
	CommandBuffer uint32
	Swapchain     uint32
	Surface       uint32
	Image         uint32
)

// Timeout values for blocking device calls.
const (
	NoTimeout   uint64 = 0
	WaitForever uint64 = ^uint64(0)
)

// Extent2D is a width and height pair in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// Zero reports whether any dimension is zero, as for a minimized window.
func (e Extent2D) Zero() bool {
	return e.Width == 0 || e.Height == 0
}

// Extent3D is a three dimensional extent.
type Extent3D struct {
	Width  uint32
	Height uint32
	Depth  uint32
}

// Format is a texel format, values follow VkFormat.
type Format int32

// FormatUndefined lets the backend pick a format.
const FormatUndefined Format = 0

// ColorSpace values follow VkColorSpaceKHR.
type ColorSpace int32

// ColorSpaceSrgbNonlinear is the only colour space every surface supports.
const ColorSpaceSrgbNonlinear ColorSpace = 0

// SurfaceFormat pairs a format with its colour space.
type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// PresentMode values follow VkPresentModeKHR.
type PresentMode int32

// Present modes.
const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

func (p PresentMode) String() string {
	switch p {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo_relaxed"
	}
	return "unknown"
}

// ImageUsage flags, values follow VkImageUsageFlagBits.
type ImageUsage uint32

// Image usages.
const (
	ImageUsageTransferSrc     ImageUsage = 0x1
	ImageUsageTransferDst     ImageUsage = 0x2
	ImageUsageColorAttachment ImageUsage = 0x10
)

// CompositeAlpha flags, values follow VkCompositeAlphaFlagBitsKHR.
type CompositeAlpha uint32

// Composite alpha modes.
const (
	CompositeAlphaOpaque         CompositeAlpha = 0x1
	CompositeAlphaPreMultiplied  CompositeAlpha = 0x2
	CompositeAlphaPostMultiplied CompositeAlpha = 0x4
	CompositeAlphaInherit        CompositeAlpha = 0x8
)

// SurfaceTransform flags, values follow VkSurfaceTransformFlagBitsKHR.
type SurfaceTransform uint32

// SurfaceTransformIdentity leaves images untransformed.
const SurfaceTransformIdentity SurfaceTransform = 0x1

// UndefinedExtent marks a surface whose size is decided by the swapchain.
const UndefinedExtent uint32 = 0xFFFFFFFF

// SurfaceCapabilities describes what a surface can do.
type SurfaceCapabilities struct {
	MinImageCount           uint32
	MaxImageCount           uint32
	CurrentExtent           Extent2D
	MinImageExtent          Extent2D
	MaxImageExtent          Extent2D
	SupportedTransforms     SurfaceTransform
	CurrentTransform        SurfaceTransform
	SupportedCompositeAlpha CompositeAlpha
	SupportedUsage          ImageUsage
}

// SwapchainCreateInfo carries everything needed to build a swapchain.
type SwapchainCreateInfo struct {
	Surface        Surface
	MinImageCount  uint32
	Format         SurfaceFormat
	Extent         Extent2D
	Usage          ImageUsage
	Transform      SurfaceTransform
	CompositeAlpha CompositeAlpha
	PresentMode    PresentMode
	Clipped        bool
	OldSwapchain   Swapchain
}

// PipelineStage flags, values follow VkPipelineStageFlagBits.
type PipelineStage uint32

// Pipeline stages.
const (
	PipelineStageTopOfPipe             PipelineStage = 0x1
	PipelineStageColorAttachmentOutput PipelineStage = 0x400
	PipelineStageTransfer              PipelineStage = 0x1000
	PipelineStageBottomOfPipe          PipelineStage = 0x2000
	PipelineStageAllCommands           PipelineStage = 0x10000
)

// QueueFlags values follow VkQueueFlagBits.
type QueueFlags uint32

// Queue capabilities.
const (
	QueueGraphics QueueFlags = 0x1
	QueueCompute  QueueFlags = 0x2
	QueueTransfer QueueFlags = 0x4
)

// Queue names a device queue.
type Queue struct {
	Family   uint32
	Index    uint32
	Flags    QueueFlags
	Priority float32
}

// SubmitInfo describes one batch submitted to a queue.
type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	WaitStages       []PipelineStage
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

// PresentInfo describes a single image presentation.
type PresentInfo struct {
	WaitSemaphores []Semaphore
	Swapchain      Swapchain
	ImageIndex     uint32
}
