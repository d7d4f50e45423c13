// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// SyncDevice creates and drives synchronization primitives.
type SyncDevice interface {
	// CreateFence creates a fence, signaled when asked to.
	CreateFence(signaled bool) (Fence, Status)
	DestroyFence(Fence)

	// WaitForFences waits for all fences up to timeout nanoseconds.
	// Returns Timeout when the fences are still unsignaled.
	WaitForFences(fences []Fence, timeout uint64) Status
	ResetFences(fences []Fence) Status

	CreateSemaphore() (Semaphore, Status)
	DestroySemaphore(Semaphore)
}

// QueueDevice exposes the device queues.
type QueueDevice interface {
	// GraphicsQueues lists the queues that support graphics, best first.
	GraphicsQueues() []Queue
	QueueSubmit(queue Queue, submits []SubmitInfo, fence Fence) Status
	QueuePresent(queue Queue, info PresentInfo) Status
}

// SwapchainDevice creates swapchains on surfaces.
type SwapchainDevice interface {
	SurfaceSupported(family uint32, surface Surface) bool
	SurfaceCapabilities(surface Surface) (SurfaceCapabilities, Status)
	SurfaceFormats(surface Surface) ([]SurfaceFormat, Status)
	SurfacePresentModes(surface Surface) ([]PresentMode, Status)

	CreateSwapchain(info SwapchainCreateInfo) (Swapchain, Status)
	DestroySwapchain(Swapchain)
	SwapchainImages(Swapchain) ([]Image, Status)

	// AcquireNextImage returns the index of the next presentable image,
	// signaling semaphore once it can be written.
	AcquireNextImage(sc Swapchain, timeout uint64, semaphore Semaphore) (uint32, Status)
}

// CommandDevice manages command pools and buffers.
type CommandDevice interface {
	CreateCommandPool(family uint32) (CommandPool, Status)
	DestroyCommandPool(CommandPool)
	ResetCommandPool(CommandPool) Status
	AllocateCommandBuffers(pool CommandPool, count uint32) ([]CommandBuffer, Status)
	FreeCommandBuffers(pool CommandPool, buffers []CommandBuffer)

	// BeginCommandBuffer starts one-time-submit recording.
	BeginCommandBuffer(CommandBuffer) Status
	EndCommandBuffer(CommandBuffer) Status
}

// Device is the full device boundary.
type Device interface {
	SyncDevice
	QueueDevice
	SwapchainDevice
	CommandDevice

	// WaitIdle blocks until the device has finished all work.
	WaitIdle() Status
}
