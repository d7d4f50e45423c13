// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"errors"
	"fmt"

	"github.com/devblok/kframe/core"
	"github.com/devblok/kframe/gfx"
	vk "github.com/devblok/vulkan"
	"github.com/sirupsen/logrus"
)

var _ gfx.Device = (*Device)(nil)

type queue struct {
	info   gfx.Queue
	native vk.Queue
}

type commandBuffer struct {
	pool   gfx.CommandPool
	native vk.CommandBuffer
}

type swapchain struct {
	native vk.Swapchain
	info   gfx.SwapchainCreateInfo
	images []gfx.Image
}

// Device is a logical Vulkan device. Every Vulkan object it creates
// is handed out as a gfx handle.
type Device struct {
	log      logrus.FieldLogger
	instance *Instance

	physical vk.PhysicalDevice
	device   vk.Device
	queues   []queue

	fences     gfx.Arena[vk.Fence]
	semaphores gfx.Arena[vk.Semaphore]
	pools      gfx.Arena[vk.CommandPool]
	buffers    gfx.Arena[commandBuffer]
	swapchains gfx.Arena[*swapchain]
	images     gfx.Arena[vk.Image]
}

// NewDevice creates a logical device on the physical device at index with
// one queue per graphics capable family and the configured device extensions.
func NewDevice(instance *Instance, index int, log logrus.FieldLogger) (*Device, error) {
	if index < 0 || index >= len(instance.availableDevices) {
		return nil, fmt.Errorf("vkr.NewDevice(): no physical device %d", index)
	}
	physical := instance.availableDevices[index]

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(physical, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(physical, &queueFamilyCount, queueFamilies)
	if queueFamilyCount == 0 {
		return nil, errors.New("vk.GetPhysicalDeviceQueueFamilyProperties(): no queuefamilies on GPU")
	}

	var (
		queueInfos []vk.DeviceQueueCreateInfo
		infos      []gfx.Queue
	)
	for family := uint32(0); family < queueFamilyCount; family++ {
		queueFamilies[family].Deref()
		flags := queueFamilies[family].QueueFlags
		if flags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 || queueFamilies[family].QueueCount == 0 {
			continue
		}
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1},
		})
		infos = append(infos, gfx.Queue{
			Family:   family,
			Index:    0,
			Flags:    gfx.QueueFlags(flags) & (gfx.QueueGraphics | gfx.QueueCompute | gfx.QueueTransfer),
			Priority: 1,
		})
	}
	if len(queueInfos) == 0 {
		return nil, errors.New("vulkan error: could not find a queue family with graphics support")
	}

	extensions := instance.cfg.DeviceExtensions
	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}

	var device vk.Device
	if err := vk.Error(vk.CreateDevice(physical, &dci, nil, &device)); err != nil {
		return nil, errors.New("vk.CreateDevice(): " + err.Error())
	}

	d := &Device{
		log:      core.Logger(log).WithField("gpu", index),
		instance: instance,
		physical: physical,
		device:   device,
	}
	for _, info := range infos {
		var native vk.Queue
		vk.GetDeviceQueue(device, info.Family, info.Index, &native)
		d.queues = append(d.queues, queue{info: info, native: native})
	}
	d.log.WithField("queues", len(d.queues)).Debug("logical device created")
	return d, nil
}

// CreateFence implements gfx.SyncDevice
func (d *Device) CreateFence(signaled bool) (gfx.Fence, gfx.Status) {
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fci.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if ret := vk.CreateFence(d.device, &fci, nil, &fence); ret != vk.Success {
		return 0, status(ret)
	}
	return gfx.Fence(d.fences.Put(fence)), gfx.Success
}

// DestroyFence implements gfx.SyncDevice
func (d *Device) DestroyFence(f gfx.Fence) {
	if fence, ok := d.fences.Take(uint32(f)); ok {
		vk.DestroyFence(d.device, fence, nil)
	}
}

// WaitForFences implements gfx.SyncDevice
func (d *Device) WaitForFences(fences []gfx.Fence, timeout uint64) gfx.Status {
	native, ok := d.nativeFences(fences)
	if !ok {
		return gfx.ErrorInitializationFailed
	}
	return status(vk.WaitForFences(d.device, uint32(len(native)), native, vk.True, uint(timeout)))
}

// ResetFences implements gfx.SyncDevice
func (d *Device) ResetFences(fences []gfx.Fence) gfx.Status {
	native, ok := d.nativeFences(fences)
	if !ok {
		return gfx.ErrorInitializationFailed
	}
	return status(vk.ResetFences(d.device, uint32(len(native)), native))
}

func (d *Device) nativeFences(fences []gfx.Fence) ([]vk.Fence, bool) {
	native := make([]vk.Fence, 0, len(fences))
	for _, f := range fences {
		fence, ok := d.fences.Get(uint32(f))
		if !ok {
			return nil, false
		}
		native = append(native, fence)
	}
	return native, true
}

// CreateSemaphore implements gfx.SyncDevice
func (d *Device) CreateSemaphore() (gfx.Semaphore, gfx.Status) {
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if ret := vk.CreateSemaphore(d.device, &sci, nil, &semaphore); ret != vk.Success {
		return 0, status(ret)
	}
	return gfx.Semaphore(d.semaphores.Put(semaphore)), gfx.Success
}

// DestroySemaphore implements gfx.SyncDevice
func (d *Device) DestroySemaphore(s gfx.Semaphore) {
	if semaphore, ok := d.semaphores.Take(uint32(s)); ok {
		vk.DestroySemaphore(d.device, semaphore, nil)
	}
}

func (d *Device) nativeSemaphores(semaphores []gfx.Semaphore) ([]vk.Semaphore, bool) {
	native := make([]vk.Semaphore, 0, len(semaphores))
	for _, s := range semaphores {
		semaphore, ok := d.semaphores.Get(uint32(s))
		if !ok {
			return nil, false
		}
		native = append(native, semaphore)
	}
	return native, true
}

// GraphicsQueues implements gfx.QueueDevice
func (d *Device) GraphicsQueues() []gfx.Queue {
	out := make([]gfx.Queue, 0, len(d.queues))
	for _, q := range d.queues {
		out = append(out, q.info)
	}
	return out
}

func (d *Device) nativeQueue(q gfx.Queue) (vk.Queue, bool) {
	for _, candidate := range d.queues {
		if candidate.info.Family == q.Family && candidate.info.Index == q.Index {
			return candidate.native, true
		}
	}
	return nil, false
}

// QueueSubmit implements gfx.QueueDevice
func (d *Device) QueueSubmit(q gfx.Queue, submits []gfx.SubmitInfo, f gfx.Fence) gfx.Status {
	native, ok := d.nativeQueue(q)
	if !ok {
		return gfx.ErrorInitializationFailed
	}

	infos := make([]vk.SubmitInfo, 0, len(submits))
	for _, s := range submits {
		wait, ok := d.nativeSemaphores(s.WaitSemaphores)
		if !ok {
			return gfx.ErrorInitializationFailed
		}
		signal, ok := d.nativeSemaphores(s.SignalSemaphores)
		if !ok {
			return gfx.ErrorInitializationFailed
		}
		buffers := make([]vk.CommandBuffer, 0, len(s.CommandBuffers))
		for _, cb := range s.CommandBuffers {
			buf, ok := d.buffers.Get(uint32(cb))
			if !ok {
				return gfx.ErrorInitializationFailed
			}
			buffers = append(buffers, buf.native)
		}
		stages := make([]vk.PipelineStageFlags, 0, len(s.WaitStages))
		for _, stage := range s.WaitStages {
			stages = append(stages, vk.PipelineStageFlags(stage))
		}

		infos = append(infos, vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   uint32(len(wait)),
			PWaitSemaphores:      wait,
			PWaitDstStageMask:    stages,
			CommandBufferCount:   uint32(len(buffers)),
			PCommandBuffers:      buffers,
			SignalSemaphoreCount: uint32(len(signal)),
			PSignalSemaphores:    signal,
		})
	}

	var fence vk.Fence
	if f != 0 {
		nf, ok := d.fences.Get(uint32(f))
		if !ok {
			return gfx.ErrorInitializationFailed
		}
		fence = nf
	}
	return status(vk.QueueSubmit(native, uint32(len(infos)), infos, fence))
}

// QueuePresent implements gfx.QueueDevice
func (d *Device) QueuePresent(q gfx.Queue, info gfx.PresentInfo) gfx.Status {
	native, ok := d.nativeQueue(q)
	if !ok {
		return gfx.ErrorInitializationFailed
	}
	wait, ok := d.nativeSemaphores(info.WaitSemaphores)
	if !ok {
		return gfx.ErrorInitializationFailed
	}
	sc, ok := d.swapchains.Get(uint32(info.Swapchain))
	if !ok {
		return gfx.ErrorInitializationFailed
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(wait)),
		PWaitSemaphores:    wait,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.native},
		PImageIndices:      []uint32{info.ImageIndex},
	}
	return status(vk.QueuePresent(native, &presentInfo))
}

// SurfaceSupported implements gfx.SwapchainDevice
func (d *Device) SurfaceSupported(family uint32, surface gfx.Surface) bool {
	var supported vk.Bool32
	ret := vk.GetPhysicalDeviceSurfaceSupport(d.physical, family, d.instance.NativeSurface(surface), &supported)
	return ret == vk.Success && supported.B()
}

// SurfaceCapabilities implements gfx.SwapchainDevice
func (d *Device) SurfaceCapabilities(surface gfx.Surface) (gfx.SurfaceCapabilities, gfx.Status) {
	var caps vk.SurfaceCapabilities
	if ret := vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, d.instance.NativeSurface(surface), &caps); ret != vk.Success {
		return gfx.SurfaceCapabilities{}, status(ret)
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return surfaceCapabilities(caps), gfx.Success
}

// SurfaceFormats implements gfx.SwapchainDevice
func (d *Device) SurfaceFormats(surface gfx.Surface) ([]gfx.SurfaceFormat, gfx.Status) {
	native := d.instance.NativeSurface(surface)

	var count uint32
	if ret := vk.GetPhysicalDeviceSurfaceFormats(d.physical, native, &count, nil); ret != vk.Success {
		return nil, status(ret)
	}
	formats := make([]vk.SurfaceFormat, count)
	if ret := vk.GetPhysicalDeviceSurfaceFormats(d.physical, native, &count, formats); ret != vk.Success {
		return nil, status(ret)
	}

	out := make([]gfx.SurfaceFormat, 0, count)
	for _, f := range formats[:count] {
		f.Deref()
		out = append(out, gfx.SurfaceFormat{Format: gfx.Format(f.Format), ColorSpace: gfx.ColorSpace(f.ColorSpace)})
	}
	return out, gfx.Success
}

// SurfacePresentModes implements gfx.SwapchainDevice
func (d *Device) SurfacePresentModes(surface gfx.Surface) ([]gfx.PresentMode, gfx.Status) {
	native := d.instance.NativeSurface(surface)

	var count uint32
	if ret := vk.GetPhysicalDeviceSurfacePresentModes(d.physical, native, &count, nil); ret != vk.Success {
		return nil, status(ret)
	}
	modes := make([]vk.PresentMode, count)
	if ret := vk.GetPhysicalDeviceSurfacePresentModes(d.physical, native, &count, modes); ret != vk.Success {
		return nil, status(ret)
	}
	return presentModes(modes[:count]), gfx.Success
}

// CreateSwapchain implements gfx.SwapchainDevice
func (d *Device) CreateSwapchain(info gfx.SwapchainCreateInfo) (gfx.Swapchain, gfx.Status) {
	scci := swapchainCreateInfo(info, d.instance.NativeSurface(info.Surface))
	if old, ok := d.swapchains.Get(uint32(info.OldSwapchain)); ok {
		scci.OldSwapchain = old.native
	}

	var native vk.Swapchain
	if ret := vk.CreateSwapchain(d.device, &scci, nil, &native); ret != vk.Success {
		return 0, status(ret)
	}

	var numImages uint32
	if ret := vk.GetSwapchainImages(d.device, native, &numImages, nil); ret != vk.Success {
		vk.DestroySwapchain(d.device, native, nil)
		return 0, status(ret)
	}
	images := make([]vk.Image, numImages)
	if ret := vk.GetSwapchainImages(d.device, native, &numImages, images); ret != vk.Success {
		vk.DestroySwapchain(d.device, native, nil)
		return 0, status(ret)
	}

	sc := &swapchain{native: native, info: info}
	for _, img := range images[:numImages] {
		sc.images = append(sc.images, gfx.Image(d.images.Put(img)))
	}
	return gfx.Swapchain(d.swapchains.Put(sc)), gfx.Success
}

// DestroySwapchain implements gfx.SwapchainDevice
func (d *Device) DestroySwapchain(handle gfx.Swapchain) {
	sc, ok := d.swapchains.Take(uint32(handle))
	if !ok {
		return
	}
	for _, img := range sc.images {
		d.images.Take(uint32(img))
	}
	vk.DestroySwapchain(d.device, sc.native, nil)
}

// SwapchainImages implements gfx.SwapchainDevice
func (d *Device) SwapchainImages(handle gfx.Swapchain) ([]gfx.Image, gfx.Status) {
	sc, ok := d.swapchains.Get(uint32(handle))
	if !ok {
		return nil, gfx.ErrorInitializationFailed
	}
	return append([]gfx.Image(nil), sc.images...), gfx.Success
}

// AcquireNextImage implements gfx.SwapchainDevice
func (d *Device) AcquireNextImage(handle gfx.Swapchain, timeout uint64, s gfx.Semaphore) (uint32, gfx.Status) {
	sc, ok := d.swapchains.Get(uint32(handle))
	if !ok {
		return 0, gfx.ErrorInitializationFailed
	}
	semaphore, ok := d.semaphores.Get(uint32(s))
	if !ok {
		return 0, gfx.ErrorInitializationFailed
	}

	var index uint32
	ret := vk.AcquireNextImage(d.device, sc.native, uint(timeout), semaphore, nil, &index)
	return index, status(ret)
}

// CreateCommandPool implements gfx.CommandDevice
func (d *Device) CreateCommandPool(family uint32) (gfx.CommandPool, gfx.Status) {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: family,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
	}
	var pool vk.CommandPool
	if ret := vk.CreateCommandPool(d.device, &cpci, nil, &pool); ret != vk.Success {
		return 0, status(ret)
	}
	return gfx.CommandPool(d.pools.Put(pool)), gfx.Success
}

// DestroyCommandPool implements gfx.CommandDevice. Buffers of the pool are freed with it.
func (d *Device) DestroyCommandPool(handle gfx.CommandPool) {
	pool, ok := d.pools.Take(uint32(handle))
	if !ok {
		return
	}
	d.buffers.Each(func(h uint32, cb commandBuffer) {
		if cb.pool == handle {
			d.buffers.Take(h)
		}
	})
	vk.DestroyCommandPool(d.device, pool, nil)
}

// ResetCommandPool implements gfx.CommandDevice
func (d *Device) ResetCommandPool(handle gfx.CommandPool) gfx.Status {
	pool, ok := d.pools.Get(uint32(handle))
	if !ok {
		return gfx.ErrorInitializationFailed
	}
	return status(vk.ResetCommandPool(d.device, pool, 0))
}

// AllocateCommandBuffers implements gfx.CommandDevice
func (d *Device) AllocateCommandBuffers(handle gfx.CommandPool, count uint32) ([]gfx.CommandBuffer, gfx.Status) {
	pool, ok := d.pools.Get(uint32(handle))
	if !ok {
		return nil, gfx.ErrorInitializationFailed
	}

	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	}
	native := make([]vk.CommandBuffer, count)
	if ret := vk.AllocateCommandBuffers(d.device, &cbai, native); ret != vk.Success {
		return nil, status(ret)
	}

	out := make([]gfx.CommandBuffer, 0, count)
	for _, cb := range native {
		out = append(out, gfx.CommandBuffer(d.buffers.Put(commandBuffer{pool: handle, native: cb})))
	}
	return out, gfx.Success
}

// FreeCommandBuffers implements gfx.CommandDevice
func (d *Device) FreeCommandBuffers(handle gfx.CommandPool, buffers []gfx.CommandBuffer) {
	pool, ok := d.pools.Get(uint32(handle))
	if !ok {
		return
	}
	native := make([]vk.CommandBuffer, 0, len(buffers))
	for _, b := range buffers {
		if cb, ok := d.buffers.Take(uint32(b)); ok {
			native = append(native, cb.native)
		}
	}
	if len(native) > 0 {
		vk.FreeCommandBuffers(d.device, pool, uint32(len(native)), native)
	}
}

// BeginCommandBuffer implements gfx.CommandDevice
func (d *Device) BeginCommandBuffer(handle gfx.CommandBuffer) gfx.Status {
	cb, ok := d.buffers.Get(uint32(handle))
	if !ok {
		return gfx.ErrorInitializationFailed
	}
	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	return status(vk.BeginCommandBuffer(cb.native, &cbbi))
}

// EndCommandBuffer implements gfx.CommandDevice
func (d *Device) EndCommandBuffer(handle gfx.CommandBuffer) gfx.Status {
	cb, ok := d.buffers.Get(uint32(handle))
	if !ok {
		return gfx.ErrorInitializationFailed
	}
	return status(vk.EndCommandBuffer(cb.native))
}

// WaitIdle implements gfx.Device
func (d *Device) WaitIdle() gfx.Status {
	return status(vk.DeviceWaitIdle(d.device))
}

// Native returns the logical device
func (d *Device) Native() vk.Device {
	return d.device
}

// NativeCommandBuffer returns the Vulkan command buffer behind the handle.
func (d *Device) NativeCommandBuffer(handle gfx.CommandBuffer) (vk.CommandBuffer, bool) {
	cb, ok := d.buffers.Get(uint32(handle))
	return cb.native, ok
}

// NativeImage returns the Vulkan image behind the handle.
func (d *Device) NativeImage(handle gfx.Image) (vk.Image, bool) {
	return d.images.Get(uint32(handle))
}

// Destroy releases every object still alive and the device.
func (d *Device) Destroy() {
	vk.DeviceWaitIdle(d.device)

	d.swapchains.Each(func(h uint32, _ *swapchain) {
		d.DestroySwapchain(gfx.Swapchain(h))
	})
	d.pools.Each(func(h uint32, _ vk.CommandPool) {
		d.DestroyCommandPool(gfx.CommandPool(h))
	})
	d.semaphores.Each(func(h uint32, _ vk.Semaphore) {
		d.DestroySemaphore(gfx.Semaphore(h))
	})
	d.fences.Each(func(h uint32, _ vk.Fence) {
		d.DestroyFence(gfx.Fence(h))
	})
	vk.DestroyDevice(d.device, nil)
}
