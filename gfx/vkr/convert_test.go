// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"testing"

	"github.com/devblok/kframe/gfx"
	vk "github.com/devblok/vulkan"
	"github.com/stretchr/testify/assert"
)

func TestStatusMatchesResult(t *testing.T) {
	cases := map[vk.Result]gfx.Status{
		vk.Success:              gfx.Success,
		vk.NotReady:             gfx.NotReady,
		vk.Timeout:              gfx.Timeout,
		vk.Incomplete:           gfx.Incomplete,
		vk.Suboptimal:           gfx.Suboptimal,
		vk.ErrorOutOfHostMemory: gfx.ErrorOutOfHostMemory,
		vk.ErrorDeviceLost:      gfx.ErrorDeviceLost,
		vk.ErrorSurfaceLost:     gfx.ErrorSurfaceLost,
		vk.ErrorOutOfDate:       gfx.ErrorOutOfDate,
	}
	for ret, want := range cases {
		assert.Equal(t, want, status(ret), "result %d", ret)
	}
	assert.True(t, status(vk.ErrorOutOfDate).Stale())
	assert.True(t, status(vk.Suboptimal).Stale())
}

func TestPresentModes(t *testing.T) {
	modes := presentModes([]vk.PresentMode{
		vk.PresentModeImmediate,
		vk.PresentModeMailbox,
		vk.PresentModeFifo,
		vk.PresentModeFifoRelaxed,
	})
	assert.Equal(t, []gfx.PresentMode{
		gfx.PresentModeImmediate,
		gfx.PresentModeMailbox,
		gfx.PresentModeFifo,
		gfx.PresentModeFifoRelaxed,
	}, modes)
	assert.Empty(t, presentModes(nil))
}

func TestSurfaceCapabilities(t *testing.T) {
	caps := surfaceCapabilities(vk.SurfaceCapabilities{
		MinImageCount:           2,
		MaxImageCount:           0,
		CurrentExtent:           vk.Extent2D{Width: 1280, Height: 720},
		MinImageExtent:          vk.Extent2D{Width: 1, Height: 1},
		MaxImageExtent:          vk.Extent2D{Width: 4096, Height: 4096},
		SupportedTransforms:     vk.SurfaceTransformFlags(vk.SurfaceTransformIdentityBit),
		CurrentTransform:        vk.SurfaceTransformIdentityBit,
		SupportedCompositeAlpha: vk.CompositeAlphaFlags(vk.CompositeAlphaOpaqueBit),
		SupportedUsageFlags:     vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
	})

	assert.Equal(t, uint32(2), caps.MinImageCount)
	assert.Equal(t, uint32(0), caps.MaxImageCount)
	assert.Equal(t, gfx.Extent2D{Width: 1280, Height: 720}, caps.CurrentExtent)
	assert.Equal(t, gfx.Extent2D{Width: 4096, Height: 4096}, caps.MaxImageExtent)
	assert.Equal(t, gfx.SurfaceTransformIdentity, caps.CurrentTransform)
	assert.Equal(t, gfx.CompositeAlphaOpaque, caps.SupportedCompositeAlpha)
	assert.Equal(t, gfx.ImageUsageColorAttachment|gfx.ImageUsageTransferDst, caps.SupportedUsage)
}

func TestSwapchainCreateInfo(t *testing.T) {
	info := swapchainCreateInfo(gfx.SwapchainCreateInfo{
		MinImageCount:  3,
		Format:         gfx.SurfaceFormat{Format: 44, ColorSpace: gfx.ColorSpaceSrgbNonlinear},
		Extent:         gfx.Extent2D{Width: 800, Height: 600},
		Usage:          gfx.ImageUsageColorAttachment | gfx.ImageUsageTransferSrc,
		Transform:      gfx.SurfaceTransformIdentity,
		CompositeAlpha: gfx.CompositeAlphaOpaque,
		PresentMode:    gfx.PresentModeMailbox,
		Clipped:        true,
	}, nil)

	assert.Equal(t, uint32(3), info.MinImageCount)
	assert.Equal(t, vk.Format(44), info.ImageFormat)
	assert.Equal(t, vk.ColorSpaceSrgbNonlinear, info.ImageColorSpace)
	assert.Equal(t, uint32(800), info.ImageExtent.Width)
	assert.Equal(t, uint32(600), info.ImageExtent.Height)
	assert.Equal(t, vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit|vk.ImageUsageTransferSrcBit), info.ImageUsage)
	assert.Equal(t, vk.SurfaceTransformIdentityBit, info.PreTransform)
	assert.Equal(t, vk.CompositeAlphaOpaqueBit, info.CompositeAlpha)
	assert.Equal(t, vk.PresentModeMailbox, info.PresentMode)
	assert.Equal(t, vk.Bool32(vk.True), info.Clipped)
	assert.Equal(t, uint32(1), info.ImageArrayLayers)
	assert.Equal(t, vk.SharingModeExclusive, info.ImageSharingMode)
}

func TestSafeStrings(t *testing.T) {
	assert.Equal(t, []string{"VK_KHR_swapchain\x00", "\x00"}, safeStrings([]string{"VK_KHR_swapchain", ""}))
	assert.Empty(t, safeStrings(nil))
}

func TestHasExtension(t *testing.T) {
	info := PhysicalDeviceInfo{Extensions: []string{"VK_KHR_swapchain", "VK_KHR_maintenance1"}}
	assert.True(t, info.HasExtension("VK_KHR_swapchain"))
	assert.False(t, info.HasExtension("VK_KHR_ray_tracing"))
}
