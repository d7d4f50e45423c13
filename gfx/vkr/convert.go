// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/devblok/kframe/gfx"
	vk "github.com/devblok/vulkan"
)

// gfx.Status shares the numeric values of VkResult.
func status(ret vk.Result) gfx.Status {
	return gfx.Status(ret)
}

func presentModes(modes []vk.PresentMode) []gfx.PresentMode {
	out := make([]gfx.PresentMode, 0, len(modes))
	for _, m := range modes {
		out = append(out, gfx.PresentMode(m))
	}
	return out
}

func extent(e vk.Extent2D) gfx.Extent2D {
	return gfx.Extent2D{Width: e.Width, Height: e.Height}
}

// surfaceCapabilities expects caps and its extents to be dereferenced.
func surfaceCapabilities(caps vk.SurfaceCapabilities) gfx.SurfaceCapabilities {
	return gfx.SurfaceCapabilities{
		MinImageCount:           caps.MinImageCount,
		MaxImageCount:           caps.MaxImageCount,
		CurrentExtent:           extent(caps.CurrentExtent),
		MinImageExtent:          extent(caps.MinImageExtent),
		MaxImageExtent:          extent(caps.MaxImageExtent),
		SupportedTransforms:     gfx.SurfaceTransform(caps.SupportedTransforms),
		CurrentTransform:        gfx.SurfaceTransform(caps.CurrentTransform),
		SupportedCompositeAlpha: gfx.CompositeAlpha(caps.SupportedCompositeAlpha),
		SupportedUsage:          gfx.ImageUsage(caps.SupportedUsageFlags),
	}
}

func swapchainCreateInfo(info gfx.SwapchainCreateInfo, surface vk.Surface) vk.SwapchainCreateInfo {
	clipped := vk.False
	if info.Clipped {
		clipped = vk.True
	}
	return vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         surface,
		MinImageCount:   info.MinImageCount,
		ImageFormat:     vk.Format(info.Format.Format),
		ImageColorSpace: vk.ColorSpace(info.Format.ColorSpace),
		ImageExtent: vk.Extent2D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
		},
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(info.Usage),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     vk.SurfaceTransformFlagBits(info.Transform),
		CompositeAlpha:   vk.CompositeAlphaFlagBits(info.CompositeAlpha),
		PresentMode:      vk.PresentMode(info.PresentMode),
		Clipped:          vk.Bool32(clipped),
	}
}
