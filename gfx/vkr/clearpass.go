// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"errors"
	"fmt"
	"sync"

	"github.com/devblok/kframe/core"
	"github.com/devblok/kframe/gfx"
	"github.com/devblok/kframe/render"
	vk "github.com/devblok/vulkan"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/sirupsen/logrus"
)

// ClearPass clears the backbuffers of a swapchain to a color. It owns a render
// pass with one framebuffer per backbuffer and rebuilds them with the swapchain.
type ClearPass struct {
	log logrus.FieldLogger
	dev *Device
	sc  *render.Swapchain

	listener core.ID

	renderPass   vk.RenderPass
	views        []vk.ImageView
	framebuffers []vk.Framebuffer
	extent       vk.Extent2D

	colorLock sync.RWMutex
	color     mgl32.Vec4
}

// NewClearPass builds the pass for the current backbuffers of sc, if any,
// and follows its recreation from then on.
func NewClearPass(dev *Device, sc *render.Swapchain, log logrus.FieldLogger) (*ClearPass, error) {
	c := &ClearPass{
		log:   core.Logger(log).WithField("swapchain", sc.ID()),
		dev:   dev,
		sc:    sc,
		color: mgl32.Vec4{0.005, 0.005, 0.005, 1},
	}
	if sc.BackbufferCount() > 0 {
		if err := c.create(); err != nil {
			return nil, err
		}
	}
	c.listener = sc.AddListener(render.SwapchainListener{
		Created:   c.create,
		Destroyed: c.release,
	})
	return c, nil
}

// SetColor sets the clear color used from the next recording on.
func (c *ClearPass) SetColor(color mgl32.Vec4) {
	c.colorLock.Lock()
	c.color = color
	c.colorLock.Unlock()
}

// Color returns the clear color
func (c *ClearPass) Color() mgl32.Vec4 {
	c.colorLock.RLock()
	defer c.colorLock.RUnlock()
	return c.color
}

// Record records the clear of backbuffer image into cmd, which must be begun.
func (c *ClearPass) Record(cmd gfx.CommandBuffer, image uint32) error {
	if int(image) >= len(c.framebuffers) {
		return fmt.Errorf("vkr.ClearPass.Record(): no framebuffer for image %d", image)
	}
	native, ok := c.dev.NativeCommandBuffer(cmd)
	if !ok {
		return errors.New("vkr.ClearPass.Record(): unknown command buffer")
	}

	color := c.Color()
	clearValues := make([]vk.ClearValue, 1)
	clearValues[0].SetColor(color[:])

	rpbi := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  c.renderPass,
		Framebuffer: c.framebuffers[image],
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: c.extent,
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(native, &rpbi, vk.SubpassContentsInline)
	vk.CmdEndRenderPass(native)
	return nil
}

// Destroy stops following the swapchain and releases the pass.
func (c *ClearPass) Destroy() {
	c.sc.RemoveListener(c.listener)
	c.release()
}

// create builds the pass for the current backbuffers. On failure whatever
// was built is released.
func (c *ClearPass) create() error {
	size := c.sc.Size()
	c.extent = vk.Extent2D{Width: size.Width, Height: size.Height}
	format := vk.Format(c.sc.Format().Format)

	images, err := c.backbuffers()
	if err == nil {
		err = c.createRenderPass(format)
	}
	if err == nil {
		err = c.createImageViews(images, format)
	}
	if err == nil {
		err = c.createFramebuffers()
	}
	if err != nil {
		c.release()
		return err
	}
	c.log.WithField("framebuffers", len(c.framebuffers)).Debug("clear pass created")
	return nil
}

func (c *ClearPass) backbuffers() ([]vk.Image, error) {
	handles := c.sc.Backbuffers()
	images := make([]vk.Image, 0, len(handles))
	for idx, handle := range handles {
		img, ok := c.dev.NativeImage(handle)
		if !ok {
			return nil, fmt.Errorf("vkr.ClearPass: unknown backbuffer %d", idx)
		}
		images = append(images, img)
	}
	return images, nil
}

func (c *ClearPass) createRenderPass(format vk.Format) error {
	attachments := []vk.AttachmentDescription{{
		Format:         format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}}

	colorAttachmentRef := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}

	subpassDependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorAttachmentRef)),
		PColorAttachments:    colorAttachmentRef,
	}

	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{subpassDependency},
	}

	var renderPass vk.RenderPass
	if err := vk.Error(vk.CreateRenderPass(c.dev.device, &rpci, nil, &renderPass)); err != nil {
		return errors.New("vk.CreateRenderPass(): " + err.Error())
	}
	c.renderPass = renderPass
	return nil
}

func (c *ClearPass) createImageViews(images []vk.Image, format vk.Format) error {
	for idx, img := range images {
		ivci := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    img,
			ViewType: vk.ImageViewType2d,
			Format:   format,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}

		var imageView vk.ImageView
		if err := vk.Error(vk.CreateImageView(c.dev.device, &ivci, nil, &imageView)); err != nil {
			return fmt.Errorf("vk.CreateImageView()[%d]: %w", idx, err)
		}
		c.views = append(c.views, imageView)
	}
	return nil
}

func (c *ClearPass) createFramebuffers() error {
	for idx, view := range c.views {
		fci := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      c.renderPass,
			AttachmentCount: 1,
			PAttachments:    []vk.ImageView{view},
			Width:           c.extent.Width,
			Height:          c.extent.Height,
			Layers:          1,
		}

		var framebuffer vk.Framebuffer
		if err := vk.Error(vk.CreateFramebuffer(c.dev.device, &fci, nil, &framebuffer)); err != nil {
			return fmt.Errorf("vk.CreateFramebuffer()[%d]: %w", idx, err)
		}
		c.framebuffers = append(c.framebuffers, framebuffer)
	}
	return nil
}

func (c *ClearPass) release() {
	if len(c.framebuffers) == 0 && len(c.views) == 0 && c.renderPass == nil {
		return
	}
	vk.DeviceWaitIdle(c.dev.device)

	for _, fb := range c.framebuffers {
		vk.DestroyFramebuffer(c.dev.device, fb, nil)
	}
	c.framebuffers = nil
	for _, iv := range c.views {
		vk.DestroyImageView(c.dev.device, iv, nil)
	}
	c.views = nil
	if c.renderPass != nil {
		vk.DestroyRenderPass(c.dev.device, c.renderPass, nil)
		c.renderPass = nil
	}
}
