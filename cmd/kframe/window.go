// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"fmt"

	"github.com/devblok/kframe/core"
	"github.com/devblok/kframe/gfx"
	"github.com/devblok/kframe/gfx/vkr"
	"github.com/veandco/go-sdl2/sdl"
)

type appWindow struct {
	window *sdl.Window

	onQuit   func()
	onResize func()
}

func newWindow(cfg core.SwapchainConfiguration) (*appWindow, error) {
	window, err := sdl.CreateWindow("kframe",
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Width),
		int32(cfg.Height),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return nil, fmt.Errorf("sdl.CreateWindow(): %w", err)
	}
	return &appWindow{window: window}, nil
}

// CreateSurface creates the Vulkan surface of the window on instance.
func (w *appWindow) CreateSurface(instance *vkr.Instance) (gfx.Surface, error) {
	pSurface, err := w.window.VulkanCreateSurface(instance.Native())
	if err != nil {
		return 0, fmt.Errorf("sdl.VulkanCreateSurface(): %w", err)
	}
	return instance.AddSurface(pSurface), nil
}

// DrawableSize is zero while the window is minimized.
func (w *appWindow) DrawableSize() gfx.Extent2D {
	if w.window.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
		return gfx.Extent2D{}
	}
	width, height := w.window.VulkanGetDrawableSize()
	return gfx.Extent2D{Width: uint32(width), Height: uint32(height)}
}

func (w *appWindow) OnQuit(fn func()) {
	w.onQuit = fn
}

func (w *appWindow) OnResize(fn func()) {
	w.onResize = fn
}

// PumpEvents drains the event queue.
func (w *appWindow) PumpEvents() {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch et := event.(type) {
		case *sdl.KeyboardEvent:
			if et.Keysym.Sym == sdl.K_ESCAPE {
				w.quit()
			}
		case *sdl.QuitEvent:
			w.quit()
		case *sdl.WindowEvent:
			switch et.Event {
			case sdl.WINDOWEVENT_SIZE_CHANGED, sdl.WINDOWEVENT_MINIMIZED, sdl.WINDOWEVENT_RESTORED:
				if w.onResize != nil {
					w.onResize()
				}
			}
		}
	}
}

func (w *appWindow) quit() {
	if w.onQuit != nil {
		w.onQuit()
	}
}

func (w *appWindow) Destroy() {
	w.window.Destroy()
}
