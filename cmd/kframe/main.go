// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"runtime/trace"

	"github.com/devblok/kframe/block"
	"github.com/devblok/kframe/core"
	"github.com/devblok/kframe/frame"
	"github.com/devblok/kframe/gfx"
	"github.com/devblok/kframe/gfx/vkr"
	"github.com/devblok/kframe/props"
	"github.com/devblok/kframe/render"
	"github.com/devblok/kframe/utility/pool"
	"github.com/devblok/kframe/utility/telegraph"
	vk "github.com/devblok/vulkan"
	"github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
)

func init() {
	runtime.LockOSThread()
}

var (
	configFile = flag.String("config", "kframe.toml", "Configuration file")
	envFile    = flag.String("env", ".env", "Environment file")
	gpu        = flag.Int("gpu", -1, "Physical device index, picked automatically when negative")
	debug      = flag.Bool("vkdbg", false, "Load Vulkan validation layers")
)

// Profiling
var (
	cpuProfile   = flag.String("cpuprof", "", "Profile CPU usage to file")
	memProfile   = flag.String("memprof", "", "Profile memory usage into a file")
	traceProfile = flag.String("trace", "", "Trace output for profiling")
)

func main() {
	os.Exit(start())
}

func start() int {
	flag.Parse()

	cfg, err := core.LoadConfiguration(*configFile, *envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if *debug {
		cfg.Instance.DebugMode = true
	}

	log, err := core.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.WithError(err).Error("cpu profile")
			return 1
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.WithError(err).Error("cpu profile")
			return 1
		}
		defer pprof.StopCPUProfile()
	}

	if *traceProfile != "" {
		f, err := os.Create(*traceProfile)
		if err != nil {
			log.WithError(err).Error("trace")
			return 1
		}
		defer f.Close()
		if err := trace.Start(f); err != nil {
			log.WithError(err).Error("trace")
			return 1
		}
		defer trace.Stop()
	}

	code := 0
	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("kframe stopped")
		code = 1
	}

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			log.WithError(err).Error("memory profile")
			return 1
		}
		defer f.Close()
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.WithError(err).Error("memory profile")
			return 1
		}
	}
	return code
}

func run(cfg core.Configuration, log *logrus.Logger) error {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return fmt.Errorf("sdl.Init(): %w", err)
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		return fmt.Errorf("sdl.VulkanLoadLibrary(): %w", err)
	}
	defer sdl.VulkanUnloadLibrary()

	win, err := newWindow(cfg.Swapchain)
	if err != nil {
		return err
	}
	defer win.Destroy()

	cfg.Instance.Extensions = append(cfg.Instance.Extensions, win.window.VulkanGetInstanceExtensions()...)
	instance, err := vkr.NewInstance(sdl.VulkanGetVkGetInstanceProcAddr(), cfg.Instance, log)
	if err != nil {
		return err
	}
	defer instance.Destroy()

	surface, err := win.CreateSurface(instance)
	if err != nil {
		return err
	}
	defer instance.DestroySurface(surface)

	index := *gpu
	if index < 0 {
		if index, err = instance.PickDevice(); err != nil {
			return err
		}
	}
	device, err := vkr.NewDevice(instance, index, log)
	if err != nil {
		return err
	}
	defer device.Destroy()

	ids := core.NewIDs()

	workers := pool.New(ids, log)
	workers.Setup(cfg.Pool.Workers)
	defer workers.Teardown()

	dispatcher := telegraph.New(workers, log)
	timeService := core.NewTime(cfg.Time)
	defer timeService.Stop()

	store := props.NewStore(cfg.Props, log)
	closeShaders, err := setupShaders(ids, store, workers, dispatcher, cfg.Props, log)
	if err != nil {
		return err
	}
	defer closeShaders()

	swapchain := render.NewSwapchain(ids, device, cfg.Swapchain, log)
	if err := swapchain.Create(surface, gfx.SurfaceFormat{
		Format:     gfx.Format(vk.FormatB8g8r8a8Unorm),
		ColorSpace: gfx.ColorSpaceSrgbNonlinear,
	}, win.DrawableSize()); err != nil {
		return err
	}
	defer swapchain.Destroy()

	renderer := render.NewRenderer(ids, cfg.Renderer, log)
	if swapchain.BackbufferCount() > 0 {
		if err := renderer.Create(swapchain); err != nil {
			return err
		}
	}
	renderer.Attach(swapchain)
	defer renderer.Destroy()

	clearPass, err := vkr.NewClearPass(device, swapchain, log)
	if err != nil {
		return err
	}
	defer clearPass.Destroy()

	blk, err := setupBlock(ids, device, swapchain, clearPass, log)
	if err != nil {
		return err
	}
	defer blk.Destroy()

	loop := frame.New(ids, frame.Options{
		Events:    win.PumpEvents,
		Telegraph: dispatcher,
		Time:      timeService,
		Device:    device,
	}, log)
	win.OnQuit(func() { loop.ShutDown() })
	win.OnResize(swapchain.RequestReload)

	stats := newStats(ids, dispatcher, log)
	if err := stats.Start(); err != nil {
		return err
	}

	loop.AddRunOnce(func() bool {
		log.WithFields(logrus.Fields{
			"images":  swapchain.BackbufferCount(),
			"present": swapchain.PresentMode(),
			"props":   len(store.Names()),
		}).Info("kframe running")
		return true
	})

	loop.AddRun(func(core.ID) bool {
		if swapchain.ReloadRequested() {
			if err := swapchain.Resize(win.DrawableSize()); err != nil {
				log.WithError(err).Error("swapchain reload failed")
				return false
			}
			if swapchain.ReloadRequested() {
				return true
			}
		}

		clearPass.SetColor(clearColor(timeService.Current()))
		err := renderer.Frame(func(image uint32) []gfx.CommandBuffer {
			if err := blk.Process(image); err != nil {
				log.WithError(err).Error("recording failed")
				return nil
			}
			return blk.CollectBuffers()
		})
		switch {
		case err == nil:
			stats.Count()
		case render.Skipped(err):
		default:
			log.WithError(err).Error("frame failed")
			return false
		}
		return true
	})

	loop.AddRunEnd(func() {
		log.WithField("time", loop.RunningTime()).Info("kframe stopping")
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	return loop.Run(ctx)
}

func setupBlock(ids *core.IDs, device *vkr.Device, swapchain *render.Swapchain, clearPass *vkr.ClearPass, log logrus.FieldLogger) (*block.Block, error) {
	blk := block.New(ids, log)
	if swapchain.BackbufferCount() > 0 {
		if err := blk.Create(device, swapchain.BackbufferCount(), presentFamily(device, swapchain)); err != nil {
			return nil, err
		}
	}

	if _, err := blk.AddCommand(func(cmd gfx.CommandBuffer) {
		if err := clearPass.Record(cmd, blk.CurrentFrame()); err != nil {
			log.WithError(err).Warn("clear not recorded")
		}
	}, true); err != nil {
		blk.Destroy()
		return nil, err
	}

	swapchain.AddListener(render.SwapchainListener{
		Created: func() error {
			return blk.Create(device, swapchain.BackbufferCount(), presentFamily(device, swapchain))
		},
		Destroyed: blk.Destroy,
	})
	return blk, nil
}

// presentFamily is the queue family the renderer picks for swapchain.
func presentFamily(device gfx.QueueDevice, swapchain *render.Swapchain) uint32 {
	for _, q := range device.GraphicsQueues() {
		if swapchain.SurfaceSupported(q.Family) {
			return q.Family
		}
	}
	return 0
}
