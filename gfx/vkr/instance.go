// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vkr implements the gfx device interfaces on top of Vulkan.
package vkr

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/devblok/kframe/core"
	"github.com/devblok/kframe/gfx"
	vk "github.com/devblok/vulkan"
	"github.com/sirupsen/logrus"
)

// Validation layer and extension enabled in debug mode.
const (
	DebugLayer     = "VK_LAYER_LUNARG_standard_validation"
	DebugExtension = "VK_EXT_debug_report"
)

// DefaultApplicationInfo describes the application to the driver
var DefaultApplicationInfo = &vk.ApplicationInfo{
	SType:              vk.StructureTypeApplicationInfo,
	ApiVersion:         vk.MakeVersion(1, 0, 0),
	ApplicationVersion: vk.MakeVersion(1, 0, 0),
	PApplicationName:   safeString("kframe"),
	PEngineName:        safeString("kframe"),
}

// PhysicalDeviceInfo is a summary of a GPU, used for device selection and reporting.
type PhysicalDeviceInfo struct {
	Index         int      `json:"index"`
	ID            int      `json:"id"`
	VendorID      int      `json:"vendor_id"`
	DriverVersion int      `json:"driver_version"`
	Name          string   `json:"name"`
	Invalid       bool     `json:"invalid"`
	Extensions    []string `json:"extensions"`
	Layers        []string `json:"layers"`
	Memory        uint     `json:"memory"`
}

// HasExtension reports whether the device advertises ext.
func (p PhysicalDeviceInfo) HasExtension(ext string) bool {
	for _, e := range p.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Instance is a Vulkan instance along with the surfaces created against it.
type Instance struct {
	cfg core.InstanceConfiguration
	log logrus.FieldLogger

	instance         vk.Instance
	availableDevices []vk.PhysicalDevice
	surfaces         gfx.Arena[vk.Surface]
}

// NewInstance loads Vulkan and creates an instance. With a nil procAddr the
// default loader is used, otherwise procAddr is vkGetInstanceProcAddr of the
// windowing library.
func NewInstance(procAddr unsafe.Pointer, cfg core.InstanceConfiguration, log logrus.FieldLogger) (*Instance, error) {
	extensions := append([]string(nil), cfg.Extensions...)
	layers := append([]string(nil), cfg.Layers...)
	if cfg.DebugMode {
		layers = append(layers, DebugLayer)
		extensions = append(extensions, DebugExtension)
	}

	if procAddr == nil {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return nil, errors.New("vk.SetDefaultGetInstanceProcAddr(): " + err.Error())
		}
	} else {
		vk.SetGetInstanceProcAddr(procAddr)
	}

	if err := vk.Init(); err != nil {
		return nil, errors.New("vk.Init(): " + err.Error())
	}

	instanceInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        DefaultApplicationInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&instanceInfo, nil, &instance)); err != nil {
		return nil, errors.New("vk.CreateInstance(): " + err.Error())
	}
	vk.InitInstance(instance)

	physicalDevices, err := enumerateDevices(instance)
	if err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, fmt.Errorf("vkr.enumerateDevices(): %w", err)
	}

	cfg.Extensions, cfg.Layers = extensions, layers
	core.Logger(log).WithFields(logrus.Fields{
		"extensions": extensions,
		"layers":     layers,
		"devices":    len(physicalDevices),
	}).Debug("vulkan instance created")

	return &Instance{
		cfg:              cfg,
		log:              core.Logger(log),
		instance:         instance,
		availableDevices: physicalDevices,
	}, nil
}

func enumerateDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var deviceCount uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, nil)); err != nil {
		return nil, fmt.Errorf("vulkan physical device enumeration failed: %w", err)
	}
	availableDevices := make([]vk.PhysicalDevice, deviceCount)
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, availableDevices)); err != nil {
		return nil, fmt.Errorf("vulkan physical device enumeration failed: %w", err)
	}
	return availableDevices, nil
}

// PhysicalDevicesInfo describes every GPU of the instance
func (i *Instance) PhysicalDevicesInfo() []PhysicalDeviceInfo {
	pdi := make([]PhysicalDeviceInfo, len(i.availableDevices))
	for idx, device := range i.availableDevices {
		pdi[idx].Index = idx

		var numDeviceExtensions uint32
		if err := vk.Error(vk.EnumerateDeviceExtensionProperties(device, "", &numDeviceExtensions, nil)); err != nil {
			pdi[idx].Invalid = true
		}
		deviceExt := make([]vk.ExtensionProperties, numDeviceExtensions)
		if err := vk.Error(vk.EnumerateDeviceExtensionProperties(device, "", &numDeviceExtensions, deviceExt)); err != nil {
			pdi[idx].Invalid = true
		}
		for _, ext := range deviceExt {
			ext.Deref()
			pdi[idx].Extensions = append(pdi[idx].Extensions, vk.ToString(ext.ExtensionName[:]))
		}

		var numDeviceLayers uint32
		if err := vk.Error(vk.EnumerateDeviceLayerProperties(device, &numDeviceLayers, nil)); err != nil {
			pdi[idx].Invalid = true
		}
		deviceLayers := make([]vk.LayerProperties, numDeviceLayers)
		if err := vk.Error(vk.EnumerateDeviceLayerProperties(device, &numDeviceLayers, deviceLayers)); err != nil {
			pdi[idx].Invalid = true
		}
		for _, layer := range deviceLayers {
			layer.Deref()
			pdi[idx].Layers = append(pdi[idx].Layers, vk.ToString(layer.LayerName[:]))
		}

		var memoryProperties vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(device, &memoryProperties)
		memoryProperties.Deref()
		for iMem := uint32(0); iMem < memoryProperties.MemoryHeapCount; iMem++ {
			memoryProperties.MemoryHeaps[iMem].Deref()
			pdi[idx].Memory += uint(memoryProperties.MemoryHeaps[iMem].Size)
		}

		var physicalDeviceProperties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(device, &physicalDeviceProperties)
		physicalDeviceProperties.Deref()
		pdi[idx].ID = int(physicalDeviceProperties.DeviceID)
		pdi[idx].VendorID = int(physicalDeviceProperties.VendorID)
		pdi[idx].Name = vk.ToString(physicalDeviceProperties.DeviceName[:])
		pdi[idx].DriverVersion = int(physicalDeviceProperties.DriverVersion)
	}
	return pdi
}

// PickDevice returns the index of the first valid device that carries
// every configured device extension.
func (i *Instance) PickDevice() (int, error) {
	for _, info := range i.PhysicalDevicesInfo() {
		if info.Invalid {
			continue
		}
		suitable := true
		for _, ext := range i.cfg.DeviceExtensions {
			if !info.HasExtension(ext) {
				suitable = false
				break
			}
		}
		if suitable {
			i.log.WithField("device", info.Name).Info("physical device picked")
			return info.Index, nil
		}
	}
	return -1, errors.New("vkr.PickDevice(): no suitable physical device")
}

// AddSurface registers a surface created by the windowing library.
func (i *Instance) AddSurface(pSurface unsafe.Pointer) gfx.Surface {
	return gfx.Surface(i.surfaces.Put(vk.SurfaceFromPointer(uintptr(pSurface))))
}

// DestroySurface destroys the surface. Swapchains built on it must be gone.
func (i *Instance) DestroySurface(surface gfx.Surface) {
	if s, ok := i.surfaces.Take(uint32(surface)); ok {
		vk.DestroySurface(i.instance, s, nil)
	}
}

// NativeSurface returns the Vulkan surface behind the handle.
func (i *Instance) NativeSurface(surface gfx.Surface) vk.Surface {
	if s, ok := i.surfaces.Get(uint32(surface)); ok {
		return s
	}
	return vk.NullSurface
}

// Native returns the Vulkan instance
func (i *Instance) Native() vk.Instance {
	return i.instance
}

// Extensions lists the enabled instance extensions
func (i *Instance) Extensions() []string {
	return i.cfg.Extensions
}

// AvailableDevices lists the physical devices
func (i *Instance) AvailableDevices() []vk.PhysicalDevice {
	return i.availableDevices
}

// Destroy destroys remaining surfaces and the instance.
func (i *Instance) Destroy() {
	i.surfaces.Each(func(handle uint32, _ vk.Surface) {
		i.DestroySurface(gfx.Surface(handle))
	})
	i.availableDevices = nil
	vk.DestroyInstance(i.instance, nil)
}

func safeString(s string) string {
	return s + "\x00"
}

func safeStrings(sgs []string) []string {
	safe := make([]string, 0, len(sgs))
	for _, s := range sgs {
		safe = append(safe, safeString(s))
	}
	return safe
}
