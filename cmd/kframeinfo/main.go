// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command kframeinfo prints the physical devices Vulkan reports as JSON.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/devblok/kframe/core"
	"github.com/devblok/kframe/gfx/vkr"
	"github.com/sirupsen/logrus"
)

var (
	debug  = flag.Bool("vkdbg", false, "Load Vulkan validation layers")
	indent = flag.Bool("indent", true, "Indent the output")
)

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)

	cfg := core.DefaultConfiguration().Instance
	cfg.DebugMode = *debug

	instance, err := vkr.NewInstance(nil, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("no vulkan instance")
	}
	defer instance.Destroy()

	var bytes []byte
	if *indent {
		bytes, err = json.MarshalIndent(instance.PhysicalDevicesInfo(), "", "  ")
	} else {
		bytes, err = json.Marshal(instance.PhysicalDevicesInfo())
	}
	if err != nil {
		log.WithError(err).Error("json")
		return
	}
	fmt.Printf("%s\n", bytes)
}
