// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	clearSpeed     = 0.5
	clearIntensity = 0.25
)

var clearPhase = mgl32.Vec3{0, 2 * math.Pi / 3, 4 * math.Pi / 3}

// clearColor cycles slowly through dim hues.
func clearColor(t time.Duration) mgl32.Vec4 {
	s := float32(t.Seconds()) * clearSpeed
	var c mgl32.Vec3
	for i := range c {
		c[i] = 0.5 + 0.5*float32(math.Sin(float64(s+clearPhase[i])))
	}
	return c.Mul(clearIntensity).Vec4(1)
}
