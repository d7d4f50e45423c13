// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import "errors"

var (
	// ErrNoPresentQueue is returned when no graphics queue can present to the target.
	ErrNoPresentQueue = errors.New("render: no graphics queue can present to the target")

	// ErrSetup wraps failures while creating per-frame primitives or backbuffers.
	ErrSetup = errors.New("render: setup failed")

	// ErrNotActive is returned when the renderer was never created or is destroyed.
	ErrNotActive = errors.New("render: renderer is not created")

	// ErrInactive is returned while rendering is switched off.
	ErrInactive = errors.New("render: renderer is inactive")

	// ErrSuspended is returned while the target waits to be reloaded.
	ErrSuspended = errors.New("render: waiting for target reload")

	// ErrOutOfDate is returned when the target went stale and the frame was skipped.
	ErrOutOfDate = errors.New("render: target out of date")

	// ErrNoCommandBuffers is returned by EndFrame for an empty command list.
	ErrNoCommandBuffers = errors.New("render: no command buffers to submit")

	// ErrWaitStageMismatch is returned when extra wait semaphores and stages differ in length.
	ErrWaitStageMismatch = errors.New("render: wait semaphores and wait stages differ in length")

	// ErrNoFrame is returned by EndFrame when no frame was begun.
	ErrNoFrame = errors.New("render: no frame in flight")
)
