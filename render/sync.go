// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"fmt"

	"github.com/devblok/kframe/gfx"
)

// syncSet holds the per-frame synchronization primitives.
// Slot i is used by every frame submitted with sync index i.
type syncSet struct {
	fences  []gfx.Fence
	acquire []gfx.Semaphore
	present []gfx.Semaphore

	// inUse maps a backbuffer index to the fence guarding its last submission.
	inUse []gfx.Fence
}

// newSyncSet creates n signaled fences and 2n semaphores. On failure
// everything created so far is destroyed.
func newSyncSet(dev gfx.SyncDevice, n uint32) (*syncSet, error) {
	s := &syncSet{
		fences:  make([]gfx.Fence, 0, n),
		acquire: make([]gfx.Semaphore, 0, n),
		present: make([]gfx.Semaphore, 0, n),
		inUse:   make([]gfx.Fence, n),
	}

	for i := uint32(0); i < n; i++ {
		fence, status := dev.CreateFence(true)
		if err := gfx.Failed("vk.CreateFence", status); err != nil {
			s.destroy(dev)
			return nil, fmt.Errorf("%w: %w", ErrSetup, err)
		}
		s.fences = append(s.fences, fence)

		for _, list := range []*[]gfx.Semaphore{&s.acquire, &s.present} {
			sem, status := dev.CreateSemaphore()
			if err := gfx.Failed("vk.CreateSemaphore", status); err != nil {
				s.destroy(dev)
				return nil, fmt.Errorf("%w: %w", ErrSetup, err)
			}
			*list = append(*list, sem)
		}
	}
	return s, nil
}

func (s *syncSet) destroy(dev gfx.SyncDevice) {
	for _, f := range s.fences {
		dev.DestroyFence(f)
	}
	for _, sem := range s.acquire {
		dev.DestroySemaphore(sem)
	}
	for _, sem := range s.present {
		dev.DestroySemaphore(sem)
	}
	s.fences = nil
	s.acquire = nil
	s.present = nil
	s.inUse = nil
}

// renewFence replaces the fence of slot i with a signaled one. Backbuffers
// guarded by the old fence are guarded by the new one.
func (s *syncSet) renewFence(dev gfx.SyncDevice, i uint32) error {
	fence, status := dev.CreateFence(true)
	if err := gfx.Failed("vk.CreateFence", status); err != nil {
		return err
	}
	old := s.fences[i]
	for idx, used := range s.inUse {
		if used == old {
			s.inUse[idx] = fence
		}
	}
	s.fences[i] = fence
	dev.DestroyFence(old)
	return nil
}

// renewAcquire replaces the acquire semaphore of slot i.
func (s *syncSet) renewAcquire(dev gfx.SyncDevice, i uint32) error {
	sem, status := dev.CreateSemaphore()
	if err := gfx.Failed("vk.CreateSemaphore", status); err != nil {
		return err
	}
	dev.DestroySemaphore(s.acquire[i])
	s.acquire[i] = sem
	return nil
}

func (s *syncSet) len() uint32 {
	return uint32(len(s.fences))
}
