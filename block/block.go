// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package block records groups of commands into per-frame command buffers.
package block

import (
	"errors"
	"fmt"

	"github.com/devblok/kframe/core"
	"github.com/devblok/kframe/gfx"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

var (
	// ErrNotCreated is returned when the block has no command pools.
	ErrNotCreated = errors.New("block: not created")

	// ErrFrameRange is returned for a frame index past the frame count.
	ErrFrameRange = errors.New("block: frame out of range")
)

// RecordFunc records into a command buffer that is already begun.
type RecordFunc func(cmd gfx.CommandBuffer)

type command struct {
	id      core.ID
	record  RecordFunc
	active  bool
	buffers []gfx.CommandBuffer
}

// Block owns one command pool per frame and a command buffer per frame
// for every command. Commands are recorded in insertion order.
type Block struct {
	ids *core.IDs
	id  core.ID
	log logrus.FieldLogger

	dev   gfx.CommandDevice
	pools []gfx.CommandPool
	frame uint32

	commands []*command

	// recorded holds the buffers the last Process finished, in order.
	recorded []gfx.CommandBuffer
}

// New creates an empty block.
func New(ids *core.IDs, log logrus.FieldLogger) *Block {
	id := ids.Next()
	return &Block{
		ids: ids,
		id:  id,
		log: core.Logger(log).WithField("block", id),
	}
}

// Create makes frameCount command pools on family and allocates buffers
// for commands added so far.
func (b *Block) Create(dev gfx.CommandDevice, frameCount, family uint32) error {
	if len(b.pools) > 0 {
		return fmt.Errorf("block.Create(): already created")
	}
	b.dev = dev
	b.frame = 0

	for i := uint32(0); i < frameCount; i++ {
		pool, status := dev.CreateCommandPool(family)
		if err := gfx.Failed("vk.CreateCommandPool", status); err != nil {
			b.Destroy()
			return err
		}
		b.pools = append(b.pools, pool)
	}

	for _, cmd := range b.commands {
		if err := b.allocate(cmd); err != nil {
			b.Destroy()
			return err
		}
	}
	return nil
}

func (b *Block) allocate(cmd *command) error {
	for i, pool := range b.pools {
		buffers, status := b.dev.AllocateCommandBuffers(pool, 1)
		if err := gfx.Failed("vk.AllocateCommandBuffers", status); err != nil {
			b.free(cmd)
			b.log.WithError(err).WithField("frame", i).Error("failed to allocate command buffers")
			return err
		}
		cmd.buffers = append(cmd.buffers, buffers[0])
	}
	return nil
}

func (b *Block) free(cmd *command) {
	for i, buf := range cmd.buffers {
		b.dev.FreeCommandBuffers(b.pools[i], []gfx.CommandBuffer{buf})
	}
	cmd.buffers = nil
}

// Destroy frees every buffer and pool. Commands stay registered and get
// new buffers on the next Create.
func (b *Block) Destroy() {
	if b.dev == nil {
		return
	}
	for _, cmd := range b.commands {
		b.free(cmd)
	}
	for _, pool := range b.pools {
		b.dev.DestroyCommandPool(pool)
	}
	b.pools = nil
	b.recorded = nil
}

// AddCommand registers fn. When the block is created its buffers are allocated right away.
func (b *Block) AddCommand(fn RecordFunc, active bool) (core.ID, error) {
	cmd := &command{
		id:     b.ids.Next(),
		record: fn,
		active: active,
	}
	if len(b.pools) > 0 {
		if err := b.allocate(cmd); err != nil {
			return core.UndefID, err
		}
	}
	b.commands = append(b.commands, cmd)
	return cmd.id, nil
}

// RemoveCommand frees the command's buffers and drops it.
func (b *Block) RemoveCommand(id core.ID) bool {
	idx := b.index(id)
	if idx < 0 {
		return false
	}
	if len(b.pools) > 0 {
		cmd := b.commands[idx]
		b.recorded = slices.DeleteFunc(b.recorded, func(buf gfx.CommandBuffer) bool {
			return slices.Contains(cmd.buffers, buf)
		})
		b.free(cmd)
	}
	b.commands = slices.Delete(b.commands, idx, idx+1)
	return true
}

func (b *Block) index(id core.ID) int {
	return slices.IndexFunc(b.commands, func(c *command) bool { return c.id == id })
}

// SetActive switches a command on or off from the next Process on.
// Returns false for unknown ids.
func (b *Block) SetActive(id core.ID, active bool) bool {
	idx := b.index(id)
	if idx < 0 {
		return false
	}
	b.commands[idx].active = active
	return true
}

// Active reports whether the command is recorded by Process.
func (b *Block) Active(id core.ID) bool {
	idx := b.index(id)
	return idx >= 0 && b.commands[idx].active
}

// Process resets the pool of frame and records every active command.
func (b *Block) Process(frame uint32) error {
	if len(b.pools) == 0 {
		return ErrNotCreated
	}
	if int(frame) >= len(b.pools) {
		return fmt.Errorf("%w: %d of %d", ErrFrameRange, frame, len(b.pools))
	}
	b.frame = frame
	b.recorded = b.recorded[:0]

	if err := gfx.Failed("vk.ResetCommandPool", b.dev.ResetCommandPool(b.pools[frame])); err != nil {
		return err
	}

	for _, cmd := range b.commands {
		if !cmd.active {
			continue
		}
		buf := cmd.buffers[frame]
		if err := gfx.Failed("vk.BeginCommandBuffer", b.dev.BeginCommandBuffer(buf)); err != nil {
			return err
		}
		if cmd.record != nil {
			cmd.record(buf)
		}
		if err := gfx.Failed("vk.EndCommandBuffer", b.dev.EndCommandBuffer(buf)); err != nil {
			return err
		}
		b.recorded = append(b.recorded, buf)
	}
	return nil
}

// CollectBuffers returns the buffers recorded by the last Process.
func (b *Block) CollectBuffers() []gfx.CommandBuffer {
	if len(b.pools) == 0 {
		return nil
	}
	return append([]gfx.CommandBuffer{}, b.recorded...)
}

// CommandBuffer returns the buffer of command id for frame.
func (b *Block) CommandBuffer(id core.ID, frame uint32) (gfx.CommandBuffer, bool) {
	idx := b.index(id)
	if idx < 0 || int(frame) >= len(b.commands[idx].buffers) {
		return 0, false
	}
	return b.commands[idx].buffers[frame], true
}

// FrameCount returns the number of per-frame pools.
func (b *Block) FrameCount() uint32 {
	return uint32(len(b.pools))
}

// CurrentFrame returns the frame last processed.
func (b *Block) CurrentFrame() uint32 {
	return b.frame
}

// ID returns the block identity.
func (b *Block) ID() core.ID {
	return b.id
}
