// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package pool runs background tasks on a fixed set of workers.
package pool

import (
	"errors"
	"sync"

	"github.com/devblok/kframe/core"
	"github.com/sirupsen/logrus"
)

// ErrStopped is returned when enqueueing into a pool that is not running.
var ErrStopped = errors.New("pool: not running")

// Task is a unit of work, it receives the id of the worker running it.
type Task func(worker core.ID)

// Pool is a fixed size worker pool fed from a FIFO queue.
// Tasks still queued at Teardown are dropped.
type Pool struct {
	ids *core.IDs
	log logrus.FieldLogger

	mu      sync.Mutex
	cond    *sync.Cond
	tasks   []Task
	running bool
	stop    bool
	wg      sync.WaitGroup
}

// New creates a pool that is not running yet.
func New(ids *core.IDs, log logrus.FieldLogger) *Pool {
	p := &Pool{
		ids: ids,
		log: core.Logger(log).WithField("component", "pool"),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Setup starts count workers, at least one.
func (p *Pool) Setup(count int) {
	if count < 1 {
		count = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stop = false

	for i := 0; i < count; i++ {
		p.wg.Add(1)
		go p.worker(p.ids.Next())
	}
	p.log.WithField("workers", count).Debug("pool started")
}

// Teardown stops the workers and waits for running tasks to return.
func (p *Pool) Teardown() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.stop = true
	dropped := len(p.tasks)
	p.tasks = nil
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	p.log.WithField("dropped", dropped).Debug("pool stopped")
}

// Enqueue queues task for the next free worker.
func (p *Pool) Enqueue(task Task) error {
	p.mu.Lock()
	if !p.running || p.stop {
		p.mu.Unlock()
		return ErrStopped
	}
	p.tasks = append(p.tasks, task)
	p.mu.Unlock()
	p.cond.Signal()
	return nil
}

// Pending returns the number of queued tasks.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

func (p *Pool) worker(id core.ID) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for !p.stop && len(p.tasks) == 0 {
			p.cond.Wait()
		}
		if p.stop {
			p.mu.Unlock()
			return
		}
		task := p.tasks[0]
		p.tasks[0] = nil
		p.tasks = p.tasks[1:]
		p.mu.Unlock()

		p.run(id, task)
	}
}

func (p *Pool) run(id core.ID, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithFields(logrus.Fields{
				"worker": id,
				"panic":  r,
			}).Error("task panicked")
		}
	}()
	task(id)
}
