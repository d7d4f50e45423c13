// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package telegraph delivers messages between registered receivers,
// right away or after a delay, on a worker pool.
package telegraph

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"github.com/devblok/kframe/core"
	"github.com/devblok/kframe/utility/pool"
	"github.com/sirupsen/logrus"
)

// ErrNoReceiver is returned when a message targets nobody.
var ErrNoReceiver = errors.New("telegraph: no dispatch for receiver")

// Message is a telegram between two ids.
type Message struct {
	Sender   core.ID
	Receiver core.ID
	ID       uint32

	// DispatchTime is the dispatcher time the message is due.
	DispatchTime time.Duration
	Info         interface{}
}

// DispatchFunc receives messages, worker is the pool worker delivering it.
type DispatchFunc func(msg Message, worker core.ID)

// Dispatcher keeps the registered receivers and the delayed messages.
// Time only moves through Update.
type Dispatcher struct {
	pool *pool.Pool
	log  logrus.FieldLogger

	mu         sync.Mutex
	dispatches map[core.ID]DispatchFunc
	current    time.Duration
	queue      messageQueue
	seq        uint64
}

// New creates a dispatcher delivering on p. The pool is owned by the caller.
func New(p *pool.Pool, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{
		pool:       p,
		log:        core.Logger(log).WithField("component", "telegraph"),
		dispatches: make(map[core.ID]DispatchFunc),
	}
}

// AddDispatch registers fn for target. Returns false when target already has one.
func (d *Dispatcher) AddDispatch(target core.ID, fn DispatchFunc) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.dispatches[target]; ok {
		return false
	}
	d.dispatches[target] = fn
	return true
}

// RemoveDispatch unregisters target. Returns false when it was not registered.
func (d *Dispatcher) RemoveDispatch(target core.ID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.dispatches[target]; !ok {
		return false
	}
	delete(d.dispatches, target)
	return true
}

// HasDispatch reports whether target is registered.
func (d *Dispatcher) HasDispatch(target core.ID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.dispatches[target]
	return ok
}

// SendMessage sends msg to receiver. A zero delay discharges it now,
// otherwise it is held until Update passes the dispatch time.
func (d *Dispatcher) SendMessage(receiver, sender core.ID, msg uint32, delay time.Duration, info interface{}) error {
	d.mu.Lock()
	m := Message{
		Sender:       sender,
		Receiver:     receiver,
		ID:           msg,
		DispatchTime: d.current,
		Info:         info,
	}
	if delay <= 0 {
		d.mu.Unlock()
		return d.discharge(m)
	}

	m.DispatchTime += delay
	d.seq++
	heap.Push(&d.queue, &queued{msg: m, seq: d.seq})
	d.mu.Unlock()
	return nil
}

// Update advances the dispatcher clock and discharges every message that is due.
func (d *Dispatcher) Update(current time.Duration) {
	d.mu.Lock()
	d.current = current
	var due []Message
	for d.queue.Len() > 0 && d.queue[0].msg.DispatchTime < current {
		due = append(due, heap.Pop(&d.queue).(*queued).msg)
	}
	d.mu.Unlock()

	for _, m := range due {
		if err := d.discharge(m); err != nil {
			d.log.WithError(err).WithFields(logrus.Fields{
				"receiver": m.Receiver,
				"message":  m.ID,
			}).Warn("delayed message dropped")
		}
	}
}

// Pending returns the number of delayed messages not yet discharged.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.Len()
}

func (d *Dispatcher) discharge(m Message) error {
	return d.pool.Enqueue(func(worker core.ID) {
		d.mu.Lock()
		fn, ok := d.dispatches[m.Receiver]
		d.mu.Unlock()
		if !ok {
			d.log.WithField("receiver", m.Receiver).Warn(ErrNoReceiver.Error())
			return
		}
		fn(m, worker)
	})
}

type queued struct {
	msg Message
	seq uint64
}

// messageQueue orders by dispatch time, then by send order.
type messageQueue []*queued

func (q messageQueue) Len() int { return len(q) }

func (q messageQueue) Less(i, j int) bool {
	if q[i].msg.DispatchTime == q[j].msg.DispatchTime {
		return q[i].seq < q[j].seq
	}
	return q[i].msg.DispatchTime < q[j].msg.DispatchTime
}

func (q messageQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *messageQueue) Push(x interface{}) {
	*q = append(*q, x.(*queued))
}

func (q *messageQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
