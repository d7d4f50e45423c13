// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package telegraph

import (
	"testing"
	"time"

	"github.com/devblok/kframe/core"
	"github.com/devblok/kframe/utility/pool"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(t *testing.T, workers int) *Dispatcher {
	t.Helper()
	log, _ := test.NewNullLogger()
	p := pool.New(core.NewIDs(), log)
	p.Setup(workers)
	t.Cleanup(p.Teardown)
	return New(p, log)
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
	return Message{}
}

func TestDispatchRegistry(t *testing.T) {
	d := newDispatcher(t, 1)
	fn := func(Message, core.ID) {}

	assert.True(t, d.AddDispatch(1, fn))
	assert.False(t, d.AddDispatch(1, fn))
	assert.True(t, d.HasDispatch(1))
	assert.True(t, d.RemoveDispatch(1))
	assert.False(t, d.RemoveDispatch(1))
	assert.False(t, d.HasDispatch(1))
}

func TestSendImmediate(t *testing.T) {
	d := newDispatcher(t, 2)
	got := make(chan Message, 1)
	d.AddDispatch(5, func(m Message, worker core.ID) {
		assert.True(t, worker.Valid())
		got <- m
	})

	require.NoError(t, d.SendMessage(5, 9, 3, 0, "hello"))
	m := receive(t, got)
	assert.Equal(t, core.ID(9), m.Sender)
	assert.Equal(t, core.ID(5), m.Receiver)
	assert.Equal(t, uint32(3), m.ID)
	assert.Equal(t, "hello", m.Info)
}

func TestSendDelayed(t *testing.T) {
	d := newDispatcher(t, 1)
	got := make(chan Message, 4)
	d.AddDispatch(5, func(m Message, _ core.ID) { got <- m })

	d.Update(time.Second)
	require.NoError(t, d.SendMessage(5, 1, 2, 500*time.Millisecond, nil))
	require.NoError(t, d.SendMessage(5, 1, 1, 250*time.Millisecond, nil))
	assert.Equal(t, 2, d.Pending())

	d.Update(1200 * time.Millisecond)
	assert.Equal(t, 2, d.Pending())

	d.Update(1300 * time.Millisecond)
	assert.Equal(t, uint32(1), receive(t, got).ID)
	assert.Equal(t, 1, d.Pending())

	d.Update(2 * time.Second)
	m := receive(t, got)
	assert.Equal(t, uint32(2), m.ID)
	assert.Equal(t, 1500*time.Millisecond, m.DispatchTime)
	assert.Zero(t, d.Pending())
}

func TestSameDueTimeKeepsSendOrder(t *testing.T) {
	d := newDispatcher(t, 1)
	got := make(chan Message, 8)
	d.AddDispatch(5, func(m Message, _ core.ID) { got <- m })

	for i := uint32(0); i < 5; i++ {
		require.NoError(t, d.SendMessage(5, 1, i, time.Millisecond, nil))
	}
	d.Update(time.Second)
	for i := uint32(0); i < 5; i++ {
		assert.Equal(t, i, receive(t, got).ID)
	}
}

func TestSendUnknownReceiver(t *testing.T) {
	d := newDispatcher(t, 1)
	require.NoError(t, d.SendMessage(42, 1, 1, 0, nil))

	got := make(chan Message, 1)
	d.AddDispatch(5, func(m Message, _ core.ID) { got <- m })
	require.NoError(t, d.SendMessage(5, 1, 7, 0, nil))
	assert.Equal(t, uint32(7), receive(t, got).ID)
}
