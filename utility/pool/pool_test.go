// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devblok/kframe/core"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPool() *Pool {
	log, _ := test.NewNullLogger()
	return New(core.NewIDs(), log)
}

func TestPoolRunsTasks(t *testing.T) {
	p := newPool()
	p.Setup(4)
	defer p.Teardown()

	var (
		wg      sync.WaitGroup
		count   atomic.Int32
		mu      sync.Mutex
		workers = map[core.ID]struct{}{}
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.NoError(t, p.Enqueue(func(worker core.ID) {
			defer wg.Done()
			count.Add(1)
			mu.Lock()
			workers[worker] = struct{}{}
			mu.Unlock()
		}))
	}
	wg.Wait()

	assert.Equal(t, int32(100), count.Load())
	assert.NotEmpty(t, workers)
	assert.LessOrEqual(t, len(workers), 4)
	for id := range workers {
		assert.True(t, id.Valid())
	}
}

func TestPoolSingleWorkerIsOrdered(t *testing.T) {
	p := newPool()
	p.Setup(1)
	defer p.Teardown()

	var (
		wg    sync.WaitGroup
		order []int
	)
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		require.NoError(t, p.Enqueue(func(core.ID) {
			defer wg.Done()
			order = append(order, i)
		}))
	}
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestPoolNotRunning(t *testing.T) {
	p := newPool()
	assert.ErrorIs(t, p.Enqueue(func(core.ID) {}), ErrStopped)

	p.Setup(1)
	p.Teardown()
	assert.ErrorIs(t, p.Enqueue(func(core.ID) {}), ErrStopped)

	// setup again after teardown
	p.Setup(2)
	done := make(chan struct{})
	require.NoError(t, p.Enqueue(func(core.ID) { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
	p.Teardown()
}

func TestPoolTeardownDropsQueued(t *testing.T) {
	p := newPool()
	p.Setup(1)

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, p.Enqueue(func(core.ID) {
		close(started)
		<-release
	}))
	<-started

	var ran atomic.Bool
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Enqueue(func(core.ID) { ran.Store(true) }))
	}
	assert.Equal(t, 5, p.Pending())

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	p.Teardown()
	assert.False(t, ran.Load())
	assert.Zero(t, p.Pending())
}

func TestPoolSurvivesPanic(t *testing.T) {
	p := newPool()
	p.Setup(1)
	defer p.Teardown()

	require.NoError(t, p.Enqueue(func(core.ID) { panic("boom") }))
	done := make(chan struct{})
	require.NoError(t, p.Enqueue(func(core.ID) { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died with the panicking task")
	}
}

func BenchmarkPoolEnqueue(b *testing.B) {
	p := newPool()
	p.Setup(4)
	defer p.Teardown()

	var wg sync.WaitGroup
	wg.Add(b.N)
	for i := 0; i < b.N; i++ {
		p.Enqueue(func(core.ID) { wg.Done() })
	}
	wg.Wait()
}
