// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDsStartAtOne(t *testing.T) {
	ids := NewIDs()
	assert.Equal(t, UndefID, ids.Last())
	assert.Equal(t, ID(1), ids.Next())
	assert.Equal(t, ID(2), ids.Next())
	assert.Equal(t, ID(2), ids.Last())
	assert.False(t, UndefID.Valid())
	assert.True(t, ID(2).Valid())
}

func TestIDsIsolated(t *testing.T) {
	a, b := NewIDs(), NewIDs()
	a.Next()
	a.Next()
	assert.Equal(t, ID(1), b.Next())
}

func TestIDsConcurrent(t *testing.T) {
	ids := NewIDs()
	var wg sync.WaitGroup
	seen := make(chan ID, 400)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				seen <- ids.Next()
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[ID]struct{}{}
	for id := range seen {
		unique[id] = struct{}{}
	}
	assert.Len(t, unique, 400)
	assert.Equal(t, ID(400), ids.Last())
}

func BenchmarkIDsNext(b *testing.B) {
	ids := NewIDs()
	for i := 0; i < b.N; i++ {
		ids.Next()
	}
}
