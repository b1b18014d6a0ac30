// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHopByHopCounterUnique(t *testing.T) {
	var h HopByHopCounter
	seen := make(map[uint32]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := h.Next()
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 100)
}
