package id

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	a := New()
	b := New()
	require.Len(t, a, 26)
	assert.NotEqual(t, a, b)

	// Sequential IDs sort in creation order.
	ids := []string{New(), New(), New(), New()}
	assert.True(t, sort.StringsAreSorted(ids), "ids not ordered: %v", ids)
}

func TestNewConcurrentUnique(t *testing.T) {
	t.Parallel()

	const n = 200
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		ids = make(map[string]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := New()
			mu.Lock()
			ids[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, ids, n)
}
