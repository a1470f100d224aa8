package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBasicOperations(t *testing.T) {
	buf := NewRing[string](3)

	assert.Equal(t, 0, buf.Len())
	assert.Equal(t, 3, buf.Cap())

	require.True(t, buf.Write("first"))
	require.True(t, buf.Write("second"))
	require.True(t, buf.Write("third"))
	assert.Equal(t, 3, buf.Len())

	item, ok := buf.Peek()
	require.True(t, ok)
	assert.Equal(t, "first", item)
	assert.Equal(t, 3, buf.Len(), "peek must not consume")

	item, ok = buf.Read()
	require.True(t, ok)
	assert.Equal(t, "first", item)
	assert.Equal(t, 2, buf.Len())
}

func TestRingDropOldest(t *testing.T) {
	var dropped []int
	buf := NewRing(2,
		WithOverflowPolicy[int](DropOldest),
		WithDropCallback(func(item int) { dropped = append(dropped, item) }))

	buf.Write(1)
	buf.Write(2)
	buf.Write(3)

	assert.Equal(t, []int{2, 3}, buf.Items())
	assert.Equal(t, []int{1}, dropped)
	assert.Equal(t, int64(1), buf.Stats().Drops())
	assert.Equal(t, int64(1), buf.Stats().Overflows())
}

func TestRingDropNewest(t *testing.T) {
	buf := NewRing(2, WithOverflowPolicy[int](DropNewest))

	require.True(t, buf.Write(1))
	require.True(t, buf.Write(2))
	require.False(t, buf.Write(3))

	assert.Equal(t, []int{1, 2}, buf.Items())
	assert.Equal(t, int64(1), buf.Stats().Drops())
}

func TestRingItemsOrder(t *testing.T) {
	buf := NewRing[int](4)
	for i := 1; i <= 6; i++ {
		buf.Write(i)
	}
	// Oldest two evicted, order preserved oldest first.
	assert.Equal(t, []int{3, 4, 5, 6}, buf.Items())
}

func TestRingEmptyReads(t *testing.T) {
	buf := NewRing[int](1)

	_, ok := buf.Read()
	assert.False(t, ok)
	_, ok = buf.Peek()
	assert.False(t, ok)
}

func TestRingClear(t *testing.T) {
	buf := NewRing[int](3)
	buf.Write(1)
	buf.Write(2)
	buf.Clear()

	assert.Equal(t, 0, buf.Len())
	_, ok := buf.Read()
	assert.False(t, ok)

	buf.Write(9)
	assert.Equal(t, []int{9}, buf.Items())
}

func TestRingMinimumCapacity(t *testing.T) {
	buf := NewRing[int](0)
	assert.Equal(t, 1, buf.Cap())
	buf.Write(1)
	buf.Write(2)
	assert.Equal(t, []int{2}, buf.Items())
}

func TestRingConcurrentAccess(t *testing.T) {
	buf := NewRing[int](64)
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				buf.Write(base*100 + i)
				buf.Read()
				buf.Items()
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, buf.Len(), buf.Cap())
	assert.Equal(t, int64(800), buf.Stats().Writes(), "DropOldest stores every write")
}
