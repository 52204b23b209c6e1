package utils

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorReuse(t *testing.T) {
	t.Parallel()
	al := NewAllocator(16, 2, 0)
	assert.Equal(t, 2, al.Idle())
	assert.Equal(t, 16, al.IndividualAllocationSize())

	a, err := al.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 1, al.Idle())
	assert.Equal(t, 1, al.InUse())

	a.Put(0x01)
	a.Write([]byte{0x02, 0x03})
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, a.Bytes())
	assert.Equal(t, 13, a.Remain())
	assert.Equal(t, 16, a.Cap())

	a.Release()
	assert.Equal(t, 2, al.Idle())
	assert.Equal(t, 0, al.InUse())

	b, err := al.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 0, b.Size(), "reused allocation starts empty")
	b.Release()
}

func TestAllocatorGrows(t *testing.T) {
	t.Parallel()
	al := NewAllocator(8, 0, 0)
	var held []*Allocation
	for i := 0; i < 5; i++ {
		a, err := al.Allocate()
		require.NoError(t, err)
		held = append(held, a)
	}
	assert.Equal(t, 5, al.Total())
	for _, a := range held {
		a.Release()
	}
	assert.Equal(t, 5, al.Idle())
}

func TestAllocatorLimit(t *testing.T) {
	t.Parallel()
	al := NewAllocator(8, 0, 1)
	a, err := al.Allocate()
	require.NoError(t, err)

	_, err = al.Allocate()
	assert.ErrorIs(t, err, ErrPoolExhausted)

	a.Release()
	_, err = al.Allocate()
	assert.NoError(t, err)
}

func TestAllocationOverflowPanics(t *testing.T) {
	t.Parallel()
	al := NewAllocator(4, 0, 0)
	a, err := al.Allocate()
	require.NoError(t, err)
	a.Write([]byte{1, 2, 3})
	assert.Panics(t, func() {
		a.Write([]byte{4, 5})
	})
	assert.Panics(t, func() {
		a.PutAt(1, 4)
	})
}

func TestAllocationDoubleRelease(t *testing.T) {
	t.Parallel()
	al := NewAllocator(4, 0, 0)
	a, err := al.Allocate()
	require.NoError(t, err)
	a.Release()
	a.Release()
	assert.Equal(t, 1, al.Idle(), "second release must not duplicate the buffer")
}

func TestAllocatorConcurrent(t *testing.T) {
	t.Parallel()
	al := NewAllocator(32, 4, 0)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				a, err := al.Allocate()
				if err != nil {
					t.Error(err)
					return
				}
				a.Put(byte(i))
				a.Release()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, al.InUse())
	assert.Equal(t, al.Total(), al.Idle())
}

func TestPoolGet(t *testing.T) {
	t.Parallel()
	p := NewPool(1, 0, VIDEO_ALLOCATION_SIZE)
	v := p.Get(VIDEO_ALLOCATION_SIZE)
	assert.Same(t, v, p.Get(VIDEO_ALLOCATION_SIZE))
	assert.Equal(t, 1, v.Idle())

	a := p.Get(AUDIO_ALLOCATION_SIZE)
	assert.Equal(t, AUDIO_ALLOCATION_SIZE, a.IndividualAllocationSize())
	assert.NotSame(t, v, a)
}
