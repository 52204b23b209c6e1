package utils

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

const (
	VIDEO_ALLOCATION_SIZE = 128 * 1024
	AUDIO_ALLOCATION_SIZE = 4 * 1024
)

var (
	ErrPoolExhausted      = errors.New("pool exhausted")
	ErrAllocationOverflow = errors.New("allocation overflow")
)

// Allocation is a fixed capacity buffer handed out by an Allocator. It is
// owned by exactly one holder until Release.
type Allocation struct {
	data     []byte
	size     int
	owner    *Allocator
	released int32
}

func (a *Allocation) Bytes() []byte {
	return a.data[:a.size]
}

// Array exposes the whole backing buffer, including the unwritten tail.
func (a *Allocation) Array() []byte {
	return a.data
}

func (a *Allocation) Size() int {
	return a.size
}

func (a *Allocation) Cap() int {
	return len(a.data)
}

func (a *Allocation) Remain() int {
	return len(a.data) - a.size
}

func (a *Allocation) ensure(n int) {
	if a.size+n > len(a.data) {
		panic(fmt.Errorf("%w: size %d + %d > %d", ErrAllocationOverflow, a.size, n, len(a.data)))
	}
}

// Put appends one byte at the write offset.
func (a *Allocation) Put(b byte) {
	a.ensure(1)
	a.data[a.size] = b
	a.size++
}

// PutAt writes b at pos and moves the write offset past it when needed.
func (a *Allocation) PutAt(b byte, pos int) {
	if pos >= len(a.data) || pos < 0 {
		panic(fmt.Errorf("%w: pos %d cap %d", ErrAllocationOverflow, pos, len(a.data)))
	}
	a.data[pos] = b
	if pos+1 > a.size {
		a.size = pos + 1
	}
}

// Write appends p. It never returns an error: running out of room is a
// programming error and panics.
func (a *Allocation) Write(p []byte) (int, error) {
	a.ensure(len(p))
	copy(a.data[a.size:], p)
	a.size += len(p)
	return len(p), nil
}

func (a *Allocation) AppendOffset(n int) {
	a.ensure(n)
	a.size += n
}

// Release hands the buffer back to its allocator. Only the first call has an
// effect.
func (a *Allocation) Release() {
	if !atomic.CompareAndSwapInt32(&a.released, 0, 1) {
		logrus.Error("allocation released twice")
		return
	}
	a.owner.release(a)
}

// Allocator owns buffers of one individual size.
type Allocator struct {
	mu    sync.Mutex
	size  int
	limit int
	total int
	idle  []*Allocation
}

// NewAllocator creates an allocator of buffers of size bytes, warmed with
// prealloc idle buffers. A positive limit caps the number of buffers ever
// created.
func NewAllocator(size, prealloc, limit int) *Allocator {
	al := &Allocator{
		size:  size,
		limit: limit,
	}
	if limit > 0 && prealloc > limit {
		prealloc = limit
	}
	for i := 0; i < prealloc; i++ {
		al.idle = append(al.idle, al.newAllocation())
	}
	return al
}

func (al *Allocator) newAllocation() *Allocation {
	al.total++
	return &Allocation{
		data:  make([]byte, al.size),
		owner: al,
	}
}

func (al *Allocator) Allocate() (*Allocation, error) {
	al.mu.Lock()
	defer al.mu.Unlock()
	if n := len(al.idle); n > 0 {
		a := al.idle[n-1]
		al.idle[n-1] = nil
		al.idle = al.idle[:n-1]
		a.size = 0
		atomic.StoreInt32(&a.released, 0)
		return a, nil
	}
	if al.limit > 0 && al.total >= al.limit {
		return nil, ErrPoolExhausted
	}
	return al.newAllocation(), nil
}

func (al *Allocator) release(a *Allocation) {
	al.mu.Lock()
	al.idle = append(al.idle, a)
	al.mu.Unlock()
}

func (al *Allocator) IndividualAllocationSize() int {
	return al.size
}

func (al *Allocator) Idle() int {
	al.mu.Lock()
	defer al.mu.Unlock()
	return len(al.idle)
}

func (al *Allocator) Total() int {
	al.mu.Lock()
	defer al.mu.Unlock()
	return al.total
}

func (al *Allocator) InUse() int {
	al.mu.Lock()
	defer al.mu.Unlock()
	return al.total - len(al.idle)
}

// Pool groups allocators by individual size so several sessions can share
// buffers process-wide.
type Pool struct {
	mu       sync.Mutex
	prealloc int
	limit    int
	poolMap  map[int]*Allocator
}

func NewPool(prealloc, limit int, sizes ...int) *Pool {
	p := &Pool{
		prealloc: prealloc,
		limit:    limit,
		poolMap:  make(map[int]*Allocator),
	}
	for _, l := range sizes {
		p.poolMap[l] = NewAllocator(l, prealloc, limit)
	}
	return p
}

// Get returns the allocator for size l, creating it on first use.
func (p *Pool) Get(l int) *Allocator {
	p.mu.Lock()
	defer p.mu.Unlock()
	al, ok := p.poolMap[l]
	if !ok {
		al = NewAllocator(l, p.prealloc, p.limit)
		p.poolMap[l] = al
	}
	return al
}
