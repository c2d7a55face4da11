// Package pool provides the fixed-size scratch buffers backing each session
// slot's read buffer (spec.md §3 "a single bounded
// scratch buffer"). Grounded on the teacher's api.Buffer/api.BufferPool
// (api/buffer.go) and pool.BufferPoolManager (pool/bufferpool.go,
// momentics/hioload-ws), simplified: the teacher's pools are NUMA-sharded
// because hioload-ws targets many-core NUMA hosts, but spec.md targets a
// single constrained process with a fixed socket budget, so this package
// keeps the teacher's Buffer/Release shape but drops NUMA segmentation down
// to one sync.Pool per size class.
package pool

import "sync"

// Buffer is a reusable byte slice checked out from a Pool. Release returns
// it for reuse; callers must not retain Data after calling Release.
type Buffer struct {
	Data []byte
	pool *Pool
}

// Bytes returns the full backing slice.
func (b *Buffer) Bytes() []byte { return b.Data }

// Release returns the buffer to its originating pool.
func (b *Buffer) Release() {
	if b.pool != nil {
		b.pool.put(b)
	}
}

// Pool vends fixed-capacity Buffers of a single size class, matching the
// teacher's "one pool per size class" shape without the NUMA axis.
type Pool struct {
	size int
	sp   sync.Pool
}

// New constructs a Pool whose Buffers have capacity size bytes.
func New(size int) *Pool {
	p := &Pool{size: size}
	p.sp.New = func() any {
		return &Buffer{Data: make([]byte, size), pool: p}
	}
	return p
}

// Get checks out a Buffer, zeroing nothing (callers always overwrite before
// reading what they wrote).
func (p *Pool) Get() *Buffer {
	return p.sp.Get().(*Buffer)
}

func (p *Pool) put(b *Buffer) {
	if cap(b.Data) != p.size {
		return // foreign buffer, drop it rather than poison the pool
	}
	b.Data = b.Data[:p.size]
	p.sp.Put(b)
}
