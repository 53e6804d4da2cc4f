package optimize

import (
	"sync"
)

// BytePool recycles fixed-size byte buffers, such as the read buffers of
// long-lived ingress requests.
type BytePool struct {
	pool sync.Pool
	size int
}

// NewBytePool creates a new byte pool with specified size
func NewBytePool(size int) *BytePool {
	p := &BytePool{size: size}
	p.pool.New = func() interface{} {
		b := make([]byte, size)
		return &b
	}
	return p
}

// Get returns a buffer of exactly Size bytes.
func (p *BytePool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool. Buffers smaller than Size are dropped.
func (p *BytePool) Put(b *[]byte) {
	if b == nil || cap(*b) < p.size {
		return
	}
	*b = (*b)[:p.size]
	p.pool.Put(b)
}

func (p *BytePool) Size() int {
	return p.size
}
