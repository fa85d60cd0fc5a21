package proxy

import "sync"

const copyBufferSize = 32 * 1024

// bufferPool implements httputil.BufferPool with fixed 32KB buffers.
type bufferPool struct {
	pool sync.Pool
}

func newBufferPool() *bufferPool {
	return &bufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				b := make([]byte, copyBufferSize)
				return &b
			},
		},
	}
}

func (bp *bufferPool) Get() []byte {
	return *bp.pool.Get().(*[]byte)
}

func (bp *bufferPool) Put(b []byte) {
	// Only pool buffers of the expected size
	if cap(b) != copyBufferSize {
		return
	}
	b = b[:cap(b)]
	bp.pool.Put(&b)
}
