package mqtt3

import (
	"sync"
)

// Size of a single payload read in the stream decoder.
const readChunkSize = 768

// bytesBuffer is a reusable encode buffer.
type bytesBuffer struct {
	data []byte
}

// Buffer pools for reducing allocations in hot paths.
var (
	// bytesBufferPool for frame encoding
	bytesBufferPool = sync.Pool{
		New: func() any {
			return &bytesBuffer{data: make([]byte, 0, 256)}
		},
	}

	// readChunkPool for decoder reads
	readChunkPool = sync.Pool{
		New: func() any {
			b := make([]byte, readChunkSize)
			return &b
		},
	}
)

// getBytesBuffer returns a pooled bytesBuffer.
func getBytesBuffer() *bytesBuffer {
	b := bytesBufferPool.Get().(*bytesBuffer)
	b.data = b.data[:0]
	return b
}

// putBytesBuffer returns a bytesBuffer to the pool.
func putBytesBuffer(b *bytesBuffer) {
	if b == nil {
		return
	}
	// Only pool if capacity is reasonable (64KB)
	if cap(b.data) <= 65536 {
		b.data = b.data[:0]
		bytesBufferPool.Put(b)
	}
}

// getReadChunk returns a pooled read chunk of readChunkSize bytes.
func getReadChunk() *[]byte {
	return readChunkPool.Get().(*[]byte)
}

// putReadChunk returns a read chunk to the pool.
func putReadChunk(b *[]byte) {
	if b == nil || len(*b) != readChunkSize {
		return
	}
	readChunkPool.Put(b)
}
