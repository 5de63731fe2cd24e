package webgpu

import (
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
)

const (
	// Size thresholds for pool buckets.
	smallThreshold  = 4 * 1024    // 4KB
	mediumThreshold = 1024 * 1024 // 1MB
	maxPoolSize     = 100         // Max buffers per bucket
)

// pooledBuffer wraps a GPU buffer with its creation size.
type pooledBuffer struct {
	buffer *wgpu.Buffer
	size   uint64
}

// bufferPool reuses storage buffers to cut allocation overhead. All
// buffers in the pool carry the same usage flags (storage | copy src |
// copy dst), so matching is by size only.
type bufferPool struct {
	device *wgpu.Device
	usage  wgpu.BufferUsage

	mu     sync.Mutex
	small  []*pooledBuffer
	medium []*pooledBuffer
	large  []*pooledBuffer

	hits   uint64
	misses uint64
}

func newBufferPool(device *wgpu.Device, usage wgpu.BufferUsage) *bufferPool {
	return &bufferPool{device: device, usage: usage}
}

// acquire returns a pooled buffer of at least size bytes, creating one
// when the pool has no fit.
func (p *bufferPool) acquire(size uint64) *wgpu.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.bucket(size)
	for i, pb := range *bucket {
		if pb.size >= size {
			*bucket = append((*bucket)[:i], (*bucket)[i+1:]...)
			p.hits++
			return pb.buffer
		}
	}

	p.misses++
	return p.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: p.usage,
		Size:  size,
	})
}

// release returns a buffer to the pool, or destroys it when the bucket
// is full.
func (p *bufferPool) release(buffer *wgpu.Buffer, size uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.bucket(size)
	if len(*bucket) >= maxPoolSize {
		buffer.Release()
		return
	}
	*bucket = append(*bucket, &pooledBuffer{buffer: buffer, size: size})
}

// clear releases every pooled buffer.
func (p *bufferPool) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, bucket := range []*[]*pooledBuffer{&p.small, &p.medium, &p.large} {
		for _, pb := range *bucket {
			pb.buffer.Release()
		}
		*bucket = (*bucket)[:0]
	}
}

// stats returns hit/miss counters and the pooled buffer count.
func (p *bufferPool) stats() (hits, misses uint64, pooled int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits, p.misses, len(p.small) + len(p.medium) + len(p.large)
}

func (p *bufferPool) bucket(size uint64) *[]*pooledBuffer {
	if size < smallThreshold {
		return &p.small
	}
	if size < mediumThreshold {
		return &p.medium
	}
	return &p.large
}
