package devmem

import "sync"

// Verify that Recorder implements Service.
var _ Service = (*Recorder)(nil)

// Recorder wraps a Service and counts successful calls. Tests use it to
// assert that every allocation is matched by exactly one free and to
// observe host/device copy traffic.
type Recorder struct {
	inner  Service
	mu     sync.Mutex
	counts Counts
}

// Counts holds per-operation call counters.
type Counts struct {
	Allocates      uint64
	Frees          uint64
	HostToDevice   uint64
	DeviceToHost   uint64
	DeviceToDevice uint64
}

// NewRecorder wraps inner with call counting.
func NewRecorder(inner Service) *Recorder {
	return &Recorder{inner: inner}
}

// Name returns the wrapped service's name.
func (r *Recorder) Name() string {
	return r.inner.Name()
}

// Allocate delegates to the wrapped service, counting successes.
func (r *Recorder) Allocate(byteSize int) (Handle, error) {
	h, err := r.inner.Allocate(byteSize)
	if err == nil {
		r.bump(func(c *Counts) { c.Allocates++ })
	}
	return h, err
}

// Free delegates to the wrapped service, counting successes.
func (r *Recorder) Free(h Handle) error {
	err := r.inner.Free(h)
	if err == nil {
		r.bump(func(c *Counts) { c.Frees++ })
	}
	return err
}

// CopyHostToDevice delegates to the wrapped service, counting successes.
func (r *Recorder) CopyHostToDevice(h Handle, src []byte) error {
	err := r.inner.CopyHostToDevice(h, src)
	if err == nil {
		r.bump(func(c *Counts) { c.HostToDevice++ })
	}
	return err
}

// CopyDeviceToHost delegates to the wrapped service, counting successes.
func (r *Recorder) CopyDeviceToHost(h Handle, dst []byte) error {
	err := r.inner.CopyDeviceToHost(h, dst)
	if err == nil {
		r.bump(func(c *Counts) { c.DeviceToHost++ })
	}
	return err
}

// CopyDeviceToDevice delegates to the wrapped service, counting successes.
func (r *Recorder) CopyDeviceToDevice(dst, src Handle, byteSize int) error {
	err := r.inner.CopyDeviceToDevice(dst, src, byteSize)
	if err == nil {
		r.bump(func(c *Counts) { c.DeviceToDevice++ })
	}
	return err
}

// Counts returns a snapshot of the call counters.
func (r *Recorder) Counts() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts
}

func (r *Recorder) bump(f func(*Counts)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f(&r.counts)
}
