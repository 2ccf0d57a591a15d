package compute

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fxnlabs/gpu-examples/internal/gpu"
	"go.uber.org/zap"
)

// Context owns the buffers and queues created on one device. Release frees
// everything it still owns, so a deferred Release covers every exit path.
type Context struct {
	device   *gpu.Device
	registry *Registry
	logger   *zap.Logger

	mu        sync.Mutex
	buffers   map[*Buffer]struct{}
	queues    []*Queue
	allocated int64
	released  bool
}

// NewContext creates a context on device. Programs built in the context resolve
// kernels against registry.
func NewContext(device *gpu.Device, registry *Registry, logger *zap.Logger) (*Context, error) {
	if device == nil {
		return nil, newError(CodeInvalidValue, "NewContext", "device is nil")
	}
	if registry == nil {
		return nil, newError(CodeInvalidValue, "NewContext", "kernel registry is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{
		device:   device,
		registry: registry,
		logger:   logger,
		buffers:  make(map[*Buffer]struct{}),
	}, nil
}

func (c *Context) Device() *gpu.Device { return c.device }

// Allocated returns the bytes currently held by live buffers.
func (c *Context) Allocated() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocated
}

// LiveBuffers returns the number of buffers not yet released.
func (c *Context) LiveBuffers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffers)
}

// CreateBuffer allocates n zeroed elements of type elem.
func (c *Context) CreateBuffer(flags MemFlags, elem ElementType, n int) (*Buffer, error) {
	const op = "CreateBuffer"
	if !flags.valid() {
		return nil, newError(CodeInvalidValue, op, "invalid memory flags %s", flags)
	}
	if elem != Float32 && elem != Uint32 {
		return nil, newError(CodeInvalidValue, op, "invalid element type %d", int(elem))
	}
	if n <= 0 {
		return nil, newError(CodeInvalidValue, op, "buffer size must be positive, got %d", n)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil, newError(CodeInvalidValue, op, "context released")
	}
	size := int64(n) * elem.Size()
	if limit := c.device.GlobalMemSize(); limit > 0 && c.allocated+size > limit {
		return nil, newError(CodeOutOfResources, op,
			"allocating %d bytes exceeds device global memory (%d of %d bytes in use)", size, c.allocated, limit)
	}

	b := &Buffer{ctx: c, flags: flags, elem: elem, n: n}
	switch elem {
	case Float32:
		b.f32 = make([]float32, n)
	case Uint32:
		b.u32 = make([]uint32, n)
	}
	c.buffers[b] = struct{}{}
	c.allocated += size
	c.logger.Debug("buffer created", zap.Stringer("buffer", b), zap.Int64("allocated_bytes", c.allocated))
	return b, nil
}

// CreateBufferFrom allocates a buffer holding a copy of host, the equivalent of
// COPY_HOST_PTR.
func CreateBufferFrom[T Element](c *Context, flags MemFlags, host []T) (*Buffer, error) {
	b, err := c.CreateBuffer(flags, elementTypeOf[T](), len(host))
	if err != nil {
		return nil, err
	}
	copy(view[T](b), host)
	return b, nil
}

func (c *Context) releaseBuffer(b *Buffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b.released {
		return newError(CodeInvalidMemObject, "ReleaseBuffer", "%s already released", b)
	}
	c.freeLocked(b)
	return nil
}

func (c *Context) freeLocked(b *Buffer) {
	b.released = true
	b.f32, b.u32 = nil, nil
	delete(c.buffers, b)
	c.allocated -= b.Bytes()
}

// checkBuffer verifies b is live and owned by this context.
func (c *Context) checkBuffer(op string, b *Buffer) error {
	if b == nil {
		return newError(CodeInvalidMemObject, op, "buffer is nil")
	}
	if b.ctx != c {
		return newError(CodeInvalidMemObject, op, "%s belongs to another context", b)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !b.live() {
		return newError(CodeInvalidMemObject, op, "%s used after release", b)
	}
	return nil
}

func (c *Context) addQueue(q *Queue) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return newError(CodeInvalidValue, "NewQueue", "context released")
	}
	c.queues = append(c.queues, q)
	return nil
}

// Release drains and releases every queue, then frees every live buffer. It
// returns the joined queue errors, if any.
func (c *Context) Release() error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return nil
	}
	c.released = true
	queues := c.queues
	c.queues = nil
	c.mu.Unlock()

	var errs []error
	for _, q := range queues {
		if err := q.Release(); err != nil {
			errs = append(errs, err)
		}
	}

	c.mu.Lock()
	leaked := len(c.buffers)
	for b := range c.buffers {
		c.freeLocked(b)
	}
	c.mu.Unlock()
	if leaked > 0 {
		c.logger.Debug("released buffers still owned by context", zap.Int("count", leaked))
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to release context: %w", errors.Join(errs...))
	}
	return nil
}
