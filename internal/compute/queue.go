package compute

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CommandType names the kind of a queued command.
type CommandType string

const (
	CommandWriteBuffer CommandType = "write_buffer"
	CommandReadBuffer  CommandType = "read_buffer"
	CommandCopyBuffer  CommandType = "copy_buffer"
	CommandNDRange     CommandType = "ndrange_kernel"
	CommandMarker      CommandType = "marker"
)

// Profile holds the timestamps of a completed command.
type Profile struct {
	Queued time.Time
	Start  time.Time
	End    time.Time
}

// Duration is the device execution time, start to end.
func (p Profile) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// Event tracks one enqueued command.
type Event struct {
	cmd       CommandType
	label     string
	profiling bool
	local     NDRange

	done   chan struct{}
	queued time.Time
	start  time.Time
	end    time.Time
	err    error
}

func newEvent(cmd CommandType, label string, profiling bool) *Event {
	return &Event{
		cmd:       cmd,
		label:     label,
		profiling: profiling,
		done:      make(chan struct{}),
		queued:    time.Now(),
	}
}

func (e *Event) Command() CommandType { return e.cmd }

// Local is the work-group extent a kernel launch ran with, resolved when the
// caller passed a null local range. It is null for other commands.
func (e *Event) Local() NDRange { return e.local }

// Wait blocks until the command completes and returns its error.
func (e *Event) Wait() error {
	<-e.done
	return e.err
}

// Done is closed when the command completes.
func (e *Event) Done() <-chan struct{} {
	return e.done
}

// Profile returns the command timestamps. It fails for commands of a queue
// created without profiling, and blocks until the command completes.
func (e *Event) Profile() (Profile, error) {
	if !e.profiling {
		return Profile{}, newError(CodeInvalidValue, "GetEventProfilingInfo", "profiling not enabled on the queue of %s", e.label)
	}
	<-e.done
	return Profile{Queued: e.queued, Start: e.start, End: e.end}, nil
}

// Duration is a shorthand for Profile().Duration() that returns 0 when
// profiling is unavailable.
func (e *Event) Duration() time.Duration {
	p, err := e.Profile()
	if err != nil {
		return 0
	}
	return p.Duration()
}

// WaitForEvents waits for every event and returns the first error.
func WaitForEvents(events ...*Event) error {
	var first error
	for _, e := range events {
		if err := e.Wait(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type command struct {
	event *Event
	run   func() error
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithProfiling records start and end timestamps on every event.
func WithProfiling() QueueOption {
	return func(q *Queue) {
		q.profiling = true
	}
}

// Queue is an in-order command queue. Commands run one at a time on a single
// worker goroutine in submission order; enqueue calls return immediately with
// an Event.
type Queue struct {
	ctx       *Context
	logger    *zap.Logger
	profiling bool

	cmds   chan command
	exited chan struct{}

	mu       sync.Mutex
	released bool

	errMu sync.Mutex
	err   error
}

// NewQueue creates a queue on the context's device.
func (c *Context) NewQueue(opts ...QueueOption) (*Queue, error) {
	q := &Queue{
		ctx:    c,
		logger: c.logger.Named("queue"),
		cmds:   make(chan command, 64),
		exited: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	if err := c.addQueue(q); err != nil {
		return nil, err
	}
	go q.worker()
	return q, nil
}

func (q *Queue) Profiling() bool { return q.profiling }

func (q *Queue) worker() {
	defer close(q.exited)
	for c := range q.cmds {
		ev := c.event
		ev.start = time.Now()
		err := c.run()
		ev.end = time.Now()
		ev.err = err
		if err != nil {
			q.logger.Debug("command failed", zap.String("command", ev.label), zap.Error(err))
			q.errMu.Lock()
			if q.err == nil {
				q.err = err
			}
			q.errMu.Unlock()
		}
		close(ev.done)
	}
}

func (q *Queue) enqueue(cmd CommandType, label string, run func() error) (*Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released {
		return nil, newError(CodeInvalidValue, string(cmd), "queue released")
	}
	ev := newEvent(cmd, label, q.profiling)
	q.cmds <- command{event: ev, run: run}
	return ev, nil
}

// Finish blocks until every previously enqueued command has completed. It
// returns the first command error since the previous Finish.
func (q *Queue) Finish() error {
	ev, err := q.enqueue(CommandMarker, "finish", func() error { return nil })
	if err != nil {
		return err
	}
	_ = ev.Wait()
	q.errMu.Lock()
	defer q.errMu.Unlock()
	err, q.err = q.err, nil
	return err
}

// Release drains the queue and stops its worker. Releasing twice is a no-op.
func (q *Queue) Release() error {
	q.mu.Lock()
	if q.released {
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()
	err := q.Finish()

	q.mu.Lock()
	if !q.released {
		q.released = true
		close(q.cmds)
	}
	q.mu.Unlock()
	<-q.exited
	return err
}

// EnqueueWriteBuffer copies src into b. src must stay unchanged until the
// returned event completes.
func EnqueueWriteBuffer[T Element](q *Queue, b *Buffer, src []T) (*Event, error) {
	const op = "EnqueueWriteBuffer"
	if err := checkTransfer[T](q, op, b, len(src)); err != nil {
		return nil, err
	}
	return q.enqueue(CommandWriteBuffer, fmt.Sprintf("write %s", b), func() error {
		copy(view[T](b), src)
		return nil
	})
}

// EnqueueReadBuffer copies b into dst. dst must not be used until the returned
// event completes.
func EnqueueReadBuffer[T Element](q *Queue, b *Buffer, dst []T) (*Event, error) {
	const op = "EnqueueReadBuffer"
	if err := checkTransfer[T](q, op, b, len(dst)); err != nil {
		return nil, err
	}
	return q.enqueue(CommandReadBuffer, fmt.Sprintf("read %s", b), func() error {
		copy(dst, view[T](b))
		return nil
	})
}

// ReadBuffer is a blocking read: it enqueues the copy and waits for it.
func ReadBuffer[T Element](q *Queue, b *Buffer, dst []T) error {
	ev, err := EnqueueReadBuffer(q, b, dst)
	if err != nil {
		return err
	}
	return ev.Wait()
}

func checkTransfer[T Element](q *Queue, op string, b *Buffer, n int) error {
	if err := q.ctx.checkBuffer(op, b); err != nil {
		return err
	}
	if want := elementTypeOf[T](); b.elem != want {
		return newError(CodeInvalidValue, op, "host data is %s but %s", want, b)
	}
	if n > b.n {
		return newError(CodeInvalidValue, op, "%d host elements do not fit %s", n, b)
	}
	return nil
}

// EnqueueCopyBuffer copies src into dst on the device.
func (q *Queue) EnqueueCopyBuffer(src, dst *Buffer) (*Event, error) {
	const op = "EnqueueCopyBuffer"
	for _, b := range []*Buffer{src, dst} {
		if err := q.ctx.checkBuffer(op, b); err != nil {
			return nil, err
		}
	}
	if src == dst {
		return nil, newError(CodeInvalidValue, op, "source and destination are the same %s", src)
	}
	if src.elem != dst.elem || src.n > dst.n {
		return nil, newError(CodeInvalidValue, op, "cannot copy %s into %s", src, dst)
	}
	return q.enqueue(CommandCopyBuffer, fmt.Sprintf("copy %s", src), func() error {
		switch src.elem {
		case Float32:
			copy(dst.f32, src.f32)
		case Uint32:
			copy(dst.u32, src.u32)
		}
		return nil
	})
}

// EnqueueNDRange launches k over global work-items grouped by local. A null
// local range lets the runtime choose. The dispatch shape is validated against
// the device limits before the launch is queued.
func (q *Queue) EnqueueNDRange(k *Kernel, global, local NDRange) (*Event, error) {
	const op = "EnqueueNDRangeKernel"
	if k.ctx != q.ctx {
		return nil, newError(CodeInvalidValue, op, "kernel '%s' belongs to another context", k.Name())
	}
	args, err := k.snapshot(op)
	if err != nil {
		return nil, err
	}
	l, err := planLaunch(op, q.ctx.device, k, global, local)
	if err != nil {
		return nil, err
	}
	l.args = args
	q.logger.Debug("launch enqueued",
		zap.String("kernel", k.Name()),
		zap.Stringer("global", global),
		zap.String("local", fmt.Sprint(l.local[:l.dims])))
	ev, err := q.enqueue(CommandNDRange, "kernel "+k.Name(), func() error {
		return q.execute(l)
	})
	if err != nil {
		return nil, err
	}
	ev.local = NDRange{dims: l.dims, size: l.local}
	return ev, nil
}

// EnqueueTask launches k as a single work-item.
func (q *Queue) EnqueueTask(k *Kernel) (*Event, error) {
	return q.EnqueueNDRange(k, Range1D(1), Range1D(1))
}
