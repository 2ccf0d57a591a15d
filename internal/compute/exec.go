package compute

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/fxnlabs/gpu-examples/internal/gpu"
	"golang.org/x/sync/errgroup"
)

const opLaunch = "EnqueueNDRangeKernel"

// launch is a validated kernel dispatch.
type launch struct {
	kernel   string
	fn       KernelFunc
	barriers bool
	decls    []LocalDecl
	args     Args

	dims   int
	global [3]int
	local  [3]int
	groups [3]int
}

func planLaunch(op string, dev *gpu.Device, k *Kernel, global, local NDRange) (*launch, error) {
	if global.IsNull() {
		return nil, newError(CodeInvalidGlobalWorkSize, op, "global work size is null")
	}
	dims := global.Dims()
	for d := 0; d < dims; d++ {
		if global.Size(d) <= 0 {
			return nil, newError(CodeInvalidGlobalWorkSize, op, "global work size %s has an empty dimension", global)
		}
	}

	maxItems := dev.MaxWorkItemSizes()
	maxGroup := dev.MaxWorkGroupSize()
	var ls [3]int
	if local.IsNull() {
		ls = chooseLocal(global, maxItems, maxGroup)
	} else {
		if local.Dims() != dims {
			return nil, newError(CodeInvalidWorkGroupSize, op, "local work size %s does not match global work size %s", local, global)
		}
		for d := 0; d < dims; d++ {
			l := local.Size(d)
			if l <= 0 {
				return nil, newError(CodeInvalidWorkGroupSize, op, "local work size %s has an empty dimension", local)
			}
			if l > maxItems[d] {
				return nil, newError(CodeInvalidWorkItemSize, op, "local size %d in dimension %d exceeds the device maximum %d", l, d, maxItems[d])
			}
			if global.Size(d)%l != 0 {
				return nil, newError(CodeInvalidWorkGroupSize, op, "global size %d in dimension %d is not a multiple of local size %d", global.Size(d), d, l)
			}
			ls[d] = l
		}
		if local.Total() > maxGroup {
			return nil, newError(CodeInvalidWorkGroupSize, op, "work-group size %d (%s) exceeds the device maximum %d", local.Total(), local, maxGroup)
		}
	}
	if need, have := k.LocalMemSize(), dev.LocalMemSize(); need > have {
		return nil, newError(CodeOutOfResources, op, "kernel '%s' needs %d bytes of local memory, %s has %d", k.Name(), need, dev.Name(), have)
	}

	l := &launch{
		kernel:   k.Name(),
		fn:       k.fn,
		barriers: k.def.Barriers,
		decls:    k.local,
		dims:     dims,
	}
	for d := 0; d < 3; d++ {
		l.global[d] = global.Size(d)
		l.local[d] = max(ls[d], 1)
		l.groups[d] = l.global[d] / l.local[d]
	}
	return l, nil
}

// chooseLocal picks, dimension by dimension, the largest divisor of the global
// size that fits the remaining work-group budget.
func chooseLocal(global NDRange, maxItems [3]int, maxGroup int) [3]int {
	ls := [3]int{1, 1, 1}
	budget := max(maxGroup, 1)
	for d := 0; d < global.Dims(); d++ {
		ls[d] = largestDivisor(global.Size(d), min(budget, maxItems[d]))
		budget /= ls[d]
	}
	return ls
}

func largestDivisor(n, limit int) int {
	for l := min(n, limit); l > 1; l-- {
		if n%l == 0 {
			return l
		}
	}
	return 1
}

func (l *launch) groupCount() int {
	return l.groups[0] * l.groups[1] * l.groups[2]
}

func (l *launch) groupSize() int {
	return l.local[0] * l.local[1] * l.local[2]
}

// execute runs every work-group, at most one per compute unit at a time. Groups
// are independent and run in no particular order.
func (q *Queue) execute(l *launch) error {
	var g errgroup.Group
	g.SetLimit(max(q.ctx.device.ComputeUnits(), 1))

	var failed atomic.Bool
	for gi := 0; gi < l.groupCount(); gi++ {
		if failed.Load() {
			break
		}
		group := [3]int{
			gi % l.groups[0],
			(gi / l.groups[0]) % l.groups[1],
			gi / (l.groups[0] * l.groups[1]),
		}
		g.Go(func() error {
			if err := l.runGroup(group); err != nil {
				failed.Store(true)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (l *launch) newItem(group [3]int, local []any, b *barrier) *WorkItem {
	return &WorkItem{
		dims:       l.dims,
		groupID:    group,
		globalSize: l.global,
		localSize:  l.local,
		numGroups:  l.groups,
		local:      local,
		barrier:    b,
	}
}

func (l *launch) place(it *WorkItem, li int) {
	it.localID = [3]int{
		li % l.local[0],
		(li / l.local[0]) % l.local[1],
		li / (l.local[0] * l.local[1]),
	}
	for d := 0; d < 3; d++ {
		it.globalID[d] = it.groupID[d]*l.local[d] + it.localID[d]
	}
}

// runGroup executes one work-group. Without barriers the items run one after
// another on the calling goroutine; with barriers every item gets a goroutine
// so all of them can meet at each barrier.
func (l *launch) runGroup(group [3]int) error {
	local := make([]any, len(l.decls))
	for i, d := range l.decls {
		switch d.Elem {
		case Float32:
			local[i] = make([]float32, d.Len)
		case Uint32:
			local[i] = make([]uint32, d.Len)
		}
	}
	size := l.groupSize()

	if !l.barriers {
		it := l.newItem(group, local, nil)
		for li := 0; li < size; li++ {
			l.place(it, li)
			if err := l.runItem(it); err != nil {
				return err
			}
		}
		return nil
	}

	b := newBarrier(size)
	errs := make([]error, size)
	var wg sync.WaitGroup
	wg.Add(size)
	for li := 0; li < size; li++ {
		it := l.newItem(group, local, b)
		l.place(it, li)
		go func() {
			defer wg.Done()
			errs[li] = l.runItem(it)
		}()
	}
	wg.Wait()
	return groupError(errs)
}

// groupError reports the root cause of a failed group: a kernel fault wins over
// the barrier breakage it caused in the other items.
func groupError(errs []error) error {
	var divergence error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrBarrierDivergence) {
			return err
		}
		if divergence == nil {
			divergence = err
		}
	}
	return divergence
}

func (l *launch) runItem(it *WorkItem) (err error) {
	defer func() {
		r := recover()
		if it.barrier != nil {
			it.barrier.exit()
		}
		if r == nil {
			return
		}
		switch r {
		case errBarrierBroken:
			err = newError(CodeBarrierDivergence, opLaunch,
				"work-items of group %v in '%s' reached different numbers of barriers", it.groupID[:l.dims], l.kernel)
		case errBarrierUndeclared:
			err = newError(CodeExecutionFailure, opLaunch, "'%s': %v", l.kernel, errBarrierUndeclared)
		default:
			err = newError(CodeExecutionFailure, opLaunch,
				"kernel '%s' faulted at work-item %v: %v", l.kernel, it.globalID[:l.dims], r)
		}
	}()
	l.fn(it, l.args)
	return nil
}
