package compute

import (
	"errors"
	"sync"
)

var (
	errBarrierBroken     = errors.New("barrier abandoned by an exited work-item")
	errBarrierUndeclared = errors.New("barrier called by a kernel registered without barriers")
)

// WorkItem is the identity of one execution unit within a launch, plus access to
// the local memory and barrier of its work-group.
type WorkItem struct {
	dims       int
	globalID   [3]int
	localID    [3]int
	groupID    [3]int
	globalSize [3]int
	localSize  [3]int
	numGroups  [3]int

	local   []any
	barrier *barrier
}

func (it *WorkItem) WorkDim() int                    { return it.dims }
func (it *WorkItem) GlobalID(d int) int              { return it.globalID[d] }
func (it *WorkItem) LocalID(d int) int               { return it.localID[d] }
func (it *WorkItem) GroupID(d int) int               { return it.groupID[d] }
func (it *WorkItem) GlobalSize(d int) int            { return it.globalSize[d] }
func (it *WorkItem) LocalSize(d int) int             { return it.localSize[d] }
func (it *WorkItem) NumGroups(d int) int             { return it.numGroups[d] }
func (it *WorkItem) LocalFloat32(slot int) []float32 { return it.local[slot].([]float32) }
func (it *WorkItem) LocalUint32(slot int) []uint32   { return it.local[slot].([]uint32) }

// LocalLinearID flattens the local id, x fastest.
func (it *WorkItem) LocalLinearID() int {
	return it.localID[0] + it.localSize[0]*(it.localID[1]+it.localSize[1]*it.localID[2])
}

// Barrier blocks until every work-item of the group reaches it. All work-items
// of a group must call Barrier the same number of times; a group where one item
// exits while others wait fails the launch with BarrierDivergence.
func (it *WorkItem) Barrier() {
	if it.barrier == nil {
		panic(errBarrierUndeclared)
	}
	it.barrier.wait()
}

// barrier is a cyclic barrier for one work-group.
type barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	size    int
	waiting int
	exited  int
	phase   uint64
	broken  bool
}

func newBarrier(size int) *barrier {
	b := &barrier{size: size}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *barrier) wait() {
	b.mu.Lock()
	if b.broken || b.exited > 0 {
		b.breakLocked()
		b.mu.Unlock()
		panic(errBarrierBroken)
	}
	b.waiting++
	if b.waiting == b.size {
		b.waiting = 0
		b.phase++
		b.cond.Broadcast()
		b.mu.Unlock()
		return
	}
	phase := b.phase
	for phase == b.phase && !b.broken {
		b.cond.Wait()
	}
	broken := phase == b.phase
	b.mu.Unlock()
	if broken {
		panic(errBarrierBroken)
	}
}

// exit records a work-item leaving the kernel, normally or by panic.
func (b *barrier) exit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exited++
	if b.waiting > 0 {
		b.breakLocked()
	}
}

func (b *barrier) breakLocked() {
	b.broken = true
	b.cond.Broadcast()
}
