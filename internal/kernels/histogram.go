package kernels

import (
	"sync/atomic"

	"github.com/fxnlabs/gpu-examples/internal/compute"
)

// histogram counts values below BINS into a work-group local histogram and
// merges it into the global one with atomic adds. hist must be zeroed first.
func histogram() compute.KernelDef {
	return compute.KernelDef{
		Name: Histogram,
		Params: []compute.Param{
			compute.In("data", compute.Uint32),
			compute.InOut("hist", compute.Uint32),
			compute.Scalar("n"),
		},
		Requires: []string{DefineBins},
		Barriers: true,
		Local: func(c compute.Constants) []compute.LocalDecl {
			return []compute.LocalDecl{{Elem: compute.Uint32, Len: c.Int(DefineBins)}}
		},
		Build: func(c compute.Constants) (compute.KernelFunc, error) {
			bins := c.Int(DefineBins)
			return func(it *compute.WorkItem, args compute.Args) {
				data, hist, n := args.Uint32s(0), args.Uint32s(1), args.Int(2)
				local := it.LocalUint32(0)
				lid, gid, lsize := it.LocalID(0), it.GlobalID(0), it.LocalSize(0)

				for i := lid; i < bins; i += lsize {
					atomic.StoreUint32(&local[i], 0)
				}
				it.Barrier()

				if gid < n {
					if v := data[gid]; v < uint32(bins) {
						atomic.AddUint32(&local[v], 1)
					}
				}
				it.Barrier()

				for i := lid; i < bins; i += lsize {
					if count := atomic.LoadUint32(&local[i]); count != 0 {
						atomic.AddUint32(&hist[i], count)
					}
				}
			}, nil
		},
	}
}
