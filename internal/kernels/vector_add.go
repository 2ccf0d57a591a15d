package kernels

import "github.com/fxnlabs/gpu-examples/internal/compute"

func vectorAdd() compute.KernelDef {
	return compute.KernelDef{
		Name: VectorAdd,
		Params: []compute.Param{
			compute.In("A", compute.Float32),
			compute.In("B", compute.Float32),
			compute.Out("C", compute.Float32),
			compute.Scalar("n"),
		},
		Build: func(compute.Constants) (compute.KernelFunc, error) {
			return func(it *compute.WorkItem, args compute.Args) {
				a, b, c, n := args.Float32(0), args.Float32(1), args.Float32(2), args.Int(3)
				if id := it.GlobalID(0); id < n {
					c[id] = a[id] + b[id]
				}
			}, nil
		},
	}
}

func singleTask() compute.KernelDef {
	return compute.KernelDef{
		Name:   SingleTask,
		Params: []compute.Param{compute.Out("flag", compute.Uint32)},
		Build: func(compute.Constants) (compute.KernelFunc, error) {
			return func(_ *compute.WorkItem, args compute.Args) {
				args.Uint32s(0)[0] = 1
			}, nil
		},
	}
}
