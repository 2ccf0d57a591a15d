package kernels

import (
	"fmt"

	"github.com/fxnlabs/gpu-examples/internal/compute"
)

var matmulParams = []compute.Param{
	compute.In("A", compute.Float32),
	compute.In("B", compute.Float32),
	compute.Out("C", compute.Float32),
	compute.Scalar("N"),
}

// matrixMultSimple computes one element of C per work-item.
func matrixMultSimple() compute.KernelDef {
	return compute.KernelDef{
		Name:   MatrixMult,
		Params: matmulParams,
		Build: func(compute.Constants) (compute.KernelFunc, error) {
			return func(it *compute.WorkItem, args compute.Args) {
				a, b, c, n := args.Float32(0), args.Float32(1), args.Float32(2), args.Int(3)
				row, col := it.GlobalID(0), it.GlobalID(1)
				if row >= n || col >= n {
					return
				}
				var sum float32
				for k := 0; k < n; k++ {
					sum += float32(a[row*n+k] * b[k*n+col])
				}
				c[row*n+col] = sum
			}, nil
		},
	}
}

// matrixMultTiled stages TILE x TILE blocks of A and B in local memory. Reads
// outside [0, N) stage zeros so the ragged last tile accumulates nothing, and
// every work-item runs the same ceil(N/TILE) steps so barrier counts match.
func matrixMultTiled() compute.KernelDef {
	return compute.KernelDef{
		Name:     MatrixMult,
		Params:   matmulParams,
		Requires: []string{DefineTile},
		Barriers: true,
		Local: func(c compute.Constants) []compute.LocalDecl {
			tile := c.Int(DefineTile)
			return []compute.LocalDecl{
				{Elem: compute.Float32, Len: tile * tile},
				{Elem: compute.Float32, Len: tile * tile},
			}
		},
		Build: func(c compute.Constants) (compute.KernelFunc, error) {
			tile := c.Int(DefineTile)
			return func(it *compute.WorkItem, args compute.Args) {
				if it.LocalSize(0) != tile || it.LocalSize(1) != tile {
					panic(fmt.Sprintf("work-group is %dx%d, kernel built for TILE %d", it.LocalSize(0), it.LocalSize(1), tile))
				}
				a, b, c, n := args.Float32(0), args.Float32(1), args.Float32(2), args.Int(3)
				asub, bsub := it.LocalFloat32(0), it.LocalFloat32(1)

				tx, ty := it.LocalID(0), it.LocalID(1)
				row := it.GroupID(0)*tile + tx
				col := it.GroupID(1)*tile + ty

				var sum float32
				numTiles := (n + tile - 1) / tile
				for t := 0; t < numTiles; t++ {
					k := t * tile

					if row < n && k+ty < n {
						asub[tx*tile+ty] = a[row*n+k+ty]
					} else {
						asub[tx*tile+ty] = 0
					}
					if k+tx < n && col < n {
						bsub[tx*tile+ty] = b[(k+tx)*n+col]
					} else {
						bsub[tx*tile+ty] = 0
					}

					it.Barrier()

					for kl := 0; kl < tile; kl++ {
						sum += float32(asub[tx*tile+kl] * bsub[kl*tile+ty])
					}

					it.Barrier()
				}

				if row < n && col < n {
					c[row*n+col] = sum
				}
			}, nil
		},
	}
}

// matrixMultPrivate runs the hierarchical form: each phase (stage, accumulate)
// is separated by a group-wide barrier and every work-item's running sum lives
// in its own slot of a TILE x TILE private array. There are no bounds checks,
// so N must be a multiple of TILE.
func matrixMultPrivate() compute.KernelDef {
	return compute.KernelDef{
		Name:     MatrixMultPrivate,
		Params:   matmulParams,
		Requires: []string{DefineTile},
		Barriers: true,
		Local: func(c compute.Constants) []compute.LocalDecl {
			tile := c.Int(DefineTile)
			return []compute.LocalDecl{
				{Elem: compute.Float32, Len: tile * tile},
				{Elem: compute.Float32, Len: tile * tile},
				{Elem: compute.Float32, Len: tile * tile},
			}
		},
		Build: func(c compute.Constants) (compute.KernelFunc, error) {
			tile := c.Int(DefineTile)
			return func(it *compute.WorkItem, args compute.Args) {
				if it.LocalSize(0) != tile || it.LocalSize(1) != tile {
					panic(fmt.Sprintf("work-group is %dx%d, kernel built for TILE %d", it.LocalSize(0), it.LocalSize(1), tile))
				}
				a, b, c, n := args.Float32(0), args.Float32(1), args.Float32(2), args.Int(3)
				if n%tile != 0 {
					panic(fmt.Sprintf("N=%d is not a multiple of TILE %d", n, tile))
				}
				asub, bsub, sum := it.LocalFloat32(0), it.LocalFloat32(1), it.LocalFloat32(2)

				tx, ty := it.LocalID(0), it.LocalID(1)
				row, col := it.GlobalID(0), it.GlobalID(1)
				self := tx*tile + ty

				sum[self] = 0
				for t := 0; t < n/tile; t++ {
					k := t * tile
					asub[self] = a[row*n+k+ty]
					bsub[self] = b[(k+tx)*n+col]
					it.Barrier()

					for kk := 0; kk < tile; kk++ {
						sum[self] += float32(asub[tx*tile+kk] * bsub[kk*tile+ty])
					}
					it.Barrier()
				}
				c[row*n+col] = sum[self]
			}, nil
		},
	}
}
