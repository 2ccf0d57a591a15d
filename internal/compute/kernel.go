package compute

import (
	"fmt"
	"math"
)

// Kernel is one kernel of a built program together with its argument slots.
// Arguments are captured when the kernel is enqueued, so a kernel can be
// re-armed while an earlier launch is still queued.
type Kernel struct {
	ctx   *Context
	def   KernelDef
	fn    KernelFunc
	local []LocalDecl
	args  []any
}

func (k *Kernel) Name() string    { return k.def.Name }
func (k *Kernel) Params() []Param { return append([]Param(nil), k.def.Params...) }

// LocalMemSize returns the work-group local memory the kernel needs in bytes.
func (k *Kernel) LocalMemSize() int64 {
	var total int64
	for _, d := range k.local {
		total += d.bytes()
	}
	return total
}

// SetArg binds argument i. Buffer parameters take a *Buffer whose element type
// matches and whose flags allow the parameter's access; scalar parameters take
// a uint32 or a non-negative int.
func (k *Kernel) SetArg(i int, v any) error {
	const op = "SetKernelArg"
	if i < 0 || i >= len(k.def.Params) {
		return newError(CodeInvalidValue, op, "kernel '%s' has no argument %d", k.def.Name, i)
	}
	p := k.def.Params[i]
	switch p.Kind {
	case ParamBuffer:
		b, ok := v.(*Buffer)
		if !ok {
			return newError(CodeInvalidKernelArgs, op, "argument %d (%s) of '%s' must be a buffer, got %T", i, p.Name, k.def.Name, v)
		}
		if err := k.ctx.checkBuffer(op, b); err != nil {
			return err
		}
		if b.elem != p.Elem {
			return newError(CodeInvalidKernelArgs, op, "argument %d (%s) of '%s' expects %s elements, got %s", i, p.Name, k.def.Name, p.Elem, b)
		}
		if (p.Access == AccessRead || p.Access == AccessReadWrite) && !b.kernelReadable() {
			return newError(CodeInvalidKernelArgs, op, "argument %d (%s) of '%s' is read by the kernel but %s is write-only", i, p.Name, k.def.Name, b)
		}
		if (p.Access == AccessWrite || p.Access == AccessReadWrite) && !b.kernelWritable() {
			return newError(CodeInvalidKernelArgs, op, "argument %d (%s) of '%s' is written by the kernel but %s is read-only", i, p.Name, k.def.Name, b)
		}
		k.args[i] = b
	case ParamScalar:
		switch s := v.(type) {
		case uint32:
			k.args[i] = s
		case int:
			if s < 0 || uint64(s) > math.MaxUint32 {
				return newError(CodeInvalidKernelArgs, op, "argument %d (%s) of '%s' out of uint range: %d", i, p.Name, k.def.Name, s)
			}
			k.args[i] = uint32(s)
		default:
			return newError(CodeInvalidKernelArgs, op, "argument %d (%s) of '%s' must be uint, got %T", i, p.Name, k.def.Name, v)
		}
	}
	return nil
}

// SetArgs binds arguments in order.
func (k *Kernel) SetArgs(values ...any) error {
	for i, v := range values {
		if err := k.SetArg(i, v); err != nil {
			return err
		}
	}
	return nil
}

// snapshot validates the bound arguments and captures them for one launch.
func (k *Kernel) snapshot(op string) (Args, error) {
	values := make([]any, len(k.args))
	for i, v := range k.args {
		if v == nil {
			return Args{}, newError(CodeInvalidKernelArgs, op, "argument %d (%s) of '%s' is not set", i, k.def.Params[i].Name, k.def.Name)
		}
		if b, ok := v.(*Buffer); ok {
			if err := k.ctx.checkBuffer(op, b); err != nil {
				return Args{}, err
			}
		}
		values[i] = v
	}
	if err := k.checkAliasing(op); err != nil {
		return Args{}, err
	}
	return Args{values: values}, nil
}

// checkAliasing rejects a buffer bound to a written parameter and to any other
// parameter of the same launch.
func (k *Kernel) checkAliasing(op string) error {
	for i, p := range k.def.Params {
		if p.Kind != ParamBuffer || p.Access == AccessRead {
			continue
		}
		for j, q := range k.def.Params {
			if i == j || q.Kind != ParamBuffer {
				continue
			}
			if k.args[i] == k.args[j] {
				return newError(CodeInvalidKernelArgs, op, "'%s' writes %s through %s while it is also bound to %s",
					k.def.Name, k.args[i], p.Name, q.Name)
			}
		}
	}
	return nil
}

// Args are the arguments of one launch as seen by the kernel body.
type Args struct {
	values []any
}

func (a Args) Len() int { return len(a.values) }

// Float32 returns the storage of buffer argument i.
func (a Args) Float32(i int) []float32 {
	return a.buffer(i).f32
}

// Uint32s returns the storage of buffer argument i.
func (a Args) Uint32s(i int) []uint32 {
	return a.buffer(i).u32
}

// Uint32 returns scalar argument i.
func (a Args) Uint32(i int) uint32 {
	return a.values[i].(uint32)
}

// Int returns scalar argument i as an int.
func (a Args) Int(i int) int {
	return int(a.Uint32(i))
}

func (a Args) buffer(i int) *Buffer {
	b, ok := a.values[i].(*Buffer)
	if !ok {
		panic(fmt.Sprintf("argument %d is not a buffer", i))
	}
	return b
}
