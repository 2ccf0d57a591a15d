package compute

import (
	"fmt"
	"strings"
)

// MemFlags describe how kernels may access a buffer.
type MemFlags int

const (
	MemReadWrite MemFlags = 1 << iota
	MemWriteOnly
	MemReadOnly
)

func (f MemFlags) String() string {
	var parts []string
	if f&MemReadWrite != 0 {
		parts = append(parts, "READ_WRITE")
	}
	if f&MemWriteOnly != 0 {
		parts = append(parts, "WRITE_ONLY")
	}
	if f&MemReadOnly != 0 {
		parts = append(parts, "READ_ONLY")
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

func (f MemFlags) valid() bool {
	switch f {
	case MemReadWrite, MemWriteOnly, MemReadOnly:
		return true
	}
	return false
}

// ElementType is the element type stored in a buffer.
type ElementType int

const (
	Float32 ElementType = iota + 1
	Uint32
)

func (t ElementType) String() string {
	switch t {
	case Float32:
		return "float"
	case Uint32:
		return "uint"
	default:
		return "invalid"
	}
}

// Size returns the element size in bytes.
func (t ElementType) Size() int64 {
	return 4
}

// Element constrains the host slice types a buffer can hold.
type Element interface {
	float32 | uint32
}

func elementTypeOf[T Element]() ElementType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float32
	default:
		return Uint32
	}
}

// Buffer is device-resident storage owned by one Context. A buffer is live from
// creation until Release, or until its context is released.
type Buffer struct {
	ctx      *Context
	flags    MemFlags
	elem     ElementType
	n        int
	f32      []float32
	u32      []uint32
	released bool
}

func (b *Buffer) Len() int             { return b.n }
func (b *Buffer) Flags() MemFlags      { return b.flags }
func (b *Buffer) Element() ElementType { return b.elem }

// Bytes returns the allocation size in bytes.
func (b *Buffer) Bytes() int64 {
	return int64(b.n) * b.elem.Size()
}

func (b *Buffer) kernelReadable() bool { return b.flags&MemWriteOnly == 0 }
func (b *Buffer) kernelWritable() bool { return b.flags&MemReadOnly == 0 }

func (b *Buffer) String() string {
	return fmt.Sprintf("buffer(%s[%d], %s)", b.elem, b.n, b.flags)
}

// Release frees the buffer. Releasing twice is an error.
func (b *Buffer) Release() error {
	return b.ctx.releaseBuffer(b)
}

// live reports whether the buffer can still be used; the caller must hold ctx.mu.
func (b *Buffer) live() bool {
	return !b.released
}

// view returns the buffer storage as []T. It panics on a type mismatch, which
// callers rule out by checking elem first.
func view[T Element](b *Buffer) []T {
	switch b.elem {
	case Float32:
		return any(b.f32).([]T)
	default:
		return any(b.u32).([]T)
	}
}
