// Package kernels holds the device programs: their source text, embedded in the
// binary, and the implementations the emulated runtime executes for them.
package kernels

import (
	"embed"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/fxnlabs/gpu-examples/internal/compute"
)

// Kernel names as declared in the sources.
const (
	MatrixMult        = "matrixmult"
	MatrixMultPrivate = "matrixmult_private"
	VectorAdd         = "vector_add"
	Histogram         = "histogram"
	SingleTask        = "single_task"
)

// Embedded source files.
const (
	FileMatrixSimple  = "matrix_simple.cl"
	FileMatrixLocal   = "matrix_localmem.cl"
	FileMatrixPrivate = "matrix_private.cl"
	FileVectorAdd     = "vector_add.cl"
	FileHistogram     = "hist_atomic.cl"
	FileSingleTask    = "single_task.cl"
)

// Build-time constants the host injects.
const (
	DefineTile = "TILE"
	DefineBins = "BINS"
)

//go:embed cl/*.cl
var sources embed.FS

// Variant selects the matrix multiplication kernel.
type Variant string

const (
	VariantSimple  Variant = "simple"
	VariantTiled   Variant = "tiled"
	VariantPrivate Variant = "private"
)

// ParseVariant converts a flag or configuration value into a Variant.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(s)); v {
	case VariantSimple, VariantTiled, VariantPrivate:
		return v, nil
	default:
		return "", fmt.Errorf("unknown matmul variant %q (want simple, tiled or private)", s)
	}
}

// File returns the embedded source of the variant.
func (v Variant) File() string {
	switch v {
	case VariantSimple:
		return FileMatrixSimple
	case VariantPrivate:
		return FileMatrixPrivate
	default:
		return FileMatrixLocal
	}
}

// Kernel returns the kernel name the variant's source declares.
func (v Variant) Kernel() string {
	if v == VariantPrivate {
		return MatrixMultPrivate
	}
	return MatrixMult
}

// Embedded returns one of the sources compiled into the binary.
func Embedded(name string) (compute.Source, error) {
	text, err := sources.ReadFile(path.Join("cl", name))
	if err != nil {
		return compute.Source{}, fmt.Errorf("no embedded kernel source %q: %w", name, err)
	}
	return compute.NewSource(name, string(text)), nil
}

// EmbeddedFiles lists the embedded source file names.
func EmbeddedFiles() []string {
	entries, err := sources.ReadDir("cl")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// LoadSource reads kernel source from file. An empty file selects the embedded
// source named fallback.
func LoadSource(file, fallback string) (compute.Source, error) {
	if file == "" {
		return Embedded(fallback)
	}
	text, err := os.ReadFile(file)
	if err != nil {
		return compute.Source{}, fmt.Errorf("failed to open kernel file %s: %w", file, err)
	}
	return compute.NewSource(file, string(text)), nil
}

// Registry returns the device implementations of every kernel in this package.
func Registry() *compute.Registry {
	return compute.NewRegistry().MustRegister(
		matrixMultSimple(),
		matrixMultTiled(),
		matrixMultPrivate(),
		vectorAdd(),
		histogram(),
		singleTask(),
	)
}
