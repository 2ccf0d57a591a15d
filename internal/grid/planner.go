// Package grid sizes execution grids for tiled data-parallel kernels.
package grid

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSize is returned for a problem size below one.
	ErrInvalidSize = errors.New("problem size must be positive")
	// ErrInvalidTile is returned for a tile (work-group) size below one.
	ErrInvalidTile = errors.New("tile size must be positive")
	// ErrIndivisible is returned by ModeDivisible when the tile does not divide N.
	ErrIndivisible = errors.New("problem size must be divisible by the tile size")
)

// Mode selects how the global extent relates to the problem size.
type Mode int

const (
	// ModeBoundary rounds the global extent up to a multiple of the tile. The
	// kernel must guard every access with bounds checks.
	ModeBoundary Mode = iota
	// ModeExact dispatches exactly N units per axis. The device rejects the
	// dispatch when N is not a multiple of the local extent.
	ModeExact
	// ModeDivisible dispatches N/T whole tiles per axis and refuses a ragged N.
	// The kernel reads its tiles without bounds checks.
	ModeDivisible
)

func (m Mode) String() string {
	switch m {
	case ModeBoundary:
		return "boundary"
	case ModeExact:
		return "exact"
	case ModeDivisible:
		return "divisible"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Plan is the dispatch shape computed for one problem. Dims is 1 or 2; unused
// trailing axes of Global and Local hold 1.
type Plan struct {
	Dims      int
	N         int
	Tile      int
	TileCount int
	Global    [2]int
	Local     [2]int
	Mode      Mode
}

// TileCount returns ceil(n / tile).
func TileCount(n, tile int) int {
	return (n + tile - 1) / tile
}

// Plan2D plans a square N×N dispatch grouped into T×T tiles.
//
// The planner does not consult device limits: a tile larger than the device's
// work-group limit is accepted here and rejected at submission.
func Plan2D(n, tile int, mode Mode) (Plan, error) {
	tiles, extent, err := plan(n, tile, mode)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Dims:      2,
		N:         n,
		Tile:      tile,
		TileCount: tiles,
		Global:    [2]int{extent, extent},
		Local:     [2]int{tile, tile},
		Mode:      mode,
	}, nil
}

// Plan1D plans a dispatch of n units grouped by local.
func Plan1D(n, local int, mode Mode) (Plan, error) {
	tiles, extent, err := plan(n, local, mode)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Dims:      1,
		N:         n,
		Tile:      local,
		TileCount: tiles,
		Global:    [2]int{extent, 1},
		Local:     [2]int{local, 1},
		Mode:      mode,
	}, nil
}

func plan(n, tile int, mode Mode) (tiles, extent int, err error) {
	if n <= 0 {
		return 0, 0, fmt.Errorf("%w: got %d", ErrInvalidSize, n)
	}
	if tile <= 0 {
		return 0, 0, fmt.Errorf("%w: got %d", ErrInvalidTile, tile)
	}
	tiles = TileCount(n, tile)
	switch mode {
	case ModeBoundary:
		extent = tiles * tile
	case ModeExact:
		extent = n
	case ModeDivisible:
		if n%tile != 0 {
			return 0, 0, fmt.Errorf("%w: N=%d, tile=%d", ErrIndivisible, n, tile)
		}
		extent = n
	default:
		return 0, 0, fmt.Errorf("unknown grid mode %v", mode)
	}
	return tiles, extent, nil
}

// Ragged reports whether the last tile along each axis extends past N.
func (p Plan) Ragged() bool {
	return p.N%p.Tile != 0
}

// Groups returns the number of work-groups per axis.
func (p Plan) Groups() [2]int {
	return [2]int{ceilDiv(p.Global[0], p.Local[0]), ceilDiv(p.Global[1], p.Local[1])}
}

// Items returns the total number of execution units dispatched.
func (p Plan) Items() int {
	return p.Global[0] * p.Global[1]
}

func (p Plan) String() string {
	if p.Dims == 1 {
		return fmt.Sprintf("global=%d local=%d tiles=%d (%s)", p.Global[0], p.Local[0], p.TileCount, p.Mode)
	}
	return fmt.Sprintf("global=%dx%d local=%dx%d tiles=%d (%s)",
		p.Global[0], p.Global[1], p.Local[0], p.Local[1], p.TileCount, p.Mode)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
