package compute

import "fmt"

// NDRange is a 1-, 2- or 3-dimensional extent. The zero value is the null
// range, which lets the runtime choose a local size.
type NDRange struct {
	dims int
	size [3]int
}

// NullRange asks the runtime to pick the local extent.
var NullRange NDRange

func Range1D(x int) NDRange    { return NDRange{dims: 1, size: [3]int{x, 1, 1}} }
func Range2D(x, y int) NDRange { return NDRange{dims: 2, size: [3]int{x, y, 1}} }
func Range3D(x, y, z int) NDRange {
	return NDRange{dims: 3, size: [3]int{x, y, z}}
}

func (r NDRange) IsNull() bool { return r.dims == 0 }
func (r NDRange) Dims() int    { return r.dims }

// Size returns the extent along dimension d, or 1 beyond the range's dimensions.
func (r NDRange) Size(d int) int {
	if d < 0 || d >= 3 || d >= r.dims {
		return 1
	}
	return r.size[d]
}

// Total returns the number of units in the range.
func (r NDRange) Total() int {
	if r.IsNull() {
		return 0
	}
	return r.size[0] * r.size[1] * r.size[2]
}

func (r NDRange) String() string {
	switch r.dims {
	case 0:
		return "null"
	case 1:
		return fmt.Sprintf("%d", r.size[0])
	case 2:
		return fmt.Sprintf("%dx%d", r.size[0], r.size[1])
	default:
		return fmt.Sprintf("%dx%dx%d", r.size[0], r.size[1], r.size[2])
	}
}
