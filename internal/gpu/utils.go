package gpu

import "fmt"

var memoryUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatMemory renders a byte count with binary units: whole bytes below 1 KB,
// one decimal above.
func FormatMemory(bytes int64) string {
	size := float64(bytes)
	unit := 0
	for size >= 1024 && unit < len(memoryUnits)-1 {
		size /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%.0f %s", size, memoryUnits[unit])
	}
	return fmt.Sprintf("%.1f %s", size, memoryUnits[unit])
}
