package main

import (
	"fmt"
	"runtime"
)

// memUsage reports the current heap allocation, the closest Go analogue
// to the original tool's RSS-based memory report.
func memUsage() string {
	var m runtime.MemStats

	runtime.ReadMemStats(&m)

	return fmt.Sprintf("%d KiB", m.Alloc/1024)
}
