package metric

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessSnapshot is the basic process metrics payload served at
// /api/v1/metrics.
type ProcessSnapshot struct {
	Alloc      uint64  `json:"alloc"`
	TotalAlloc uint64  `json:"total_alloc"`
	Sys        uint64  `json:"sys"`
	Goroutines int     `json:"goroutines"`
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

// Snapshot collects the current process metrics. CPU and RSS come from
// the OS where available; failures there degrade to zero values rather
// than erroring, since the runtime numbers are always usable.
func Snapshot() ProcessSnapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	snap := ProcessSnapshot{
		Alloc:      ms.Alloc,
		TotalAlloc: ms.TotalAlloc,
		Sys:        ms.Sys,
		Goroutines: runtime.NumGoroutine(),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			snap.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			snap.RSSBytes = mem.RSS
		}
	}
	return snap
}
