package pools

import (
	"runtime"
	"runtime/debug"
	"time"
)

// GCConfig holds GC tuning parameters
type GCConfig struct {
	// GCPercent sets the garbage collection target percentage.
	// 0 leaves the runtime default, -1 disables the collector.
	GCPercent int

	// MemoryLimit sets the soft memory limit in bytes. 0 = no limit.
	MemoryLimit int64
}

// ApplyGCConfig applies cfg and returns the settings it replaced, so tests
// and callers can restore them.
func ApplyGCConfig(cfg GCConfig) GCConfig {
	var prev GCConfig
	if cfg.GCPercent != 0 {
		prev.GCPercent = debug.SetGCPercent(cfg.GCPercent)
	}
	if cfg.MemoryLimit > 0 {
		prev.MemoryLimit = debug.SetMemoryLimit(cfg.MemoryLimit)
	}
	return prev
}

// GCStats holds garbage collection statistics
type GCStats struct {
	NumGC        uint32
	PauseTotal   time.Duration
	LastPause    time.Duration
	AvgPause     time.Duration
	AllocBytes   uint64
	TotalAlloc   uint64
	Sys          uint64
	NumGoroutine int
}

// GetGCStats returns current GC statistics
func GetGCStats() GCStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stats := GCStats{
		NumGC:        ms.NumGC,
		PauseTotal:   time.Duration(ms.PauseTotalNs),
		AllocBytes:   ms.Alloc,
		TotalAlloc:   ms.TotalAlloc,
		Sys:          ms.Sys,
		NumGoroutine: runtime.NumGoroutine(),
	}

	if ms.NumGC > 0 {
		stats.LastPause = time.Duration(ms.PauseNs[(ms.NumGC+255)%256])

		// PauseNs is a ring of the last 256 pauses.
		n := ms.NumGC
		if n > 256 {
			n = 256
		}
		var recent uint64
		for i := uint32(0); i < n; i++ {
			recent += ms.PauseNs[i]
		}
		stats.AvgPause = time.Duration(recent / uint64(n))
	}

	return stats
}
