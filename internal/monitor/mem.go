package monitor

import (
	"fmt"
	"runtime"
	"time"

	"github.com/elastic-io/ferry/internal/log"
	"github.com/elastic-io/ferry/internal/types"
)

func MemoryUsage() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		log.Logger.Info(fmt.Sprintf("Memory usage: Alloc=%v MiB, TotalAlloc=%v MiB, Sys=%v MiB, NumGC=%v",
			m.Alloc/types.MB,
			m.TotalAlloc/types.MB,
			m.Sys/types.MB,
			m.NumGC))

		if m.Alloc > 2*types.GB {
			log.Logger.Warn("High memory usage detected, triggering GC")
			runtime.GC()
		}
	}
}
