package release

import (
	"os"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/teranos/slice/errors"
)

// memoryStats returns the resident set size of this process and the
// memory still available on the host, in bytes.
func memoryStats() (rss uint64, available uint64, err error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to inspect own process")
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get process memory")
	}
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return info.RSS, v.Available, nil
}

// logMemory records the footprint after a snapshot is held in memory.
// Failures only lose the log line.
func logMemory(log *zap.SugaredLogger, stage string, instances int) {
	rss, available, err := memoryStats()
	if err != nil {
		log.Debugw("Memory stats unavailable", "stage", stage, "error", err)
		return
	}
	log.Infow("Memory after "+stage,
		"instances", instances,
		"rss_mb", rss/(1<<20),
		"available_mb", available/(1<<20),
	)
}
