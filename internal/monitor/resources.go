// Package monitor samples host resource usage for the health endpoint.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/leafnet-go/internal/logger"
)

// DefaultSampleInterval is the minimum time between two host reads.
const DefaultSampleInterval = 5 * time.Second

const bytesPerMB = 1024 * 1024

// Resources is one snapshot of host resource usage. A field that could not
// be read is left at zero.
type Resources struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
	DiskPath      string  `json:"-"`
	DiskPercent   float64 `json:"disk_percent"`
	SampledAt     string  `json:"sampled_at"`
}

// Sampler reads host resources with gopsutil and reuses the last snapshot
// for Interval, so frequent health probes do not hit /proc on every call.
// It is safe for concurrent use.
type Sampler struct {
	diskPath string
	interval time.Duration

	mu     sync.Mutex
	last   Resources
	lastAt time.Time

	now  func() time.Time
	read func(ctx context.Context, diskPath string) Resources
}

// NewSampler returns a sampler that also reports usage of the filesystem
// holding diskPath, typically the model directory. An empty diskPath skips
// the disk reading.
func NewSampler(diskPath string, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Sampler{
		diskPath: diskPath,
		interval: interval,
		now:      time.Now,
		read:     readResources,
	}
}

// Sample returns the current snapshot, reading the host when the cached one
// is older than the interval.
func (s *Sampler) Sample(ctx context.Context) Resources {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.lastAt.IsZero() && now.Sub(s.lastAt) < s.interval {
		return s.last
	}

	r := s.read(ctx, s.diskPath)
	r.SampledAt = now.UTC().Format(time.RFC3339)
	s.last, s.lastAt = r, now
	return r
}

func readResources(ctx context.Context, diskPath string) Resources {
	log := GetLogger()
	r := Resources{DiskPath: diskPath}

	// Zero interval compares against the previous call instead of blocking
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		log.Debug("failed to read CPU usage", logger.Error(err))
	} else if len(percents) > 0 {
		r.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		log.Debug("failed to read memory usage", logger.Error(err))
	} else {
		r.MemoryPercent = vm.UsedPercent
		r.MemoryUsedMB = vm.Used / bytesPerMB
	}

	if diskPath != "" {
		if usage, err := disk.UsageWithContext(ctx, diskPath); err != nil {
			log.Debug("failed to read disk usage", logger.String("path", diskPath), logger.Error(err))
		} else {
			r.DiskPercent = usage.UsedPercent
		}
	}

	return r
}
