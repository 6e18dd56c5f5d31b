package monitor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"uniquify-worker/pkg/models"
)

// HostInfo is hardware that does not change while the worker runs.
type HostInfo struct {
	CPUModel      string `json:"cpu_model"`
	PhysicalCores int    `json:"physical_cores"`
	LogicalCores  int    `json:"logical_cores"`
	TotalRAM      uint64 `json:"total_ram"`
}

// SystemMonitor reports host load. Static info is gathered once.
type SystemMonitor struct {
	cpuBusy, ramBusy float64
	sample           time.Duration

	once    sync.Once
	info    HostInfo
	infoErr error
}

func NewSystemMonitor() *SystemMonitor {
	return &SystemMonitor{cpuBusy: 80, ramBusy: 90, sample: 500 * time.Millisecond}
}

// Info returns cached static host information.
func (m *SystemMonitor) Info(ctx context.Context) (HostInfo, error) {
	m.once.Do(func() {
		m.info, m.infoErr = detectHost(ctx)
	})
	return m.info, m.infoErr
}

// Stats samples CPU and RAM usage. The host is busy above 80 % CPU or
// 90 % RAM.
func (m *SystemMonitor) Stats(ctx context.Context) (models.HostStats, error) {
	stats := models.HostStats{}

	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to get mem stats: %w", err)
	}
	stats.RAMPercent = v.UsedPercent

	cpuPct, err := cpu.PercentWithContext(ctx, m.sample, false)
	if err != nil {
		return stats, fmt.Errorf("failed to get cpu stats: %w", err)
	}
	if len(cpuPct) > 0 {
		stats.CPUPercent = cpuPct[0]
	}

	stats.IsBusy = stats.CPUPercent > m.cpuBusy || stats.RAMPercent > m.ramBusy
	return stats, nil
}

func detectHost(ctx context.Context) (HostInfo, error) {
	info := HostInfo{CPUModel: "unknown", LogicalCores: runtime.NumCPU()}
	if ci, err := cpu.InfoWithContext(ctx); err == nil && len(ci) > 0 {
		info.CPUModel = ci[0].ModelName
	}
	if n, err := cpu.CountsWithContext(ctx, false); err == nil && n > 0 {
		info.PhysicalCores = n
	} else {
		info.PhysicalCores = info.LogicalCores
	}
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return info, fmt.Errorf("failed to get mem stats: %w", err)
	}
	info.TotalRAM = v.Total
	return info, nil
}

// DefaultConcurrency is half the physical cores, at least one. Each
// ffmpeg process already uses several threads.
func DefaultConcurrency() int {
	n, err := cpu.Counts(false)
	if err != nil || n <= 0 {
		n = runtime.NumCPU()
	}
	return max(1, n/2)
}

// Concurrency resolves a configured pool size: 0 picks the default and
// anything above the logical core count is capped.
func Concurrency(configured int) int {
	if configured <= 0 {
		return DefaultConcurrency()
	}
	return min(configured, runtime.NumCPU())
}
