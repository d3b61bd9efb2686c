package health

import (
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aviroy619/critical-css-service/pkg/pool"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ComponentHealth represents the health status of a single component
type ComponentHealth struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Description string    `json:"description,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// SystemStats is a host-level resource snapshot
type SystemStats struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemPercent  float64 `json:"mem_percent"`
	DiskPercent float64 `json:"disk_percent"`
}

// ServiceHealth represents overall service health
type ServiceHealth struct {
	Status     Status            `json:"status"`
	Uptime     int64             `json:"uptime_seconds"`
	Timestamp  time.Time         `json:"timestamp"`
	Goroutines int               `json:"goroutines"`
	HeapMB     uint64            `json:"heap_mb"`
	System     SystemStats       `json:"system"`
	Pool       pool.Stats        `json:"pool"`
	Components []ComponentHealth `json:"components"`
}

// Monitor tracks component health
type Monitor struct {
	startTime  time.Time
	mu         sync.RWMutex
	components map[string]*ComponentHealth
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		startTime:  time.Now(),
		components: make(map[string]*ComponentHealth),
	}
}

// SetComponentStatus updates the status of a component
func (m *Monitor) SetComponentStatus(name string, status Status, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = &ComponentHealth{
		Name:        name,
		Status:      status,
		Description: description,
		LastChecked: time.Now(),
	}
}

// GetHealth returns the current service health including a pool snapshot
func (m *Monitor) GetHealth(poolStats pool.Stats) *ServiceHealth {
	m.mu.RLock()
	components := make([]ComponentHealth, 0, len(m.components))
	overallStatus := StatusHealthy
	for _, comp := range m.components {
		components = append(components, *comp)
		if comp.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
		} else if comp.Status == StatusDegraded && overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}
	m.mu.RUnlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &ServiceHealth{
		Status:     overallStatus,
		Uptime:     int64(time.Since(m.startTime).Seconds()),
		Timestamp:  time.Now(),
		Goroutines: runtime.NumGoroutine(),
		HeapMB:     memStats.Alloc / 1024 / 1024,
		System:     readSystemStats(),
		Pool:       poolStats,
		Components: components,
	}
}

// readSystemStats collects best-effort host metrics; failures leave zeros
func readSystemStats() SystemStats {
	var stats SystemStats

	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		stats.CPUPercent = cpuPercent[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		stats.MemPercent = vm.UsedPercent
	}
	if du, err := disk.Usage("/"); err == nil && du != nil {
		stats.DiskPercent = du.UsedPercent
	}

	return stats
}
