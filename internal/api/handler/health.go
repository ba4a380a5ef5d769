package handler

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	tempPath  string
	startTime time.Time
}

// NewHealthHandler creates a new health handler. tempPath is the scratch
// directory reported by Stats.
func NewHealthHandler(tempPath string) *HealthHandler {
	return &HealthHandler{
		tempPath:  tempPath,
		startTime: time.Now(),
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status string `json:"status"`
}

// Live handles GET /health. It does not call the downloader.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// DiskStats describes the filesystem holding the scratch directory.
type DiskStats struct {
	Path       string  `json:"path"`
	TotalBytes int64   `json:"total_bytes"`
	FreeBytes  int64   `json:"free_bytes"`
	UsedBytes  int64   `json:"used_bytes"`
	UsedPct    float64 `json:"used_pct"`
	FreeHuman  string  `json:"free_human,omitempty"`
}

func newDiskStats(path string, total, free int64) DiskStats {
	d := DiskStats{
		Path:       path,
		TotalBytes: total,
		FreeBytes:  free,
		UsedBytes:  total - free,
		FreeHuman:  humanize.Bytes(uint64(free)),
	}
	if total > 0 {
		d.UsedPct = float64(d.UsedBytes) / float64(total) * 100
	}
	return d
}

// SystemStats contains process and scratch disk statistics.
type SystemStats struct {
	Uptime        int64     `json:"uptime_seconds"`
	UptimeHuman   string    `json:"uptime_human"`
	MemAllocMB    int64     `json:"mem_alloc_mb"`
	MemSysMB      int64     `json:"mem_sys_mb"`
	NumGoroutines int       `json:"num_goroutines"`
	NumCPU        int       `json:"num_cpu"`
	Disk          DiskStats `json:"disk"`
}

// Stats handles GET /stats.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(h.startTime)
	writeJSON(w, http.StatusOK, SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		Disk:          diskUsage(h.tempPath),
	})
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
