package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/deepgram/parley/internal/services/history"
	"github.com/deepgram/parley/pkg/httpext"
)

type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

type RuntimeStats struct {
	GoVersion    string      `json:"go_version"`
	NumCPU       int         `json:"num_cpu"`
	NumGoroutine int         `json:"num_goroutine"`
	Memory       MemoryStats `json:"memory_stats"`
}

type SessionStats struct {
	history.Stats
	CleanupIn int `json:"cleanup_in_seconds"`
}

type HealthResponse struct {
	Status      string       `json:"status"`
	Version     string       `json:"version"`
	Timestamp   time.Time    `json:"timestamp"`
	Uptime      int          `json:"uptime_seconds"`
	Connections int          `json:"connections"`
	Runtime     RuntimeStats `json:"runtime"`
	Sessions    SessionStats `json:"sessions"`
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	now := time.Now()
	httpext.JsonResponse(w, http.StatusOK, HealthResponse{
		Status:      "healthy",
		Version:     h.version,
		Timestamp:   now.UTC(),
		Uptime:      int(now.Sub(h.started).Seconds()),
		Connections: h.connections.Count(),
		Runtime: RuntimeStats{
			GoVersion:    runtime.Version(),
			NumCPU:       runtime.NumCPU(),
			NumGoroutine: runtime.NumGoroutine(),
			Memory: MemoryStats{
				Alloc:      mem.Alloc,
				TotalAlloc: mem.TotalAlloc,
				Sys:        mem.Sys,
				NumGC:      mem.NumGC,
			},
		},
		Sessions: SessionStats{
			Stats:     h.history.Stats(),
			CleanupIn: int(h.cleanupInterval.Seconds()),
		},
	})
}
