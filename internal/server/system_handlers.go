package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/atelier/internal/database"
	"github.com/aristath/atelier/internal/di"
	"github.com/aristath/atelier/internal/scheduler"
)

// SystemHandlers serves process and host status and manual job triggers
type SystemHandlers struct {
	log       zerolog.Logger
	dataDir   string
	databases []*database.DB
	scheduler *scheduler.Scheduler
	jobs      map[string]scheduler.Job
	startedAt time.Time
	hostStats func() (float64, float64)
}

// NewSystemHandlers creates system handlers. sched and jobs may be nil.
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	databases []*database.DB,
	sched *scheduler.Scheduler,
	jobs *di.JobInstances,
) *SystemHandlers {
	h := &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		dataDir:   dataDir,
		scheduler: sched,
		jobs:      make(map[string]scheduler.Job),
		startedAt: time.Now(),
	}
	for _, db := range databases {
		if db != nil {
			h.databases = append(h.databases, db)
		}
	}
	if jobs != nil {
		for _, job := range []scheduler.Job{jobs.RatesSync, jobs.ClientDataCleanup} {
			if job != nil {
				h.jobs[job.Name()] = job
			}
		}
	}
	h.hostStats = h.getSystemStats
	return h
}

// DatabaseStatus is the health of one database
type DatabaseStatus struct {
	Name    string  `json:"name"`
	Profile string  `json:"profile"`
	Healthy bool    `json:"healthy"`
	Error   string  `json:"error,omitempty"`
	SizeMB  float64 `json:"size_mb"`
}

// JobStatus is the next activation of one scheduled job
type JobStatus struct {
	Name    string     `json:"name"`
	NextRun *time.Time `json:"next_run,omitempty"`
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status        string           `json:"status"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	CPUPercent    float64          `json:"cpu_percent"`
	MemoryPercent float64          `json:"memory_percent"`
	Goroutines    int              `json:"goroutines"`
	DataDirMB     float64          `json:"data_dir_mb"`
	Databases     []DatabaseStatus `json:"databases"`
	Jobs          []JobStatus      `json:"jobs"`
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	cpuPercent, memPercent := h.hostStats()
	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
		Databases:     make([]DatabaseStatus, 0, len(h.databases)),
		Jobs:          make([]JobStatus, 0, len(h.jobs)),
	}
	if h.dataDir != "" {
		response.DataDirMB = h.getDirSize(h.dataDir)
	}

	for _, db := range h.databases {
		status := DatabaseStatus{Name: db.Name(), Profile: string(db.Profile()), Healthy: true}
		if err := db.QuickCheck(ctx); err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Database check failed")
			status.Healthy = false
			status.Error = err.Error()
			response.Status = "degraded"
		}
		if usage, err := db.Usage(ctx); err == nil {
			status.SizeMB = usage.TotalMB()
		}
		response.Databases = append(response.Databases, status)
	}

	for _, name := range []string{"rates_sync", "client_data_cleanup"} {
		if _, ok := h.jobs[name]; !ok {
			continue
		}
		status := JobStatus{Name: name}
		if h.scheduler != nil {
			if next, ok := h.scheduler.NextRun(name); ok && !next.IsZero() {
				status.NextRun = &next
			}
		}
		response.Jobs = append(response.Jobs, status)
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleTriggerJob runs a registered job immediately
// POST /api/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"detail": "unknown job " + name})
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job run triggered")

	var err error
	if h.scheduler != nil {
		err = h.scheduler.RunNow(job)
	} else {
		err = job.Run()
	}
	if err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
		h.writeJSON(w, http.StatusBadGateway, map[string]string{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": name + " completed",
	})
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats returns CPU and RAM usage percentages. CPU is sampled over
// 100ms so the endpoint stays fast.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
