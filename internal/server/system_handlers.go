package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/quanport/internal/di"
	"github.com/aristath/quanport/internal/scheduler"
	"github.com/aristath/quanport/internal/utils"
)

// SystemHandlers serves operational endpoints
type SystemHandlers struct {
	log       zerolog.Logger
	dataDir   string
	container *di.Container
	jobs      map[string]scheduler.Job
	startedAt time.Time
}

// SystemStatusResponse represents system status
type SystemStatusResponse struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	SecurityCount   int     `json:"securityCount"`
	CachedSets      int     `json:"cachedSets"`
	StatisticsBuilt int64   `json:"statisticsBuilt"`
	Workers         int     `json:"workers"`
	Goroutines      int     `json:"goroutines"`
	ImportEnabled   bool    `json:"importEnabled"`
	CPUPercent      float64 `json:"cpuPercent"`
	MemoryPercent   float64 `json:"memoryPercent"`
}

// DatabaseStatsResponse represents history store statistics
type DatabaseStatsResponse struct {
	Path        string  `json:"path"`
	SizeMB      float64 `json:"sizeMb"`
	WalSizeMB   float64 `json:"walSizeMb"`
	Securities  int     `json:"securities"`
	PriceRows   int     `json:"priceRows"`
	Imports     int     `json:"imports"`
	LastChecked string  `json:"lastChecked"`
}

// NewSystemHandlers creates system handlers. jobs may be nil.
func NewSystemHandlers(log zerolog.Logger, dataDir string, container *di.Container, jobs *di.JobInstances) *SystemHandlers {
	h := &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		dataDir:   dataDir,
		container: container,
		jobs:      make(map[string]scheduler.Job),
		startedAt: time.Now(),
	}
	if jobs != nil {
		for _, job := range []scheduler.Job{jobs.CachePurge, jobs.PriceImport, jobs.CheckDatabase, jobs.CheckWAL} {
			if job != nil {
				h.jobs[job.Name()] = job
			}
		}
	}
	return h
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	response := SystemStatusResponse{
		Status:        "healthy",
		Uptime:        time.Since(h.startedAt).Round(time.Second).String(),
		Workers:       h.container.Workers,
		Goroutines:    runtime.NumGoroutine(),
		ImportEnabled: h.container.Importer != nil,
	}

	if h.container.StatsCache != nil {
		response.CachedSets = h.container.StatsCache.Len()
		response.StatisticsBuilt = h.container.StatsCache.Builds()
	}

	if h.container.MarketDataRepo != nil {
		securities, err := h.container.MarketDataRepo.ListSecurities(r.Context())
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to count securities")
			response.Status = "degraded"
		}
		response.SecurityCount = len(securities)
	}

	response.CPUPercent, response.MemoryPercent = h.getSystemStats()

	utils.WriteResponse(w, r, http.StatusOK, response, h.log)
}

// HandleDatabaseStats handles GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(h.dataDir, "history.db")
	if h.container.HistoryDB != nil {
		path = h.container.HistoryDB.Path()
	}

	response := DatabaseStatsResponse{
		Path:        path,
		SizeMB:      fileSizeMB(path),
		WalSizeMB:   fileSizeMB(path + "-wal"),
		LastChecked: time.Now().Format(time.RFC3339),
	}

	if h.container.HistoryDB != nil {
		conn := h.container.HistoryDB.Conn()
		counts := []struct {
			query string
			dest  *int
		}{
			{"SELECT COUNT(*) FROM securities", &response.Securities},
			{"SELECT COUNT(*) FROM daily_prices", &response.PriceRows},
			{"SELECT COUNT(*) FROM imports", &response.Imports},
		}
		for _, c := range counts {
			if err := conn.QueryRowContext(r.Context(), c.query).Scan(c.dest); err != nil {
				h.log.Error().Err(err).Str("query", c.query).Msg("Failed to read database stats")
				utils.WriteError(w, r, http.StatusInternalServerError, "Failed to read database stats", h.log)
				return
			}
		}
	}

	utils.WriteResponse(w, r, http.StatusOK, response, h.log)
}

// HandleTriggerJob handles POST /api/system/jobs/{job}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "job")
	job, ok := h.jobs[name]
	if !ok {
		utils.WriteError(w, r, http.StatusNotFound, "Unknown job: "+name, h.log)
		return
	}

	start := time.Now()
	if err := h.runJob(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
		utils.WriteError(w, r, http.StatusInternalServerError, err.Error(), h.log)
		return
	}

	utils.WriteResponse(w, r, http.StatusOK, map[string]interface{}{
		"job":        name,
		"status":     "completed",
		"durationMs": utils.Milliseconds(time.Since(start)),
	}, h.log)
}

// runJob runs job through the scheduler (panics become errors) unless ctx ends first
func (h *SystemHandlers) runJob(ctx context.Context, job scheduler.Job) error {
	runner := h.container.Scheduler
	if runner == nil {
		runner = scheduler.New(h.log)
	}
	done := make(chan error, 1)
	go func() {
		done <- runner.RunNow(job)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// getSystemStats calculates CPU and RAM usage percentages.
// Uses a 100ms CPU sample to keep the endpoint responsive.
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

func fileSizeMB(path string) float64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return float64(info.Size()) / 1024 / 1024
}
