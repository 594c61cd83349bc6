// Package adminapi implements the admin HTTP API: health/stats reporting
// and curated-zone/upstream-pool management, exercised through the
// persistent store in internal/database.
//
// Grounded on the teacher's internal/api/handlers package (Handler
// struct shape, Health/Stats handlers, swaggo doc-comment annotations),
// trimmed to the endpoints this resolver actually exposes.
package adminapi

import (
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/jroosing/dnsfwd/internal/database"
	"github.com/jroosing/dnsfwd/internal/dnscache"
	"github.com/jroosing/dnsfwd/internal/localzone"
	"github.com/jroosing/dnsfwd/internal/requesttable"
)

// Handler holds the dependencies every admin endpoint needs.
type Handler struct {
	DB    *database.DB
	Table *requesttable.Table
	Cache *dnscache.Client
	// Zone is the live, in-memory zone the server loop consults. Reload
	// swaps its contents after a write to the persistent store.
	Zone *localzone.Zone

	startTime time.Time
	mu        sync.Mutex
}

// New returns a Handler ready to be wired into a gin engine.
func New(db *database.DB, table *requesttable.Table, cache *dnscache.Client, zone *localzone.Zone) *Handler {
	return &Handler{DB: db, Table: table, Cache: cache, Zone: zone, startTime: time.Now()}
}

// Health godoc
// @Summary Health check
// @Description Reports that the process is accepting requests
// @Tags system
// @Produce json
// @Success 200 {object} StatusResponse
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// Stats godoc
// @Summary Server statistics
// @Description Process uptime, cache counters, pending request count, and host CPU/memory
// @Tags system
// @Produce json
// @Success 200 {object} StatsResponse
// @Security ApiKeyAuth
// @Router /stats [get]
func (h *Handler) Stats(c *gin.Context) {
	uptime := time.Since(h.startTime)

	memStats := MemoryStats{}
	if vmStat, err := mem.VirtualMemory(); err == nil {
		memStats.TotalMB = float64(vmStat.Total) / 1024 / 1024
		memStats.UsedMB = float64(vmStat.Used) / 1024 / 1024
		memStats.UsedPercent = vmStat.UsedPercent
	}

	cpuStats := CPUStats{NumCPU: runtime.NumCPU()}
	if pct, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(pct) > 0 {
		cpuStats.UsedPercent = pct[0]
	}

	pending, _ := h.Table.Stats()

	var queries, hits int64
	if h.Cache != nil {
		queries, hits = h.Cache.Counts(c.Request.Context())
	}

	c.JSON(http.StatusOK, StatsResponse{
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     h.startTime,
		PendingCount:  pending,
		QueryCount:    queries,
		HitCount:      hits,
		CPU:           cpuStats,
		Memory:        memStats,
	})
}

// ListZone godoc
// @Summary List curated zone records
// @Tags zone
// @Produce json
// @Success 200 {array} database.ZoneRecord
// @Security ApiKeyAuth
// @Router /zone [get]
func (h *Handler) ListZone(c *gin.Context) {
	records, err := h.DB.ListZoneRecords(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

// AddZoneRecord godoc
// @Summary Add or update a curated zone record
// @Tags zone
// @Accept json
// @Produce json
// @Param record body ZoneRecordRequest true "record"
// @Success 204
// @Security ApiKeyAuth
// @Router /zone [post]
func (h *Handler) AddZoneRecord(c *gin.Context) {
	var req ZoneRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	err := h.DB.AddZoneRecord(c.Request.Context(), database.ZoneRecord{
		Name: req.Name, RType: req.Type, Value: req.Value, TTLSeconds: req.TTLSeconds,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteZoneRecord godoc
// @Summary Delete a curated zone record
// @Tags zone
// @Param id path int true "record id"
// @Success 204
// @Security ApiKeyAuth
// @Router /zone/{id} [delete]
func (h *Handler) DeleteZoneRecord(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.DB.DeleteZoneRecord(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// ReloadZone godoc
// @Summary Reload the live zone from the persistent store
// @Description Zone edits take effect immediately on the running resolver without a restart
// @Tags zone
// @Success 204
// @Security ApiKeyAuth
// @Router /zone/reload [post]
func (h *Handler) ReloadZone(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	records, err := h.DB.LoadLocalZone(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	h.Zone.Load(records)
	c.Status(http.StatusNoContent)
}

// ListUpstreams godoc
// @Summary List configured upstream resolvers
// @Tags upstreams
// @Produce json
// @Success 200 {array} database.UpstreamServer
// @Security ApiKeyAuth
// @Router /upstreams [get]
func (h *Handler) ListUpstreams(c *gin.Context) {
	servers, err := h.DB.ListUpstreams(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if len(servers) == 0 {
		servers = database.DefaultUpstreams()
	}
	c.JSON(http.StatusOK, servers)
}

// ReplaceUpstreams godoc
// @Summary Replace the configured upstream pool
// @Description Persists the new pool. The running resolver keeps using its
// @Description current pool until restarted; this does not hot-swap the
// @Description live fail-over state machine.
// @Tags upstreams
// @Accept json
// @Produce json
// @Param upstreams body []UpstreamRequest true "ordered upstream list"
// @Success 204
// @Security ApiKeyAuth
// @Router /upstreams [put]
func (h *Handler) ReplaceUpstreams(c *gin.Context) {
	var req []UpstreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	servers := make([]database.UpstreamServer, len(req))
	for i, u := range req {
		port := u.Port
		if port == 0 {
			port = 53
		}
		servers[i] = database.UpstreamServer{Address: u.Address, Port: port, DisplayName: u.DisplayName}
	}
	if err := h.DB.ReplaceUpstreams(c.Request.Context(), servers); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func parseIDParam(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}
