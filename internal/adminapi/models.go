package adminapi

import "time"

// StatusResponse is the /api/v1/health payload.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned for any 4xx/5xx response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CPUStats mirrors a single gopsutil sample.
type CPUStats struct {
	NumCPU      int     `json:"num_cpu"`
	UsedPercent float64 `json:"used_percent"`
}

// MemoryStats mirrors a single gopsutil sample.
type MemoryStats struct {
	TotalMB     float64 `json:"total_mb"`
	UsedMB      float64 `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// StatsResponse is the /api/v1/stats payload.
type StatsResponse struct {
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     time.Time   `json:"start_time"`
	PendingCount  int         `json:"pending_count"`
	QueryCount    int64       `json:"query_count"`
	HitCount      int64       `json:"hit_count"`
	CPU           CPUStats    `json:"cpu"`
	Memory        MemoryStats `json:"memory"`
}

// ZoneRecordRequest is the body for POST /api/v1/zone.
type ZoneRecordRequest struct {
	Name       string `json:"name"       binding:"required"`
	Type       string `json:"type"       binding:"required,oneof=A AAAA CNAME"`
	Value      string `json:"value"      binding:"required"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// UpstreamRequest is one entry of the PUT /api/v1/upstreams body.
type UpstreamRequest struct {
	Address     string `json:"address" binding:"required"`
	Port        int    `json:"port"`
	DisplayName string `json:"display_name"`
}
