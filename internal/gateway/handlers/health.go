package handlers

import (
	"net/http"
	"sync"
	"time"
)

var (
	startTime time.Time
	startOnce sync.Once
)

// InitStartTime initializes the server start time.
// Should be called when the server starts.
func InitStartTime() {
	startOnce.Do(func() {
		startTime = time.Now()
	})
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  int64  `json:"uptime"`
	Clients int    `json:"clients"`
	Agent   string `json:"agent,omitempty"`
	Running bool   `json:"running"`
}

// HealthProbe reports live gateway state for the health check.
type HealthProbe func() (clients int, agent string, running bool)

// HealthHandler returns a health check handler. probe may be nil.
func HealthHandler(version string, probe HealthProbe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(0)
		if !startTime.IsZero() {
			uptime = int64(time.Since(startTime).Seconds())
		}

		resp := HealthResponse{
			Status:  "ok",
			Version: version,
			Uptime:  uptime,
		}
		if probe != nil {
			resp.Clients, resp.Agent, resp.Running = probe()
		}
		SendJSON(w, http.StatusOK, resp)
	}
}
