package main

import (
	"encoding/json"
	"net/http"

	"pongarena/engine/internal/logging"
)

// BrokerStats summarises the live session counters exposed on /api/stats.
type BrokerStats struct {
	Clients   int     `json:"clients"`
	Queued    int     `json:"queued"`
	Matches   int     `json:"matches"`
	AvgTickMs float64 `json:"avg_tick_ms"`
}

type statsProvider interface {
	Stats() BrokerStats
}

// statsHandler serves the broker counters as JSON for dashboards and health checks.
func statsHandler(provider statsProvider) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		stats := provider.Stats()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			logging.L().Warn("stats encoding failed", logging.Error(err))
		}
	})
}
