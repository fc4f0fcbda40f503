// Package dashboard implements the web-based monitoring interface for solver health and solve history.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/solvegate/solvegate/internal/archive"
	"github.com/solvegate/solvegate/internal/engine"
	"github.com/solvegate/solvegate/internal/httputil"
)

// History is the slice of the archive the dashboard reads.
type History interface {
	GetSolveStats(ctx context.Context, hours int) ([]archive.SolveStats, error)
	GetRecentSolves(ctx context.Context, limit int) ([]archive.RecentSolve, error)
}

type Dashboard struct {
	engine  *engine.Engine
	history History
}

type Stats struct {
	Health      engine.HealthSnapshot `json:"health"`
	SolveStats  []archive.SolveStats  `json:"solve_stats"`
	WindowHours int                   `json:"window_hours"`
	LastUpdated time.Time             `json:"last_updated"`
}

// New builds a Dashboard. history may be nil when no archive is
// configured; stats then carry only the live health snapshot.
func New(e *engine.Engine, history History) *Dashboard {
	return &Dashboard{engine: e, history: history}
}

func (d *Dashboard) GetStats(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httputil.WriteJSONError(w, "Invalid hours parameter", http.StatusBadRequest)
			return
		}
		hours = parsed
	}

	stats := Stats{
		Health:      d.engine.Health(),
		SolveStats:  []archive.SolveStats{},
		WindowHours: hours,
		LastUpdated: time.Now(),
	}

	if d.history != nil {
		solveStats, err := d.history.GetSolveStats(r.Context(), hours)
		if err != nil {
			httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if solveStats != nil {
			stats.SolveStats = solveStats
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		httputil.WriteJSONError(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

func (d *Dashboard) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httputil.WriteJSONError(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	solves := []archive.RecentSolve{}
	if d.history != nil {
		recent, err := d.history.GetRecentSolves(r.Context(), limit)
		if err != nil {
			httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if recent != nil {
			solves = recent
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(solves); err != nil {
		httputil.WriteJSONError(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}
