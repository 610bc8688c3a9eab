package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"Friday_1.0/internal/cache"
	"Friday_1.0/internal/config"
	"Friday_1.0/internal/coordinator"
	"Friday_1.0/internal/security"
	"Friday_1.0/pkg/logger"
)

// defaultHistoryLimit bounds list responses when no limit query is given.
const defaultHistoryLimit = 20

// API provides the read-only operator handlers over the coordinator state.
type API struct {
	app     config.AppInfo
	coord   *coordinator.Coordinator
	store   *cache.Cache
	history *cache.History
	gate    *security.Gate
	logger  *logger.Logger
}

// NewAPI creates a new API handler set.
func NewAPI(app config.AppInfo, coord *coordinator.Coordinator, store *cache.Cache, history *cache.History, gate *security.Gate) *API {
	return &API{
		app:     app,
		coord:   coord,
		store:   store,
		history: history,
		gate:    gate,
		logger:  logger.New("API", ""),
	}
}

// HealthHandler reports liveness and basic build identity.
func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !a.requireGet(w, r) {
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"app":         a.app.Name,
		"version":     a.app.Version,
		"environment": a.app.Environment,
		"runtime":     a.coord.RuntimeName(),
	})
}

// MetricsHandler returns the cumulative execution counters.
func (a *API) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	if !a.requireGet(w, r) {
		return
	}
	a.writeJSON(w, http.StatusOK, a.coord.Metrics().Snapshot())
}

// HistoryHandler lists the most recent execution results, newest first.
func (a *API) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	if !a.requireGet(w, r) {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	results := a.history.Recent(limit)
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(results),
		"results": results,
	})
}

// HistoryEntryHandler returns a single execution result by its ID.
func (a *API) HistoryEntryHandler(w http.ResponseWriter, r *http.Request) {
	if !a.requireGet(w, r) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/history/")
	if id == "" {
		a.writeError(w, http.StatusBadRequest, "Missing execution ID")
		return
	}
	res, ok := a.history.Get(id)
	if !ok {
		a.writeError(w, http.StatusNotFound, "Execution not found")
		return
	}
	a.writeJSON(w, http.StatusOK, res)
}

// AgentsHandler returns per-agent statistics over the retained history.
func (a *API) AgentsHandler(w http.ResponseWriter, r *http.Request) {
	if !a.requireGet(w, r) {
		return
	}
	a.writeJSON(w, http.StatusOK, a.history.PerAgent())
}

// CacheStatsHandler returns context cache and history occupancy counters.
func (a *API) CacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !a.requireGet(w, r) {
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"cache": a.store.Stats(r.Context()),
		"history": map[string]int{
			"entries":   a.history.Len(),
			"sizeBytes": a.history.SizeBytes(),
		},
	})
}

// SecurityEventsHandler lists recorded security audit events, oldest first.
func (a *API) SecurityEventsHandler(w http.ResponseWriter, r *http.Request) {
	if !a.requireGet(w, r) {
		return
	}
	events := a.gate.Audit().Events()
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit > 0 && limit < len(events) {
		events = events[len(events)-limit:]
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(events),
		"events": events,
	})
}

// requireGet rejects non-GET requests. All operator endpoints are read-only.
func (a *API) requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		a.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

func (a *API) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.WithError(err).Warn("Failed to encode response")
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, map[string]string{"error": message})
}
