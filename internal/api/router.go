package api

import (
	httpserver "Friday_1.0/pkg/http"
)

// RegisterRoutes registers all the operator endpoints on the server.
// Every endpoint is read-only; mutation happens through the CLI, not HTTP.
func RegisterRoutes(srv *httpserver.Server, api *API) {
	srv.HandleFunc("/healthz", api.HealthHandler)
	srv.HandleFunc("/v1/metrics", api.MetricsHandler)
	srv.HandleFunc("/v1/history", api.HistoryHandler)
	srv.HandleFunc("/v1/history/", api.HistoryEntryHandler)
	srv.HandleFunc("/v1/agents", api.AgentsHandler)
	srv.HandleFunc("/v1/cache/stats", api.CacheStatsHandler)
	srv.HandleFunc("/v1/security/events", api.SecurityEventsHandler)
}
