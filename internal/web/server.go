// Package web exposes the application state over a JSON HTTP API.
package web

import (
	"context"
	"net/http"
	"time"

	"spendlog/internal/appstate"
	"spendlog/internal/export"
	"spendlog/internal/log"
)

// Server wires the HTTP routes over the application state.
type Server struct {
	http.Server

	state    *appstate.AppState
	adapter  *appstate.ViewAdapter
	exporter *export.Exporter
	logger   *log.Logger
}

// NewServer configures routes and returns a ready-to-run server.
func NewServer(addr string, state *appstate.AppState, adapter *appstate.ViewAdapter, exporter *export.Exporter, logger *log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           log.RequestLogger(logger)(mux),
			ReadHeaderTimeout: 5 * time.Second,
		},
		state:    state,
		adapter:  adapter,
		exporter: exporter,
		logger:   logger.WithComponent(log.ComponentHTTP),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /api/state", s.handleState)

	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)
	mux.HandleFunc("GET /api/expenses/search", s.handleSearchExpenses)

	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	mux.HandleFunc("PATCH /api/categories/{id}", s.handleUpdateCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)
	mux.HandleFunc("PUT /api/categories/order", s.handleReorderCategories)

	mux.HandleFunc("GET /api/analytics", s.handleAnalytics)
	mux.HandleFunc("PUT /api/date", s.handleSelectDate)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PATCH /api/settings", s.handleUpdateSettings)
	mux.HandleFunc("POST /api/settings/reset", s.handleResetSettings)

	mux.HandleFunc("POST /api/export", s.handleExport)

	return s
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
