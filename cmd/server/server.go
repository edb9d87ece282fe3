package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aonescu/chaosguard/internal/experiment"
	"github.com/aonescu/chaosguard/internal/flags"
	"github.com/aonescu/chaosguard/internal/reporting"
	"github.com/aonescu/chaosguard/internal/state"
)

// Deps are the collaborators the API exposes. Driver may be nil, which disables ?drive=true.
type Deps struct {
	Store        state.Store
	Orchestrator *experiment.Orchestrator
	Flags        *flags.Registry
	Driver       *experiment.Driver
	Reporter     *reporting.Reporter
}

type APIServer struct {
	store    state.Store
	orch     *experiment.Orchestrator
	flags    *flags.Registry
	driver   *experiment.Driver
	reporter *reporting.Reporter
	mux      *http.ServeMux
	started  time.Time

	mu     sync.Mutex
	server *http.Server
}

func NewAPIServer(deps Deps) *APIServer {
	api := &APIServer{
		store:    deps.Store,
		orch:     deps.Orchestrator,
		flags:    deps.Flags,
		driver:   deps.Driver,
		reporter: deps.Reporter,
		mux:      http.NewServeMux(),
		started:  time.Now(),
	}
	api.registerRoutes()
	return api
}

func (api *APIServer) registerRoutes() {
	// Catalog
	api.mux.HandleFunc("GET /api/v1/scenarios", api.handleScenarios)
	api.mux.HandleFunc("GET /api/v1/scenarios/{slug}/guardrails", api.handleScenarioGuardrails)

	// Experiment lifecycle
	api.mux.HandleFunc("POST /api/v1/experiments", api.handleCreateExperiment)
	api.mux.HandleFunc("GET /api/v1/experiments", api.handleListExperiments)
	api.mux.HandleFunc("GET /api/v1/experiments/{id}", api.handleGetExperiment)
	api.mux.HandleFunc("POST /api/v1/experiments/{id}/approve", api.handleApprove)
	api.mux.HandleFunc("POST /api/v1/experiments/{id}/start", api.handleStart)
	api.mux.HandleFunc("POST /api/v1/experiments/{id}/monitor", api.handleMonitor)
	api.mux.HandleFunc("POST /api/v1/experiments/{id}/pause", api.handlePause)
	api.mux.HandleFunc("POST /api/v1/experiments/{id}/resume", api.handleResume)
	api.mux.HandleFunc("POST /api/v1/experiments/{id}/stop", api.handleStop)
	api.mux.HandleFunc("POST /api/v1/experiments/{id}/abort", api.handleAbort)
	api.mux.HandleFunc("GET /api/v1/experiments/{id}/events", api.handleEvents)

	// Reporting
	api.mux.HandleFunc("GET /api/v1/experiments/{id}/report", api.handleReport)
	api.mux.HandleFunc("GET /api/v1/experiments/{id}/review", api.handleReview)

	// Flags
	api.mux.HandleFunc("GET /api/v1/flags", api.handleListFlags)
	api.mux.HandleFunc("POST /api/v1/flags", api.handleEnableFlag)
	api.mux.HandleFunc("GET /api/v1/flags/{key}", api.handleGetFlag)
	api.mux.HandleFunc("DELETE /api/v1/flags/{key}", api.handleDisableFlag)
	api.mux.HandleFunc("POST /api/v1/flags/disable-all", api.handleDisableAllFlags)

	api.mux.HandleFunc("POST /api/v1/emergency-stop", api.handleEmergencyStop)

	// Health check
	api.mux.HandleFunc("GET /health", api.handleHealth)
	api.mux.HandleFunc("GET /ready", api.handleReady)

	// Metrics/stats
	api.mux.HandleFunc("GET /api/v1/stats", api.handleStats)
}

// Handler is the routed API wrapped in its middleware.
func (api *APIServer) Handler() http.Handler {
	return api.corsMiddleware(api.loggingMiddleware(api.mux))
}

// Start serves until Shutdown is called.
func (api *APIServer) Start(addr string) error {
	logrus.WithField("address", addr).Info("Starting API server")

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	api.mu.Lock()
	api.server = srv
	api.mu.Unlock()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (api *APIServer) Shutdown(ctx context.Context) error {
	api.mu.Lock()
	srv := api.server
	api.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
