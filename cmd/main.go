package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/aonescu/chaosguard/cmd/server"
	"github.com/aonescu/chaosguard/internal/authority"
	"github.com/aonescu/chaosguard/internal/config"
	"github.com/aonescu/chaosguard/internal/db"
	"github.com/aonescu/chaosguard/internal/dsl"
	"github.com/aonescu/chaosguard/internal/dsl/guardrails"
	"github.com/aonescu/chaosguard/internal/dsl/scenarios"
	"github.com/aonescu/chaosguard/internal/experiment"
	"github.com/aonescu/chaosguard/internal/flags"
	k8s "github.com/aonescu/chaosguard/internal/kubernetes"
	"github.com/aonescu/chaosguard/internal/metrics"
	"github.com/aonescu/chaosguard/internal/notify"
	"github.com/aonescu/chaosguard/internal/reporting"
	"github.com/aonescu/chaosguard/internal/state"
)

func main() {
	logger := logrus.StandardLogger()
	logger.Info("Chaos Guard - Experiment Orchestrator + REST API")

	cfg, err := config.Load("")
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.ConfigureLogger(logger); err != nil {
		logger.WithError(err).Fatal("Failed to configure logger")
	}

	// Initialize storage
	var store state.Store
	pgStore, err := db.NewPostgresStore(cfg.Database.URL)
	if err != nil {
		if cfg.Database.Required {
			logger.WithError(err).Fatal("Failed to connect to PostgreSQL")
		}
		logger.WithError(err).Warn("Failed to connect to PostgreSQL, falling back to in-memory storage")
		store = state.NewMemoryStore()
	} else {
		logger.Info("Connected to PostgreSQL")
		store = pgStore
		defer pgStore.Close()
	}

	if err := seedCatalog(store, cfg); err != nil {
		logger.WithError(err).Fatal("Failed to seed scenario catalog")
	}

	authorityMap := authority.NewComponentAuthorityMap()
	registry, err := flags.NewRegistry(store, flags.WithComponentValidator(authorityMap))
	if err != nil {
		logger.WithError(err).Fatal("Failed to create flag registry")
	}

	source := buildMetricSource(cfg, logger)
	dispatcher := notify.NewDispatcher(dsl.Warning, notify.NewLogSink(logger))

	orch := experiment.NewOrchestrator(store, registry, source,
		experiment.WithNotifier(dispatcher),
		experiment.WithEnvironment(cfg.Environment()),
	)
	driver := experiment.NewDriver(orch, experiment.NewTickerScheduler(), cfg.PollInterval())

	apiServer := server.NewAPIServer(server.Deps{
		Store:        store,
		Orchestrator: orch,
		Flags:        registry,
		Driver:       driver,
		Reporter:     reporting.NewReporter(store, authorityMap),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- apiServer.Start(cfg.Server.Address)
	}()

	logger.Info("✓ API server ready")
	logger.Info("API Endpoints:")
	printAPIEndpoints(logger, cfg.Server.Address)
	logger.Info("Press Ctrl+C to exit")

	select {
	case err := <-serveErr:
		if err != nil {
			logger.WithError(err).Error("API server failed")
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("API server did not shut down cleanly")
	}
	driver.Shutdown()
}

// seedCatalog loads the built-in scenarios and guardrails, then the ones from config.
// Config entries with a built-in slug or name replace the built-in definition.
func seedCatalog(store state.Store, cfg *config.Config) error {
	for _, s := range append(scenarios.GetBuiltinScenarios(), cfg.Catalog.ScenarioList()...) {
		if err := store.SaveScenario(s); err != nil {
			return err
		}
	}

	all := guardrails.GetDefaultGuardrails()
	all = append(all, scenarios.GetScenarioGuardrails()...)
	all = append(all, cfg.Catalog.GuardrailList()...)
	for _, g := range all {
		if err := store.SaveGuardrail(g); err != nil {
			return err
		}
	}

	logrus.WithFields(logrus.Fields{
		"scenarios":  len(scenarios.GetBuiltinScenarios()) + len(cfg.Catalog.Scenarios),
		"guardrails": len(all),
	}).Info("Scenario catalog loaded")
	return nil
}

// buildMetricSource combines the static metrics with live worker gauges when Kubernetes is enabled.
func buildMetricSource(cfg *config.Config, logger *logrus.Logger) metrics.Source {
	static := metrics.NewStaticSource(cfg.Orchestrator.StaticMetrics)
	if !cfg.Kubernetes.Enabled {
		return static
	}

	clientset, err := k8s.NewClientset(cfg.Kubernetes.Kubeconfig)
	if err != nil {
		logger.WithError(err).Warn("Failed to create Kubernetes client, worker gauges disabled")
		return static
	}

	logger.WithFields(logrus.Fields{
		"namespace": cfg.Kubernetes.Namespace,
		"selector":  cfg.Kubernetes.WorkerSelector,
	}).Info("Reading worker gauges from Kubernetes")

	live := metrics.NewSnapshotter(cfg.GaugeTimeout(),
		k8s.WorkerGauges(clientset, cfg.Kubernetes.Namespace, cfg.Kubernetes.WorkerSelector)...)
	return metrics.MultiSource{static, live}
}

func printAPIEndpoints(logger *logrus.Logger, addr string) {
	baseURL := "http://localhost" + addr
	endpoints := []string{
		"GET    " + baseURL + "/health",
		"GET    " + baseURL + "/ready",
		"GET    " + baseURL + "/api/v1/scenarios",
		"GET    " + baseURL + "/api/v1/scenarios/{slug}/guardrails",
		"POST   " + baseURL + "/api/v1/experiments",
		"GET    " + baseURL + "/api/v1/experiments?status=running",
		"POST   " + baseURL + "/api/v1/experiments/{id}/approve",
		"POST   " + baseURL + "/api/v1/experiments/{id}/start?drive=true",
		"POST   " + baseURL + "/api/v1/experiments/{id}/monitor",
		"POST   " + baseURL + "/api/v1/experiments/{id}/pause",
		"POST   " + baseURL + "/api/v1/experiments/{id}/resume",
		"POST   " + baseURL + "/api/v1/experiments/{id}/stop",
		"POST   " + baseURL + "/api/v1/experiments/{id}/abort",
		"GET    " + baseURL + "/api/v1/experiments/{id}/events?min_severity=warning",
		"GET    " + baseURL + "/api/v1/experiments/{id}/report?format=text",
		"GET    " + baseURL + "/api/v1/experiments/{id}/review",
		"GET    " + baseURL + "/api/v1/flags",
		"POST   " + baseURL + "/api/v1/flags",
		"DELETE " + baseURL + "/api/v1/flags/{key}",
		"POST   " + baseURL + "/api/v1/flags/disable-all",
		"POST   " + baseURL + "/api/v1/emergency-stop",
		"GET    " + baseURL + "/api/v1/stats",
	}

	for _, endpoint := range endpoints {
		logger.Info("  " + endpoint)
	}
}
