package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aonescu/chaosguard/internal/dsl"
	"github.com/aonescu/chaosguard/internal/experiment"
	"github.com/aonescu/chaosguard/internal/flags"
	"github.com/aonescu/chaosguard/internal/reporting"
	"github.com/aonescu/chaosguard/internal/types"
)

// GET /api/v1/scenarios?active=true
func (api *APIServer) handleScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := api.store.ListScenarios()
	if err != nil {
		api.respondError(w, types.NewCollaboratorError("scenario store", "list scenarios", err))
		return
	}

	if r.URL.Query().Get("active") == "true" {
		active := make([]types.ChaosScenario, 0, len(scenarios))
		for _, s := range scenarios {
			if s.IsActive {
				active = append(active, s)
			}
		}
		scenarios = active
	}

	api.respondJSON(w, scenarios)
}

// GET /api/v1/scenarios/{slug}/guardrails
func (api *APIServer) handleScenarioGuardrails(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if _, exists, err := api.store.GetScenario(slug); err != nil {
		api.respondError(w, types.NewCollaboratorError("scenario store", "get "+slug, err))
		return
	} else if !exists {
		api.respondError(w, types.NewNotFoundError("scenario", slug))
		return
	}

	guardrails, err := api.orch.GuardrailEngine().Guardrails(slug)
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSON(w, guardrails)
}

// POST /api/v1/experiments
// Body: {"scenario": "webhook-latency", "actor": "alice", "environment": "staging", "duration_seconds": 300}
func (api *APIServer) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scenario        string `json:"scenario"`
		Actor           string `json:"actor"`
		Environment     string `json:"environment"`
		DurationSeconds int    `json:"duration_seconds"`
		Notes           string `json:"notes"`
	}
	if !api.decodeBody(w, r, &req) {
		return
	}
	if req.Scenario == "" {
		api.respondError(w, types.NewValidationError("scenario", "scenario is required"))
		return
	}

	exp, err := api.orch.Create(r.Context(), req.Scenario, req.Actor, experiment.CreateOptions{
		Environment:     req.Environment,
		DurationSeconds: req.DurationSeconds,
		Notes:           req.Notes,
	})
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSONStatus(w, http.StatusCreated, exp)
}

// GET /api/v1/experiments?status=running
func (api *APIServer) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	status := types.ExperimentStatus(r.URL.Query().Get("status"))
	exps, err := api.orch.List(status)
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSON(w, exps)
}

// GET /api/v1/experiments/{id}
func (api *APIServer) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := api.orch.Get(r.PathValue("id"))
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSON(w, exp)
}

// POST /api/v1/experiments/{id}/approve
// Body: {"actor": "bob"}
func (api *APIServer) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor string `json:"actor"`
	}
	if !api.decodeBody(w, r, &req) {
		return
	}

	exp, err := api.orch.Approve(r.Context(), r.PathValue("id"), req.Actor)
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSON(w, exp)
}

// POST /api/v1/experiments/{id}/start?drive=true
func (api *APIServer) handleStart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	result, err := api.orch.Start(r.Context(), id)
	if err != nil {
		if types.IsConflict(err) {
			api.respondJSONStatus(w, http.StatusConflict, map[string]interface{}{
				"error":  err.Error(),
				"result": result,
			})
			return
		}
		api.respondError(w, err)
		return
	}

	response := map[string]interface{}{
		"result":  result,
		"driving": false,
	}
	if r.URL.Query().Get("drive") == "true" {
		if api.driver == nil {
			logrus.WithField("experiment_id", id).Warn("Drive requested but no driver is configured")
		} else {
			response["driving"] = api.driver.Go(id)
		}
	}
	api.respondJSON(w, response)
}

// POST /api/v1/experiments/{id}/monitor
func (api *APIServer) handleMonitor(w http.ResponseWriter, r *http.Request) {
	result, err := api.orch.Monitor(r.Context(), r.PathValue("id"))
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSON(w, result)
}

// POST /api/v1/experiments/{id}/pause
func (api *APIServer) handlePause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor string `json:"actor"`
	}
	if !api.decodeBody(w, r, &req) {
		return
	}

	exp, err := api.orch.Pause(r.Context(), r.PathValue("id"), req.Actor)
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSON(w, exp)
}

// POST /api/v1/experiments/{id}/resume
func (api *APIServer) handleResume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor string `json:"actor"`
	}
	if !api.decodeBody(w, r, &req) {
		return
	}

	exp, err := api.orch.Resume(r.Context(), r.PathValue("id"), req.Actor)
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSON(w, exp)
}

// POST /api/v1/experiments/{id}/stop
// Body: {"graceful": true}; graceful is the default
func (api *APIServer) handleStop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Graceful *bool `json:"graceful"`
	}
	if !api.decodeBody(w, r, &req) {
		return
	}
	graceful := req.Graceful == nil || *req.Graceful

	result, err := api.orch.Stop(r.Context(), r.PathValue("id"), graceful)
	if err != nil {
		api.respondError(w, err)
		return
	}
	if !result.Success {
		api.respondJSONStatus(w, http.StatusConflict, result)
		return
	}
	api.respondJSON(w, result)
}

// POST /api/v1/experiments/{id}/abort
// Body: {"reason": "customer impact", "triggered_by": "oncall"}
func (api *APIServer) handleAbort(w http.ResponseWriter, r *http.Request) {
	var req experiment.AbortRequest
	if !api.decodeBody(w, r, &req) {
		return
	}

	exp, err := api.orch.Abort(r.Context(), r.PathValue("id"), req)
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSON(w, exp)
}

// GET /api/v1/experiments/{id}/events?min_severity=high
func (api *APIServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	var minSeverity dsl.Severity
	if raw := r.URL.Query().Get("min_severity"); raw != "" {
		sev, err := dsl.ParseSeverity(raw)
		if err != nil {
			api.respondError(w, types.NewValidationError("min_severity", "%v", err))
			return
		}
		minSeverity = sev
	}

	events, err := api.orch.Events(r.PathValue("id"), minSeverity)
	if err != nil {
		api.respondError(w, err)
		return
	}
	if events == nil {
		events = []types.ChaosEventLog{}
	}
	api.respondJSON(w, events)
}

// GET /api/v1/experiments/{id}/report?format=text
func (api *APIServer) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := api.reporter.GenerateReport(r.Context(), r.PathValue("id"))
	if err != nil {
		api.respondError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, reporting.FormatReport(report))
		return
	}
	api.respondJSON(w, report)
}

// GET /api/v1/experiments/{id}/review?format=text
func (api *APIServer) handleReview(w http.ResponseWriter, r *http.Request) {
	review, err := api.reporter.GenerateReviewTemplate(r.Context(), r.PathValue("id"))
	if err != nil {
		api.respondError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, reporting.FormatReviewTemplate(review))
		return
	}
	api.respondJSON(w, review)
}

// GET /api/v1/flags?active=true
func (api *APIServer) handleListFlags(w http.ResponseWriter, r *http.Request) {
	var (
		list []types.ChaosFlag
		err  error
	)
	if r.URL.Query().Get("active") == "true" {
		list, err = api.flags.Active()
	} else {
		list, err = api.flags.All()
	}
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSON(w, list)
}

// POST /api/v1/flags
// Body: {"key": "chaos.webhook.delay", "type": "delay", "config": {"delay_ms": 3000}, "duration_seconds": 300}
// config_json may carry the config as a raw JSON string instead.
func (api *APIServer) handleEnableFlag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key             string                 `json:"key"`
		Type            types.FlagType         `json:"type"`
		TargetComponent string                 `json:"target_component"`
		Config          map[string]interface{} `json:"config"`
		ConfigJSON      string                 `json:"config_json"`
		DurationSeconds int                    `json:"duration_seconds"`
	}
	if !api.decodeBody(w, r, &req) {
		return
	}

	config := req.Config
	if req.ConfigJSON != "" {
		parsed, err := flags.ParseConfigJSON(req.ConfigJSON)
		if err != nil {
			api.respondError(w, err)
			return
		}
		config = parsed
	}

	flag, err := api.flags.Enable(req.Key, flags.EnableOptions{
		Type:            req.Type,
		TargetComponent: req.TargetComponent,
		Config:          config,
		Duration:        time.Duration(req.DurationSeconds) * time.Second,
	})
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSONStatus(w, http.StatusCreated, flag)
}

// GET /api/v1/flags/{key}
func (api *APIServer) handleGetFlag(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	flag, exists, err := api.flags.Get(key)
	if err != nil {
		api.respondError(w, types.NewCollaboratorError("flag store", "read "+key, err))
		return
	}
	if !exists {
		api.respondError(w, types.NewNotFoundError("flag", key))
		return
	}

	api.respondJSON(w, map[string]interface{}{
		"flag":   flag,
		"active": api.flags.IsEnabled(key),
	})
}

// DELETE /api/v1/flags/{key}?reason=manual
func (api *APIServer) handleDisableFlag(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "disabled via api"
	}

	if err := api.flags.DisableWithReason(key, reason); err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSON(w, map[string]interface{}{"key": key, "disabled": true})
}

// POST /api/v1/flags/disable-all
// Body: {"reason": "incident"}
func (api *APIServer) handleDisableAllFlags(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !api.decodeBody(w, r, &req) {
		return
	}
	if req.Reason == "" {
		req.Reason = "disable all via api"
	}

	count, err := api.flags.DisableAll(req.Reason)
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSON(w, map[string]interface{}{"disabled": count})
}

// POST /api/v1/emergency-stop
// Body: {"reason": "incident", "actor": "oncall"}
func (api *APIServer) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
		Actor  string `json:"actor"`
	}
	if !api.decodeBody(w, r, &req) {
		return
	}
	if req.Reason == "" {
		req.Reason = "emergency stop"
	}

	result, err := api.orch.EmergencyStop(r.Context(), req.Reason, req.Actor)
	if err != nil {
		api.respondJSONStatus(w, statusFor(err), map[string]interface{}{
			"error":  err.Error(),
			"result": result,
		})
		return
	}
	api.respondJSON(w, result)
}

// GET /health
func (api *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
		"uptime": time.Since(api.started).Round(time.Second).String(),
	}

	// Check database connection if the store has one
	if p, ok := api.store.(interface{ Ping() error }); ok {
		if err := p.Ping(); err != nil {
			health["status"] = "unhealthy"
			health["database"] = "disconnected"
			api.respondJSONStatus(w, http.StatusServiceUnavailable, health)
			return
		}
		health["database"] = "connected"
	} else {
		health["database"] = "memory"
	}

	api.respondJSON(w, health)
}

// GET /ready
func (api *APIServer) handleReady(w http.ResponseWriter, r *http.Request) {
	scenarios, err := api.store.ListScenarios()
	loaded := err == nil && len(scenarios) > 0

	ready := map[string]interface{}{
		"ready":            loaded,
		"scenarios_loaded": len(scenarios),
	}
	if !loaded {
		api.respondJSONStatus(w, http.StatusServiceUnavailable, ready)
		return
	}
	api.respondJSON(w, ready)
}

// GET /api/v1/stats
func (api *APIServer) handleStats(w http.ResponseWriter, r *http.Request) {
	exps, err := api.orch.List("")
	if err != nil {
		api.respondError(w, err)
		return
	}

	byStatus := make(map[string]int)
	byOverall := make(map[string]int)
	for _, exp := range exps {
		byStatus[string(exp.Status)]++
		if exp.OverallStatus != types.OverallUnknown {
			byOverall[string(exp.OverallStatus)]++
		}
	}

	activeFlags := 0
	if active, err := api.flags.Active(); err == nil {
		activeFlags = len(active)
	}

	stats := map[string]interface{}{
		"total_experiments": len(exps),
		"by_status":         byStatus,
		"by_overall_status": byOverall,
		"active_flags":      activeFlags,
		"guardrails":        api.orch.GuardrailEngine().GetEvaluationStats(),
	}
	if holder, held, err := api.store.CurrentRunLease(); err == nil && held {
		stats["running_experiment"] = holder
	}
	if api.driver != nil {
		stats["driving"] = api.driver.Driving()
	}

	api.respondJSON(w, stats)
}

// decodeBody decodes an optional JSON body into v. It writes a 400 and returns false on malformed input.
func (api *APIServer) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		api.respondError(w, types.NewValidationError("body", "invalid request body: %v", err))
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case types.IsValidation(err):
		return http.StatusBadRequest
	case types.IsNotFound(err):
		return http.StatusNotFound
	case types.IsConflict(err):
		return http.StatusConflict
	case types.IsCollaborator(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (api *APIServer) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logrus.WithError(err).Error("Request failed")
	}
	api.respondJSONStatus(w, status, map[string]string{"error": err.Error()})
}

func (api *APIServer) respondJSON(w http.ResponseWriter, data interface{}) {
	api.respondJSONStatus(w, http.StatusOK, data)
}

func (api *APIServer) respondJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (api *APIServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"remote":   r.RemoteAddr,
			"status":   strconv.Itoa(rec.status),
			"duration": time.Since(start),
		}).Debug("Request completed")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (api *APIServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
