// Package db is the PostgreSQL implementation of state.Store.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/aonescu/chaosguard/internal/dsl"
	"github.com/aonescu/chaosguard/internal/types"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping postgres")
	}

	store := &PostgresStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	return store, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	-- Flags: one row per key, disabled rows are kept
	CREATE TABLE IF NOT EXISTS chaos_flags (
		key TEXT PRIMARY KEY,
		flag_type TEXT NOT NULL,
		target_component TEXT,
		config JSONB,
		enabled_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ,
		is_enabled BOOLEAN NOT NULL,
		disabled_at TIMESTAMPTZ,
		disabled_reason TEXT
	);

	-- Scenarios: immutable templates
	CREATE TABLE IF NOT EXISTS chaos_scenarios (
		slug TEXT PRIMARY KEY,
		definition JSONB NOT NULL,
		is_active BOOLEAN NOT NULL,
		updated_at TIMESTAMPTZ DEFAULT NOW()
	);

	-- Guardrails: scenario_slug is empty for global guardrails
	CREATE TABLE IF NOT EXISTS chaos_guardrails (
		name TEXT NOT NULL,
		scenario_slug TEXT NOT NULL DEFAULT '',
		metric TEXT NOT NULL,
		operator TEXT NOT NULL,
		threshold DOUBLE PRECISION NOT NULL,
		action TEXT NOT NULL,
		is_active BOOLEAN NOT NULL,
		position SERIAL,
		PRIMARY KEY (name, scenario_slug)
	);

	CREATE TABLE IF NOT EXISTS chaos_experiments (
		id TEXT PRIMARY KEY,
		scenario_slug TEXT NOT NULL,
		status TEXT NOT NULL,
		environment TEXT NOT NULL,
		initiated_by TEXT NOT NULL,
		approved_by TEXT,
		notes TEXT,
		duration_seconds INT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		approved_at TIMESTAMPTZ,
		started_at TIMESTAMPTZ,
		ended_at TIMESTAMPTZ,
		baseline_metrics JSONB,
		final_metrics JSONB,
		flag_keys TEXT[],
		overall_status TEXT,
		end_reason TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_chaos_experiments_status ON chaos_experiments(status);
	CREATE INDEX IF NOT EXISTS idx_chaos_experiments_created ON chaos_experiments(created_at);

	-- Run lease: a single row naming the experiment allowed to run
	CREATE TABLE IF NOT EXISTS chaos_run_lease (
		id INT PRIMARY KEY CHECK (id = 1),
		holder TEXT NOT NULL DEFAULT '',
		acquired_at TIMESTAMPTZ
	);
	INSERT INTO chaos_run_lease (id, holder) VALUES (1, '') ON CONFLICT (id) DO NOTHING;

	-- Event log: append-only
	CREATE TABLE IF NOT EXISTS chaos_event_logs (
		id TEXT PRIMARY KEY,
		seq BIGSERIAL,
		experiment_id TEXT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		severity TEXT NOT NULL,
		severity_rank INT NOT NULL,
		event_type TEXT NOT NULL,
		message TEXT,
		context JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_chaos_event_logs_experiment ON chaos_event_logs(experiment_id, occurred_at);

	CREATE TABLE IF NOT EXISTS chaos_results (
		experiment_id TEXT NOT NULL,
		metric_name TEXT NOT NULL,
		result_type TEXT NOT NULL,
		expected_value TEXT,
		actual_value DOUBLE PRECISION,
		status TEXT NOT NULL,
		observation TEXT,
		evaluated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (experiment_id, metric_name)
	);

	CREATE TABLE IF NOT EXISTS chaos_breaches (
		id BIGSERIAL PRIMARY KEY,
		experiment_id TEXT NOT NULL,
		guardrail TEXT NOT NULL,
		metric TEXT NOT NULL,
		operator TEXT NOT NULL,
		threshold DOUBLE PRECISION NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		action TEXT NOT NULL,
		detected_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chaos_breaches_experiment ON chaos_breaches(experiment_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Flags

func (s *PostgresStore) UpsertFlag(flag types.ChaosFlag) error {
	configJSON, err := marshalJSON(flag.Config)
	if err != nil {
		return errors.Wrapf(err, "encode config of flag %s", flag.Key)
	}

	_, err = s.db.Exec(`
		INSERT INTO chaos_flags (key, flag_type, target_component, config, enabled_at, expires_at, is_enabled, disabled_at, disabled_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (key) DO UPDATE SET
			flag_type = EXCLUDED.flag_type,
			target_component = EXCLUDED.target_component,
			config = EXCLUDED.config,
			enabled_at = EXCLUDED.enabled_at,
			expires_at = EXCLUDED.expires_at,
			is_enabled = EXCLUDED.is_enabled,
			disabled_at = EXCLUDED.disabled_at,
			disabled_reason = EXCLUDED.disabled_reason
	`, flag.Key, string(flag.Type), flag.TargetComponent, configJSON, flag.EnabledAt,
		nullTime(flag.ExpiresAt), flag.IsEnabled, nullTime(flag.DisabledAt), flag.DisabledReason)
	return errors.Wrapf(err, "upsert flag %s", flag.Key)
}

const flagColumns = `key, flag_type, target_component, config, enabled_at, expires_at, is_enabled, disabled_at, disabled_reason`

func (s *PostgresStore) GetFlag(key string) (types.ChaosFlag, bool, error) {
	row := s.db.QueryRow(`SELECT `+flagColumns+` FROM chaos_flags WHERE key = $1`, key)
	flag, err := scanFlag(row)
	if err == sql.ErrNoRows {
		return types.ChaosFlag{}, false, nil
	}
	if err != nil {
		return types.ChaosFlag{}, false, errors.Wrapf(err, "get flag %s", key)
	}
	return flag, true, nil
}

func (s *PostgresStore) ListFlags() ([]types.ChaosFlag, error) {
	rows, err := s.db.Query(`SELECT ` + flagColumns + ` FROM chaos_flags ORDER BY key`)
	if err != nil {
		return nil, errors.Wrap(err, "list flags")
	}
	defer rows.Close()

	flags := make([]types.ChaosFlag, 0)
	for rows.Next() {
		flag, err := scanFlag(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan flag")
		}
		flags = append(flags, flag)
	}
	return flags, rows.Err()
}

func scanFlag(row scanner) (types.ChaosFlag, error) {
	var flag types.ChaosFlag
	var flagType string
	var target, reason sql.NullString
	var configJSON []byte
	var expiresAt, disabledAt sql.NullTime

	if err := row.Scan(&flag.Key, &flagType, &target, &configJSON, &flag.EnabledAt,
		&expiresAt, &flag.IsEnabled, &disabledAt, &reason); err != nil {
		return flag, err
	}
	flag.Type = types.FlagType(flagType)
	flag.TargetComponent = target.String
	flag.DisabledReason = reason.String
	flag.ExpiresAt = timePtr(expiresAt)
	flag.DisabledAt = timePtr(disabledAt)
	if err := unmarshalJSON(configJSON, &flag.Config); err != nil {
		return flag, err
	}
	return flag, nil
}

// Scenarios

func (s *PostgresStore) SaveScenario(scenario types.ChaosScenario) error {
	definition, err := json.Marshal(scenario)
	if err != nil {
		return errors.Wrapf(err, "encode scenario %s", scenario.Slug)
	}
	_, err = s.db.Exec(`
		INSERT INTO chaos_scenarios (slug, definition, is_active, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (slug) DO UPDATE SET
			definition = EXCLUDED.definition,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
	`, scenario.Slug, string(definition), scenario.IsActive)
	return errors.Wrapf(err, "save scenario %s", scenario.Slug)
}

func (s *PostgresStore) GetScenario(slug string) (types.ChaosScenario, bool, error) {
	var definition []byte
	err := s.db.QueryRow(`SELECT definition FROM chaos_scenarios WHERE slug = $1`, slug).Scan(&definition)
	if err == sql.ErrNoRows {
		return types.ChaosScenario{}, false, nil
	}
	if err != nil {
		return types.ChaosScenario{}, false, errors.Wrapf(err, "get scenario %s", slug)
	}

	var scenario types.ChaosScenario
	if err := json.Unmarshal(definition, &scenario); err != nil {
		return types.ChaosScenario{}, false, errors.Wrapf(err, "decode scenario %s", slug)
	}
	return scenario, true, nil
}

func (s *PostgresStore) ListScenarios() ([]types.ChaosScenario, error) {
	rows, err := s.db.Query(`SELECT definition FROM chaos_scenarios ORDER BY slug`)
	if err != nil {
		return nil, errors.Wrap(err, "list scenarios")
	}
	defer rows.Close()

	scenarios := make([]types.ChaosScenario, 0)
	for rows.Next() {
		var definition []byte
		if err := rows.Scan(&definition); err != nil {
			return nil, errors.Wrap(err, "scan scenario")
		}
		var scenario types.ChaosScenario
		if err := json.Unmarshal(definition, &scenario); err != nil {
			return nil, errors.Wrap(err, "decode scenario")
		}
		scenarios = append(scenarios, scenario)
	}
	return scenarios, rows.Err()
}

// Guardrails

func (s *PostgresStore) SaveGuardrail(g types.ChaosGuardrail) error {
	_, err := s.db.Exec(`
		INSERT INTO chaos_guardrails (name, scenario_slug, metric, operator, threshold, action, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name, scenario_slug) DO UPDATE SET
			metric = EXCLUDED.metric,
			operator = EXCLUDED.operator,
			threshold = EXCLUDED.threshold,
			action = EXCLUDED.action,
			is_active = EXCLUDED.is_active
	`, g.Name, g.ScenarioSlug, g.Metric, string(g.Operator), g.Threshold, string(g.Action), g.IsActive)
	return errors.Wrapf(err, "save guardrail %s", g.Name)
}

// ListGuardrails returns global guardrails plus those of scenarioSlug, in insertion order.
func (s *PostgresStore) ListGuardrails(scenarioSlug string) ([]types.ChaosGuardrail, error) {
	rows, err := s.db.Query(`
		SELECT name, scenario_slug, metric, operator, threshold, action, is_active
		FROM chaos_guardrails
		WHERE scenario_slug = '' OR scenario_slug = $1
		ORDER BY position
	`, scenarioSlug)
	if err != nil {
		return nil, errors.Wrap(err, "list guardrails")
	}
	defer rows.Close()

	guardrails := make([]types.ChaosGuardrail, 0)
	for rows.Next() {
		var g types.ChaosGuardrail
		var operator, action string
		if err := rows.Scan(&g.Name, &g.ScenarioSlug, &g.Metric, &operator, &g.Threshold, &action, &g.IsActive); err != nil {
			return nil, errors.Wrap(err, "scan guardrail")
		}
		g.Operator = dsl.Operator(operator)
		g.Action = dsl.Action(action)
		guardrails = append(guardrails, g)
	}
	return guardrails, rows.Err()
}

// Experiments

const experimentColumns = `id, scenario_slug, status, environment, initiated_by, approved_by, notes,
	duration_seconds, created_at, approved_at, started_at, ended_at,
	baseline_metrics, final_metrics, flag_keys, overall_status, end_reason`

func (s *PostgresStore) CreateExperiment(exp types.ChaosExperiment) error {
	baseline, final, err := encodeMetrics(exp)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO chaos_experiments (`+experimentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, exp.ID, exp.ScenarioSlug, string(exp.Status), exp.Environment, exp.InitiatedBy, exp.ApprovedBy, exp.Notes,
		exp.DurationSeconds, exp.CreatedAt, nullTime(exp.ApprovedAt), nullTime(exp.StartedAt), nullTime(exp.EndedAt),
		baseline, final, pq.Array(exp.FlagKeys), string(exp.OverallStatus), exp.EndReason)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
		return types.NewConflictError(exp.ID, "experiment already exists")
	}
	return errors.Wrapf(err, "create experiment %s", exp.ID)
}

func (s *PostgresStore) GetExperiment(id string) (types.ChaosExperiment, bool, error) {
	row := s.db.QueryRow(`SELECT `+experimentColumns+` FROM chaos_experiments WHERE id = $1`, id)
	exp, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		return types.ChaosExperiment{}, false, nil
	}
	if err != nil {
		return types.ChaosExperiment{}, false, errors.Wrapf(err, "get experiment %s", id)
	}
	return exp, true, nil
}

// UpdateExperiment writes exp only while the stored status still equals expected.
func (s *PostgresStore) UpdateExperiment(exp types.ChaosExperiment, expected types.ExperimentStatus) (bool, error) {
	baseline, final, err := encodeMetrics(exp)
	if err != nil {
		return false, err
	}

	res, err := s.db.Exec(`
		UPDATE chaos_experiments SET
			status = $3, environment = $4, approved_by = $5, notes = $6, duration_seconds = $7,
			approved_at = $8, started_at = $9, ended_at = $10,
			baseline_metrics = $11, final_metrics = $12, flag_keys = $13,
			overall_status = $14, end_reason = $15
		WHERE id = $1 AND status = $2
	`, exp.ID, string(expected), string(exp.Status), exp.Environment, exp.ApprovedBy, exp.Notes, exp.DurationSeconds,
		nullTime(exp.ApprovedAt), nullTime(exp.StartedAt), nullTime(exp.EndedAt),
		baseline, final, pq.Array(exp.FlagKeys), string(exp.OverallStatus), exp.EndReason)
	if err != nil {
		return false, errors.Wrapf(err, "update experiment %s", exp.ID)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	if affected == 1 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRow(`SELECT EXISTS (SELECT 1 FROM chaos_experiments WHERE id = $1)`, exp.ID).Scan(&exists); err != nil {
		return false, errors.Wrapf(err, "check experiment %s", exp.ID)
	}
	if !exists {
		return false, types.NewNotFoundError("experiment", exp.ID)
	}
	return false, nil
}

func (s *PostgresStore) ListExperiments(status types.ExperimentStatus) ([]types.ChaosExperiment, error) {
	query := `SELECT ` + experimentColumns + ` FROM chaos_experiments`
	args := make([]interface{}, 0)
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list experiments")
	}
	defer rows.Close()

	experiments := make([]types.ChaosExperiment, 0)
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan experiment")
		}
		experiments = append(experiments, exp)
	}
	return experiments, rows.Err()
}

func scanExperiment(row scanner) (types.ChaosExperiment, error) {
	var exp types.ChaosExperiment
	var status, overall string
	var approvedBy, notes, endReason sql.NullString
	var approvedAt, startedAt, endedAt sql.NullTime
	var baseline, final []byte
	var flagKeys []string

	if err := row.Scan(&exp.ID, &exp.ScenarioSlug, &status, &exp.Environment, &exp.InitiatedBy, &approvedBy, &notes,
		&exp.DurationSeconds, &exp.CreatedAt, &approvedAt, &startedAt, &endedAt,
		&baseline, &final, pq.Array(&flagKeys), &overall, &endReason); err != nil {
		return exp, err
	}

	exp.Status = types.ExperimentStatus(status)
	exp.OverallStatus = types.OverallStatus(overall)
	exp.ApprovedBy = approvedBy.String
	exp.Notes = notes.String
	exp.EndReason = endReason.String
	exp.ApprovedAt = timePtr(approvedAt)
	exp.StartedAt = timePtr(startedAt)
	exp.EndedAt = timePtr(endedAt)
	exp.FlagKeys = flagKeys
	if err := unmarshalJSON(baseline, &exp.BaselineMetrics); err != nil {
		return exp, err
	}
	if err := unmarshalJSON(final, &exp.FinalMetrics); err != nil {
		return exp, err
	}
	return exp, nil
}

func encodeMetrics(exp types.ChaosExperiment) (interface{}, interface{}, error) {
	baseline, err := marshalJSON(exp.BaselineMetrics)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "encode baseline of %s", exp.ID)
	}
	final, err := marshalJSON(exp.FinalMetrics)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "encode final metrics of %s", exp.ID)
	}
	return baseline, final, nil
}

// Run lease

// AcquireRunLease takes the lease when it is free or already held by experimentID.
func (s *PostgresStore) AcquireRunLease(experimentID string, at time.Time) (string, bool, error) {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, errors.Wrap(err, "begin lease transaction")
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE chaos_run_lease SET holder = $1, acquired_at = $2
		WHERE id = 1 AND holder = ''
	`, experimentID, at)
	if err != nil {
		return "", false, errors.Wrap(err, "acquire run lease")
	}
	taken, err := res.RowsAffected()
	if err != nil {
		return "", false, errors.Wrap(err, "acquire run lease")
	}

	var holder string
	if err := tx.QueryRow(`SELECT holder FROM chaos_run_lease WHERE id = 1`).Scan(&holder); err != nil {
		return "", false, errors.Wrap(err, "read run lease")
	}

	if err := tx.Commit(); err != nil {
		return "", false, errors.Wrap(err, "commit run lease")
	}
	return holder, taken == 1, nil
}

func (s *PostgresStore) ReleaseRunLease(experimentID string) error {
	_, err := s.db.Exec(`
		UPDATE chaos_run_lease SET holder = '', acquired_at = NULL
		WHERE id = 1 AND holder = $1
	`, experimentID)
	return errors.Wrap(err, "release run lease")
}

func (s *PostgresStore) CurrentRunLease() (string, bool, error) {
	var holder string
	if err := s.db.QueryRow(`SELECT holder FROM chaos_run_lease WHERE id = 1`).Scan(&holder); err != nil {
		return "", false, errors.Wrap(err, "read run lease")
	}
	return holder, holder != "", nil
}

// Events

func (s *PostgresStore) AppendEvent(event types.ChaosEventLog) error {
	contextJSON, err := marshalJSON(event.Context)
	if err != nil {
		return errors.Wrapf(err, "encode context of event %s", event.ID)
	}
	_, err = s.db.Exec(`
		INSERT INTO chaos_event_logs (id, experiment_id, occurred_at, severity, severity_rank, event_type, message, context)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.ID, event.ExperimentID, event.OccurredAt, string(event.Severity), event.Severity.Rank(),
		event.EventType, event.Message, contextJSON)
	return errors.Wrapf(err, "append event %s", event.ID)
}

func (s *PostgresStore) ListEvents(experimentID string, minSeverity dsl.Severity) ([]types.ChaosEventLog, error) {
	minRank := 0
	if minSeverity != "" {
		minRank = minSeverity.Rank()
	}

	rows, err := s.db.Query(`
		SELECT id, experiment_id, occurred_at, severity, event_type, message, context
		FROM chaos_event_logs
		WHERE experiment_id = $1 AND severity_rank >= $2
		ORDER BY occurred_at, seq
	`, experimentID, minRank)
	if err != nil {
		return nil, errors.Wrap(err, "list events")
	}
	defer rows.Close()

	events := make([]types.ChaosEventLog, 0)
	for rows.Next() {
		var e types.ChaosEventLog
		var severity string
		var message sql.NullString
		var contextJSON []byte
		if err := rows.Scan(&e.ID, &e.ExperimentID, &e.OccurredAt, &severity, &e.EventType, &message, &contextJSON); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		e.Severity = dsl.Severity(severity)
		e.Message = message.String
		if err := unmarshalJSON(contextJSON, &e.Context); err != nil {
			logrus.WithField("event_id", e.ID).Warnf("Dropping undecodable event context: %v", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Results and breaches

// SaveResults replaces the stored results of experimentID.
func (s *PostgresStore) SaveResults(experimentID string, results []types.ChaosResult) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin results transaction")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chaos_results WHERE experiment_id = $1`, experimentID); err != nil {
		return errors.Wrap(err, "clear results")
	}

	for _, r := range results {
		var actual interface{}
		if r.ActualValue != nil {
			actual = *r.ActualValue
		}
		if _, err := tx.Exec(`
			INSERT INTO chaos_results (experiment_id, metric_name, result_type, expected_value, actual_value, status, observation, evaluated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, experimentID, r.MetricName, r.ResultType, r.ExpectedValue, actual, string(r.Status), r.Observation, r.EvaluatedAt); err != nil {
			return errors.Wrapf(err, "insert result %s", r.MetricName)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

func (s *PostgresStore) ListResults(experimentID string) ([]types.ChaosResult, error) {
	rows, err := s.db.Query(`
		SELECT experiment_id, metric_name, result_type, expected_value, actual_value, status, observation, evaluated_at
		FROM chaos_results
		WHERE experiment_id = $1
		ORDER BY metric_name
	`, experimentID)
	if err != nil {
		return nil, errors.Wrap(err, "list results")
	}
	defer rows.Close()

	results := make([]types.ChaosResult, 0)
	for rows.Next() {
		var r types.ChaosResult
		var status string
		var expected, observation sql.NullString
		var actual sql.NullFloat64
		if err := rows.Scan(&r.ExperimentID, &r.MetricName, &r.ResultType, &expected, &actual, &status, &observation, &r.EvaluatedAt); err != nil {
			return nil, errors.Wrap(err, "scan result")
		}
		r.Status = types.ResultStatus(status)
		r.ExpectedValue = expected.String
		r.Observation = observation.String
		if actual.Valid {
			v := actual.Float64
			r.ActualValue = &v
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PostgresStore) RecordBreach(b types.BreachRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO chaos_breaches (experiment_id, guardrail, metric, operator, threshold, value, action, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, b.ExperimentID, b.Guardrail, b.Metric, string(b.Operator), b.Threshold, b.Value, string(b.Action), b.DetectedAt)
	return errors.Wrapf(err, "record breach of %s", b.Guardrail)
}

func (s *PostgresStore) ListBreaches(experimentID string) ([]types.BreachRecord, error) {
	rows, err := s.db.Query(`
		SELECT experiment_id, guardrail, metric, operator, threshold, value, action, detected_at
		FROM chaos_breaches
		WHERE experiment_id = $1
		ORDER BY id
	`, experimentID)
	if err != nil {
		return nil, errors.Wrap(err, "list breaches")
	}
	defer rows.Close()

	breaches := make([]types.BreachRecord, 0)
	for rows.Next() {
		var b types.BreachRecord
		var operator, action string
		if err := rows.Scan(&b.ExperimentID, &b.Guardrail, &b.Metric, &operator, &b.Threshold, &b.Value, &action, &b.DetectedAt); err != nil {
			return nil, errors.Wrap(err, "scan breach")
		}
		b.Operator = dsl.Operator(operator)
		b.Action = dsl.Action(action)
		breaches = append(breaches, b)
	}
	return breaches, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *PostgresStore) Ping() error {
	return s.db.Ping()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// marshalJSON encodes v for a JSONB column; nil maps become NULL.
func marshalJSON(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	return string(data), nil
}

func unmarshalJSON(data []byte, into interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, into)
}
