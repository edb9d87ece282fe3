package state

import (
	"sort"
	"sync"
	"time"

	"github.com/aonescu/chaosguard/internal/dsl"
	"github.com/aonescu/chaosguard/internal/types"
)

type FlagStore interface {
	UpsertFlag(flag types.ChaosFlag) error
	GetFlag(key string) (types.ChaosFlag, bool, error)
	ListFlags() ([]types.ChaosFlag, error)
}

type ScenarioStore interface {
	SaveScenario(scenario types.ChaosScenario) error
	GetScenario(slug string) (types.ChaosScenario, bool, error)
	ListScenarios() ([]types.ChaosScenario, error)
}

type GuardrailStore interface {
	SaveGuardrail(guardrail types.ChaosGuardrail) error
	// ListGuardrails returns global guardrails plus those scoped to scenarioSlug.
	ListGuardrails(scenarioSlug string) ([]types.ChaosGuardrail, error)
}

type ExperimentStore interface {
	CreateExperiment(exp types.ChaosExperiment) error
	GetExperiment(id string) (types.ChaosExperiment, bool, error)
	// UpdateExperiment writes exp only if the stored status equals expected.
	UpdateExperiment(exp types.ChaosExperiment, expected types.ExperimentStatus) (bool, error)
	ListExperiments(status types.ExperimentStatus) ([]types.ChaosExperiment, error)
}

// RunLease is the single-row lock guaranteeing at most one running experiment
type RunLease interface {
	// AcquireRunLease takes a free lease for experimentID. It returns the current
	// holder and whether this call took it; a lease already held, even by
	// experimentID itself, is not granted again.
	AcquireRunLease(experimentID string, at time.Time) (string, bool, error)
	ReleaseRunLease(experimentID string) error
	CurrentRunLease() (string, bool, error)
}

type EventStore interface {
	AppendEvent(event types.ChaosEventLog) error
	// ListEvents returns events ordered by occurrence with severity at least minSeverity.
	ListEvents(experimentID string, minSeverity dsl.Severity) ([]types.ChaosEventLog, error)
}

type ResultStore interface {
	SaveResults(experimentID string, results []types.ChaosResult) error
	ListResults(experimentID string) ([]types.ChaosResult, error)
	RecordBreach(breach types.BreachRecord) error
	ListBreaches(experimentID string) ([]types.BreachRecord, error)
}

type Store interface {
	FlagStore
	ScenarioStore
	GuardrailStore
	ExperimentStore
	RunLease
	EventStore
	ResultStore
}

// In-memory implementation for fallback
type MemoryStore struct {
	mu          sync.RWMutex
	flags       map[string]types.ChaosFlag
	scenarios   map[string]types.ChaosScenario
	guardrails  []types.ChaosGuardrail
	experiments map[string]types.ChaosExperiment
	expOrder    []string
	events      map[string][]types.ChaosEventLog
	results     map[string][]types.ChaosResult
	breaches    map[string][]types.BreachRecord
	leaseHolder string
	leaseAt     time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flags:       make(map[string]types.ChaosFlag),
		scenarios:   make(map[string]types.ChaosScenario),
		guardrails:  make([]types.ChaosGuardrail, 0),
		experiments: make(map[string]types.ChaosExperiment),
		events:      make(map[string][]types.ChaosEventLog),
		results:     make(map[string][]types.ChaosResult),
		breaches:    make(map[string][]types.BreachRecord),
	}
}

func (s *MemoryStore) UpsertFlag(flag types.ChaosFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[flag.Key] = cloneFlag(flag)
	return nil
}

func (s *MemoryStore) GetFlag(key string) (types.ChaosFlag, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flag, exists := s.flags[key]
	return cloneFlag(flag), exists, nil
}

func (s *MemoryStore) ListFlags() ([]types.ChaosFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flags := make([]types.ChaosFlag, 0, len(s.flags))
	for _, f := range s.flags {
		flags = append(flags, cloneFlag(f))
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].Key < flags[j].Key })
	return flags, nil
}

func (s *MemoryStore) SaveScenario(scenario types.ChaosScenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenarios[scenario.Slug] = scenario
	return nil
}

func (s *MemoryStore) GetScenario(slug string) (types.ChaosScenario, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scenario, exists := s.scenarios[slug]
	return scenario, exists, nil
}

func (s *MemoryStore) ListScenarios() ([]types.ChaosScenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scenarios := make([]types.ChaosScenario, 0, len(s.scenarios))
	for _, sc := range s.scenarios {
		scenarios = append(scenarios, sc)
	}
	sort.Slice(scenarios, func(i, j int) bool { return scenarios[i].Slug < scenarios[j].Slug })
	return scenarios, nil
}

func (s *MemoryStore) SaveGuardrail(guardrail types.ChaosGuardrail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, g := range s.guardrails {
		if g.Name == guardrail.Name && g.ScenarioSlug == guardrail.ScenarioSlug {
			s.guardrails[i] = guardrail
			return nil
		}
	}
	s.guardrails = append(s.guardrails, guardrail)
	return nil
}

func (s *MemoryStore) ListGuardrails(scenarioSlug string) ([]types.ChaosGuardrail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []types.ChaosGuardrail
	for _, g := range s.guardrails {
		if g.Global() || g.ScenarioSlug == scenarioSlug {
			results = append(results, g)
		}
	}
	return results, nil
}

func (s *MemoryStore) CreateExperiment(exp types.ChaosExperiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.experiments[exp.ID]; exists {
		return types.NewConflictError(exp.ID, "experiment already exists")
	}
	s.experiments[exp.ID] = exp
	s.expOrder = append(s.expOrder, exp.ID)
	return nil
}

func (s *MemoryStore) GetExperiment(id string) (types.ChaosExperiment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exp, exists := s.experiments[id]
	return exp, exists, nil
}

func (s *MemoryStore) UpdateExperiment(exp types.ChaosExperiment, expected types.ExperimentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.experiments[exp.ID]
	if !exists {
		return false, types.NewNotFoundError("experiment", exp.ID)
	}
	if current.Status != expected {
		return false, nil
	}
	s.experiments[exp.ID] = exp
	return true, nil
}

func (s *MemoryStore) ListExperiments(status types.ExperimentStatus) ([]types.ChaosExperiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []types.ChaosExperiment
	for _, id := range s.expOrder {
		exp := s.experiments[id]
		if status == "" || exp.Status == status {
			results = append(results, exp)
		}
	}
	return results, nil
}

func (s *MemoryStore) AcquireRunLease(experimentID string, at time.Time) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.leaseHolder != "" {
		return s.leaseHolder, false, nil
	}
	s.leaseHolder = experimentID
	s.leaseAt = at
	return experimentID, true, nil
}

func (s *MemoryStore) ReleaseRunLease(experimentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.leaseHolder == experimentID {
		s.leaseHolder = ""
		s.leaseAt = time.Time{}
	}
	return nil
}

func (s *MemoryStore) CurrentRunLease() (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.leaseHolder, s.leaseHolder != "", nil
}

func (s *MemoryStore) AppendEvent(event types.ChaosEventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ExperimentID] = append(s.events[event.ExperimentID], event)
	return nil
}

func (s *MemoryStore) ListEvents(experimentID string, minSeverity dsl.Severity) ([]types.ChaosEventLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []types.ChaosEventLog
	for _, e := range s.events[experimentID] {
		if minSeverity == "" || e.Severity.AtLeast(minSeverity) {
			results = append(results, e)
		}
	}
	return results, nil
}

func (s *MemoryStore) SaveResults(experimentID string, results []types.ChaosResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]types.ChaosResult, len(results))
	copy(copied, results)
	s.results[experimentID] = copied
	return nil
}

func (s *MemoryStore) ListResults(experimentID string) ([]types.ChaosResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]types.ChaosResult, len(s.results[experimentID]))
	copy(results, s.results[experimentID])
	return results, nil
}

func (s *MemoryStore) RecordBreach(breach types.BreachRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breaches[breach.ExperimentID] = append(s.breaches[breach.ExperimentID], breach)
	return nil
}

func (s *MemoryStore) ListBreaches(experimentID string) ([]types.BreachRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	breaches := make([]types.BreachRecord, len(s.breaches[experimentID]))
	copy(breaches, s.breaches[experimentID])
	return breaches, nil
}

func cloneFlag(f types.ChaosFlag) types.ChaosFlag {
	if f.Config != nil {
		cfg := make(map[string]interface{}, len(f.Config))
		for k, v := range f.Config {
			cfg[k] = v
		}
		f.Config = cfg
	}
	return f
}
