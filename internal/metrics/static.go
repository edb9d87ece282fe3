package metrics

import (
	"context"
	"sort"
	"sync"
)

// StaticSource serves metric values set in-process. Used for local runs,
// manual drills and tests.
type StaticSource struct {
	mu       sync.RWMutex
	values   map[string]float64
	failures map[string]error
}

func NewStaticSource(values map[string]float64) *StaticSource {
	s := &StaticSource{
		values:   make(map[string]float64),
		failures: make(map[string]error),
	}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

func (s *StaticSource) Set(name string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
	delete(s.failures, name)
}

// Fail makes reads of name return err until the next Set.
func (s *StaticSource) Fail(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[name] = err
}

// Gauges exposes every configured metric as a gauge for a Snapshotter.
func (s *StaticSource) Gauges() []Gauge {
	s.mu.RLock()
	names := make([]string, 0, len(s.values)+len(s.failures))
	seen := make(map[string]bool)
	for k := range s.values {
		names = append(names, k)
		seen[k] = true
	}
	for k := range s.failures {
		if !seen[k] {
			names = append(names, k)
		}
	}
	s.mu.RUnlock()

	sort.Strings(names)
	gauges := make([]Gauge, 0, len(names))
	for _, name := range names {
		name := name
		gauges = append(gauges, Gauge{Name: name, Read: func(ctx context.Context) (float64, error) {
			return s.read(name)
		}})
	}
	return gauges
}

func (s *StaticSource) read(name string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err, failing := s.failures[name]; failing {
		return 0, err
	}
	v, ok := s.values[name]
	if !ok {
		return 0, &missingMetricError{name: name}
	}
	return v, nil
}

func (s *StaticSource) CollectAll(ctx context.Context) map[string]float64 {
	return s.Collect(ctx).Values
}

func (s *StaticSource) Collect(ctx context.Context) Snapshot {
	return NewSnapshotter(0, s.Gauges()...).Collect(ctx)
}

type missingMetricError struct {
	name string
}

func (e *missingMetricError) Error() string {
	return "metric " + e.name + " has no value"
}
