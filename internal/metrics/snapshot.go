// Package metrics captures point-in-time snapshots of named operational gauges.
package metrics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Source is anything that can produce a best-effort metrics map
type Source interface {
	CollectAll(ctx context.Context) map[string]float64
}

// DetailedSource also reports which metrics were omitted and why
type DetailedSource interface {
	Source
	Collect(ctx context.Context) Snapshot
}

// Gauge reads one named metric from an external system
type Gauge struct {
	Name string
	Read func(ctx context.Context) (float64, error)
}

// Snapshot is the result of one collection pass
type Snapshot struct {
	TakenAt time.Time          `json:"taken_at"`
	Values  map[string]float64 `json:"values"`
	Missing map[string]string  `json:"missing,omitempty"`
}

// Partial reports whether any gauge was omitted.
func (s Snapshot) Partial() bool {
	return len(s.Missing) > 0
}

// Snapshotter reads a fixed set of gauges; a failing gauge is omitted, never fatal
type Snapshotter struct {
	mu      sync.RWMutex
	gauges  []Gauge
	timeout time.Duration
}

// NewSnapshotter creates a snapshotter. timeout bounds each gauge read; zero disables it.
func NewSnapshotter(timeout time.Duration, gauges ...Gauge) *Snapshotter {
	s := &Snapshotter{timeout: timeout}
	s.Register(gauges...)
	return s
}

// Register adds gauges, replacing any with the same name.
func (s *Snapshotter) Register(gauges ...Gauge) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range gauges {
		replaced := false
		for i := range s.gauges {
			if s.gauges[i].Name == g.Name {
				s.gauges[i] = g
				replaced = true
				break
			}
		}
		if !replaced {
			s.gauges = append(s.gauges, g)
		}
	}
}

func (s *Snapshotter) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.gauges))
	for _, g := range s.gauges {
		names = append(names, g.Name)
	}
	sort.Strings(names)
	return names
}

func (s *Snapshotter) CollectAll(ctx context.Context) map[string]float64 {
	return s.Collect(ctx).Values
}

// Collect reads every gauge concurrently.
func (s *Snapshotter) Collect(ctx context.Context) Snapshot {
	s.mu.RLock()
	gauges := make([]Gauge, len(s.gauges))
	copy(gauges, s.gauges)
	s.mu.RUnlock()

	snap := Snapshot{
		TakenAt: time.Now(),
		Values:  make(map[string]float64, len(gauges)),
		Missing: make(map[string]string),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, g := range gauges {
		wg.Add(1)
		go func(g Gauge) {
			defer wg.Done()
			value, err := s.read(ctx, g)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				snap.Missing[g.Name] = err.Error()
				return
			}
			snap.Values[g.Name] = value
		}(g)
	}
	wg.Wait()

	if snap.Partial() {
		logrus.WithField("missing", snap.Missing).Warn("Metrics snapshot is partial")
	}
	return snap
}

func (s *Snapshotter) read(ctx context.Context, g Gauge) (value float64, err error) {
	if g.Read == nil {
		return 0, fmt.Errorf("gauge %s has no reader", g.Name)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	type reading struct {
		value float64
		err   error
	}
	done := make(chan reading, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reading{err: fmt.Errorf("gauge %s panicked: %v", g.Name, r)}
			}
		}()
		v, err := g.Read(ctx)
		done <- reading{value: v, err: err}
	}()

	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("gauge %s: %w", g.Name, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return 0, r.err
		}
		if math.IsNaN(r.value) || math.IsInf(r.value, 0) {
			return 0, fmt.Errorf("gauge %s returned %v", g.Name, r.value)
		}
		return r.value, nil
	}
}

// MultiSource merges several sources; later sources win on name clashes
type MultiSource []Source

func (m MultiSource) CollectAll(ctx context.Context) map[string]float64 {
	return m.Collect(ctx).Values
}

func (m MultiSource) Collect(ctx context.Context) Snapshot {
	snap := Snapshot{
		TakenAt: time.Now(),
		Values:  make(map[string]float64),
		Missing: make(map[string]string),
	}
	for _, src := range m {
		if detailed, ok := src.(DetailedSource); ok {
			part := detailed.Collect(ctx)
			for k, v := range part.Values {
				snap.Values[k] = v
				delete(snap.Missing, k)
			}
			for k, reason := range part.Missing {
				if _, have := snap.Values[k]; !have {
					snap.Missing[k] = reason
				}
			}
			continue
		}
		for k, v := range src.CollectAll(ctx) {
			snap.Values[k] = v
			delete(snap.Missing, k)
		}
	}
	return snap
}
