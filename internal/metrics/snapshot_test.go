package metrics

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(name string, v float64) Gauge {
	return Gauge{Name: name, Read: func(context.Context) (float64, error) { return v, nil }}
}

func TestSnapshotter_CollectAll(t *testing.T) {
	s := NewSnapshotter(0,
		constant("failure_rate", 2),
		constant("delivery_rate", 98.5),
	)

	values := s.CollectAll(context.Background())
	assert.Equal(t, map[string]float64{"failure_rate": 2, "delivery_rate": 98.5}, values)
	assert.Equal(t, []string{"delivery_rate", "failure_rate"}, s.Names())
}

func TestSnapshotter_OmitsFailingGauges(t *testing.T) {
	s := NewSnapshotter(50*time.Millisecond,
		constant("queue_depth", 120),
		Gauge{Name: "health_score", Read: func(context.Context) (float64, error) {
			return 0, errors.New("health service unreachable")
		}},
		Gauge{Name: "panicky", Read: func(context.Context) (float64, error) {
			panic("boom")
		}},
		Gauge{Name: "nan", Read: func(context.Context) (float64, error) {
			return math.NaN(), nil
		}},
		Gauge{Name: "slow", Read: func(ctx context.Context) (float64, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		}},
		Gauge{Name: "no_reader"},
	)

	snap := s.Collect(context.Background())
	assert.Equal(t, map[string]float64{"queue_depth": 120}, snap.Values)
	assert.True(t, snap.Partial())
	for _, name := range []string{"health_score", "panicky", "nan", "slow", "no_reader"} {
		assert.Contains(t, snap.Missing, name)
	}
}

func TestSnapshotter_RegisterReplaces(t *testing.T) {
	s := NewSnapshotter(0, constant("failure_rate", 1))
	s.Register(constant("failure_rate", 7), constant("error_rate", 3))

	values := s.CollectAll(context.Background())
	assert.Equal(t, 7.0, values["failure_rate"])
	assert.Len(t, values, 2)
}

func TestStaticSource(t *testing.T) {
	src := NewStaticSource(map[string]float64{"failure_rate": 2, "delivery_rate": 99})

	src.Fail("delivery_rate", errors.New("provider API down"))
	snap := src.Collect(context.Background())
	assert.Equal(t, map[string]float64{"failure_rate": 2}, snap.Values)
	assert.Contains(t, snap.Missing, "delivery_rate")

	src.Set("delivery_rate", 97)
	src.Set("failure_rate", 12)
	values := src.CollectAll(context.Background())
	assert.Equal(t, 97.0, values["delivery_rate"])
	assert.Equal(t, 12.0, values["failure_rate"])
}

func TestMultiSource_LaterWins(t *testing.T) {
	a := NewStaticSource(map[string]float64{"failure_rate": 1, "queue_depth": 10})
	b := NewStaticSource(map[string]float64{"failure_rate": 5})
	b.Fail("queue_depth", errors.New("down"))

	snap := MultiSource{a, b}.Collect(context.Background())
	require.Equal(t, 5.0, snap.Values["failure_rate"])
	// a already produced queue_depth, so b's failure does not mark it missing
	assert.Equal(t, 10.0, snap.Values["queue_depth"])
	assert.NotContains(t, snap.Missing, "queue_depth")
}
