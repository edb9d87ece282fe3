package notify

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aonescu/chaosguard/internal/dsl"
)

type failingSink struct{}

func (failingSink) Log(dsl.Severity, string, map[string]interface{}) error {
	return errors.New("pager offline")
}

type panickingSink struct{}

func (panickingSink) Log(dsl.Severity, string, map[string]interface{}) error {
	panic("nil pointer in webhook client")
}

func TestLogSink_LevelBySeverity(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sink := NewLogSink(logger)

	require.NoError(t, sink.Log(dsl.Critical, "guardrail breached", map[string]interface{}{"experiment_id": "exp-1"}))
	require.NoError(t, sink.Log(dsl.Info, "experiment started", nil))

	require.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, logrus.ErrorLevel, hook.AllEntries()[0].Level)
	assert.Equal(t, "exp-1", hook.AllEntries()[0].Data["experiment_id"])
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
}

func TestDispatcher_SwallowsSinkFailures(t *testing.T) {
	channel := NewChannelSink(4)
	sub := channel.Subscribe()
	defer channel.Unsubscribe(sub)

	d := NewDispatcher(dsl.Warning, failingSink{}, panickingSink{}, channel)

	assert.NotPanics(t, func() {
		d.Notify(dsl.Critical, "abort", map[string]interface{}{"guardrail": "ban_failure_ceiling"})
	})
	d.Notify(dsl.Info, "below threshold", nil)

	require.Len(t, sub, 1)
	n := <-sub
	assert.Equal(t, dsl.Critical, n.Severity)
	assert.Equal(t, "abort", n.Message)
}

func TestChannelSink_DropsWhenFull(t *testing.T) {
	channel := NewChannelSink(1)
	sub := channel.Subscribe()

	require.NoError(t, channel.Log(dsl.Info, "first", nil))
	require.NoError(t, channel.Log(dsl.Info, "second", nil))

	assert.Len(t, sub, 1)
	assert.Equal(t, "first", (<-sub).Message)

	channel.Unsubscribe(sub)
	_, open := <-sub
	assert.False(t, open)
}

func TestDispatcher_Nil(t *testing.T) {
	var d *Dispatcher
	assert.NotPanics(t, func() { d.Notify(dsl.Critical, "x", nil) })
}
