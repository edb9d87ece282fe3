// Package notify delivers experiment notifications. Delivery failures never reach the caller.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aonescu/chaosguard/internal/dsl"
)

// Sink receives a notification
type Sink interface {
	Log(severity dsl.Severity, message string, context map[string]interface{}) error
}

// LogSink writes notifications through logrus
type LogSink struct {
	logger *logrus.Logger
}

func NewLogSink(logger *logrus.Logger) *LogSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Log(severity dsl.Severity, message string, context map[string]interface{}) error {
	entry := s.logger.WithFields(logrus.Fields(context)).WithField("severity", severity)
	switch severity {
	case dsl.Critical:
		entry.Error(message)
	case dsl.High, dsl.Warning:
		entry.Warn(message)
	default:
		entry.Info(message)
	}
	return nil
}

// Notification is one delivered message
type Notification struct {
	Severity dsl.Severity
	Message  string
	Context  map[string]interface{}
	SentAt   time.Time
}

// ChannelSink publishes notifications to subscribers.
// A subscriber with a full buffer misses the notification.
type ChannelSink struct {
	mu          sync.RWMutex
	subscribers map[chan Notification]struct{}
	bufferSize  int
}

func NewChannelSink(bufferSize int) *ChannelSink {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &ChannelSink{
		subscribers: make(map[chan Notification]struct{}),
		bufferSize:  bufferSize,
	}
}

func (c *ChannelSink) Subscribe() <-chan Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Notification, c.bufferSize)
	c.subscribers[ch] = struct{}{}
	return ch
}

func (c *ChannelSink) Unsubscribe(ch <-chan Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for sub := range c.subscribers {
		if sub == ch {
			delete(c.subscribers, sub)
			close(sub)
			return
		}
	}
}

func (c *ChannelSink) Log(severity dsl.Severity, message string, context map[string]interface{}) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := Notification{Severity: severity, Message: message, Context: context, SentAt: time.Now()}
	for ch := range c.subscribers {
		select {
		case ch <- n:
		default:
		}
	}
	return nil
}

// Dispatcher fans a notification out to sinks at or above a minimum severity.
type Dispatcher struct {
	sinks       []Sink
	minSeverity dsl.Severity
}

func NewDispatcher(minSeverity dsl.Severity, sinks ...Sink) *Dispatcher {
	if minSeverity == "" {
		minSeverity = dsl.Info
	}
	return &Dispatcher{sinks: sinks, minSeverity: minSeverity}
}

// Notify delivers to every sink. Errors and panics are logged and swallowed.
func (d *Dispatcher) Notify(severity dsl.Severity, message string, context map[string]interface{}) {
	if d == nil || !severity.AtLeast(d.minSeverity) {
		return
	}
	for _, sink := range d.sinks {
		if err := deliver(sink, severity, message, context); err != nil {
			logrus.WithError(err).WithField("severity", severity).Warn("Notification delivery failed")
		}
	}
}

func deliver(sink Sink, severity dsl.Severity, message string, context map[string]interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return sink.Log(severity, message, context)
}
