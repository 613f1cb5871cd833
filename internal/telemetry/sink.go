package telemetry

import (
	"github.com/sirupsen/logrus"
)

// Fields carries arbitrary structured data on telemetry and log records.
type Fields map[string]interface{}

// Sink receives telemetry events and log lines from the realtime engine.
// Components take a Sink explicitly instead of reaching for globals.
type Sink interface {
	EmitTelemetry(event string, fields Fields)
	Log(level logrus.Level, msg string, fields Fields)
}

// NopSink discards everything. Useful as a default and in tests.
type NopSink struct{}

func (NopSink) EmitTelemetry(string, Fields)     {}
func (NopSink) Log(logrus.Level, string, Fields) {}

// LogrusSink writes telemetry events and log lines through a logrus logger.
type LogrusSink struct {
	Logger *logrus.Logger
}

// NewLogrusSink wraps logger in a Sink.
func NewLogrusSink(logger *logrus.Logger) *LogrusSink {
	return &LogrusSink{Logger: logger}
}

func (s *LogrusSink) EmitTelemetry(event string, fields Fields) {
	entry := s.Logger.WithField("telemetry", event)
	if fields != nil {
		entry = entry.WithFields(logrus.Fields(fields))
	}
	entry.Info("telemetry event")
}

func (s *LogrusSink) Log(level logrus.Level, msg string, fields Fields) {
	entry := logrus.NewEntry(s.Logger)
	if fields != nil {
		entry = entry.WithFields(logrus.Fields(fields))
	}
	entry.Log(level, msg)
}

// MultiSink fans out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) EmitTelemetry(event string, fields Fields) {
	for _, s := range m {
		s.EmitTelemetry(event, fields)
	}
}

func (m MultiSink) Log(level logrus.Level, msg string, fields Fields) {
	for _, s := range m {
		s.Log(level, msg, fields)
	}
}
