package alerts

import (
	"github.com/sirupsen/logrus"

	"github.com/KovalDenys1/boardly/internal/telemetry"
)

// SampleSink bridges the telemetry stream into the evaluator: events whose
// name matches a watched sample are recorded as samples. Composed into the
// process MultiSink so emitters need no direct evaluator dependency.
type SampleSink struct {
	evaluator *Evaluator
	watched   map[string]bool
}

// NewSampleSink watches the given event names. With none given it watches
// every sample the evaluator's rules reference.
func NewSampleSink(evaluator *Evaluator, events ...string) *SampleSink {
	watched := make(map[string]bool, len(events))
	for _, ev := range events {
		watched[ev] = true
	}
	if len(events) == 0 {
		for _, rule := range evaluator.rules {
			watched[rule.Sample] = true
		}
	}
	return &SampleSink{evaluator: evaluator, watched: watched}
}

func (s *SampleSink) EmitTelemetry(event string, fields telemetry.Fields) {
	if !s.watched[event] {
		return
	}
	value := 1.0
	if fields != nil {
		if v, ok := fields["value"].(float64); ok {
			value = v
		}
	}
	s.evaluator.Record(event, value)
}

func (s *SampleSink) Log(logrus.Level, string, telemetry.Fields) {}
