// Package alerts implements the reliability evaluator: rolling-window
// aggregation of timing samples, threshold rules with debounce and resolve
// semantics, and a persisted per-rule state machine.
package alerts

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/KovalDenys1/boardly/internal/database"
	"github.com/KovalDenys1/boardly/internal/models"
	"github.com/KovalDenys1/boardly/internal/telemetry"
)

// Aggregation selects how a rule folds its window of samples.
type Aggregation string

const (
	AggCount Aggregation = "count"
	AggAvg   Aggregation = "avg"
	AggMax   Aggregation = "max"
)

// Rule is one reliability condition over a sample stream.
type Rule struct {
	Key         string
	Sample      string
	Aggregate   Aggregation
	Threshold   float64
	Window      time.Duration
	RepeatEvery time.Duration
	Description string
}

// DefaultWindow and DefaultRepeat are the rolling window and re-notify
// debounce applied when a rule does not override them.
const (
	DefaultWindow = 5 * time.Minute
	DefaultRepeat = 60 * time.Minute
)

// DefaultRules covers the guarantees the realtime loop emits samples for.
func DefaultRules() []Rule {
	return []Rule{
		{
			Key: "move_apply_timeout", Sample: "move_apply_timeout",
			Aggregate: AggCount, Threshold: 5,
			Window: DefaultWindow, RepeatEvery: DefaultRepeat,
			Description: "move apply latency exceeded its target repeatedly",
		},
		{
			Key: "move_apply_latency", Sample: "move_apply_ms",
			Aggregate: AggAvg, Threshold: 500,
			Window: DefaultWindow, RepeatEvery: DefaultRepeat,
			Description: "average move apply latency is above 500ms",
		},
		{
			Key: "auth_refresh_failures", Sample: "auth_refresh_failure",
			Aggregate: AggCount, Threshold: 10,
			Window: DefaultWindow, RepeatEvery: DefaultRepeat,
			Description: "clients are failing to refresh credentials",
		},
		{
			Key: "rejoin_timeouts", Sample: "rejoin_timeout",
			Aggregate: AggCount, Threshold: 3,
			Window: DefaultWindow, RepeatEvery: DefaultRepeat,
			Description: "clients are timing out while rejoining lobbies",
		},
	}
}

// Store is the persistence slice the evaluator needs. Nil means degraded,
// stateless evaluation.
type Store interface {
	GetAlertState(ctx context.Context, alertKey string) (*models.AlertState, error)
	UpsertAlertState(ctx context.Context, a *models.AlertState) error
}

// Notifier delivers triggered/resolved notifications.
type Notifier interface {
	Notify(ctx context.Context, rule Rule, state *models.AlertState, status string)
}

type point struct {
	at    time.Time
	value float64
}

type window struct {
	mu     sync.Mutex
	points []point
}

func (w *window) add(p point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, p)
}

// fold prunes points older than cutoff and aggregates the rest.
func (w *window) fold(agg Aggregation, cutoff time.Time) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.points[:0]
	for _, p := range w.points {
		if p.at.After(cutoff) {
			kept = append(kept, p)
		}
	}
	w.points = kept

	switch agg {
	case AggCount:
		return float64(len(w.points))
	case AggAvg:
		if len(w.points) == 0 {
			return 0
		}
		sum := 0.0
		for _, p := range w.points {
			sum += p.value
		}
		return sum / float64(len(w.points))
	case AggMax:
		max := 0.0
		for _, p := range w.points {
			if p.value > max {
				max = p.value
			}
		}
		return max
	}
	return 0
}

// Evaluator aggregates samples and drives the per-rule alert state machines.
// It never crashes on persistence failure; it degrades to stateless mode and
// keeps evaluating.
type Evaluator struct {
	rules    []Rule
	store    Store
	notifier Notifier
	sink     telemetry.Sink

	mu      sync.Mutex
	windows map[string]*window
	states  map[string]*models.AlertState

	interval time.Duration
	degraded bool
}

// NewEvaluator builds an evaluator. store and notifier may be nil.
func NewEvaluator(rules []Rule, store Store, notifier Notifier, sink telemetry.Sink) *Evaluator {
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	return &Evaluator{
		rules:    rules,
		store:    store,
		notifier: notifier,
		sink:     sink,
		windows:  make(map[string]*window),
		states:   make(map[string]*models.AlertState),
		interval: 30 * time.Second,
	}
}

// Record adds one sample to its stream.
func (e *Evaluator) Record(sample string, value float64) {
	e.recordAt(sample, value, time.Now())
}

func (e *Evaluator) recordAt(sample string, value float64, at time.Time) {
	e.mu.Lock()
	w, ok := e.windows[sample]
	if !ok {
		w = &window{}
		e.windows[sample] = w
	}
	e.mu.Unlock()
	w.add(point{at: at, value: value})
}

// State returns the current state of a rule (tests, introspection).
func (e *Evaluator) State(alertKey string) (*models.AlertState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.states[alertKey]
	return s, ok
}

// EvaluateOnce runs every rule against its window at now.
func (e *Evaluator) EvaluateOnce(ctx context.Context, now time.Time) {
	for _, rule := range e.rules {
		e.evaluateRule(ctx, rule, now)
	}
}

func (e *Evaluator) evaluateRule(ctx context.Context, rule Rule, now time.Time) {
	e.mu.Lock()
	w, ok := e.windows[rule.Sample]
	e.mu.Unlock()
	value := 0.0
	if ok {
		value = w.fold(rule.Aggregate, now.Add(-rule.Window))
	}

	state := e.loadState(ctx, rule.Key)
	breached := value >= rule.Threshold

	switch {
	case breached && !state.IsOpen:
		state.IsOpen = true
		state.LastValue = value
		state.LastTriggeredAt = now
		state.LastNotifiedAt = now
		e.notify(ctx, rule, state, "triggered")
		e.saveState(ctx, state)

	case breached && state.IsOpen:
		state.LastValue = value
		if now.Sub(state.LastNotifiedAt) >= rule.RepeatEvery {
			state.LastNotifiedAt = now
			e.notify(ctx, rule, state, "triggered")
		}
		e.saveState(ctx, state)

	case !breached && state.IsOpen:
		state.IsOpen = false
		state.LastValue = value
		state.LastResolvedAt = now
		e.notify(ctx, rule, state, "resolved")
		e.saveState(ctx, state)
	}
}

func (e *Evaluator) loadState(ctx context.Context, alertKey string) *models.AlertState {
	e.mu.Lock()
	if s, ok := e.states[alertKey]; ok {
		e.mu.Unlock()
		return s
	}
	e.mu.Unlock()

	s := &models.AlertState{AlertKey: alertKey}
	if e.store != nil && !e.degraded {
		stored, err := e.store.GetAlertState(ctx, alertKey)
		switch {
		case err == nil:
			s = stored
		case errors.Is(err, database.ErrNotFound):
			// fresh rule
		default:
			e.enterDegraded(err)
		}
	}

	e.mu.Lock()
	e.states[alertKey] = s
	e.mu.Unlock()
	return s
}

func (e *Evaluator) saveState(ctx context.Context, s *models.AlertState) {
	if e.store == nil || e.degraded {
		return
	}
	if err := e.store.UpsertAlertState(ctx, s); err != nil {
		e.enterDegraded(err)
	}
}

// enterDegraded switches to stateless evaluation after a persistence error.
func (e *Evaluator) enterDegraded(err error) {
	e.mu.Lock()
	already := e.degraded
	e.degraded = true
	e.mu.Unlock()
	if !already {
		e.sink.Log(logrus.WarnLevel, "alert persistence unavailable; evaluating stateless", telemetry.Fields{
			"error": err.Error(),
		})
	}
}

func (e *Evaluator) notify(ctx context.Context, rule Rule, state *models.AlertState, status string) {
	e.sink.EmitTelemetry("alert_"+status, telemetry.Fields{
		"alertKey": rule.Key,
		"value":    state.LastValue,
	})
	if e.notifier != nil {
		e.notifier.Notify(ctx, rule, state, status)
	}
}

// Run evaluates on a fixed cadence until ctx is done.
func (e *Evaluator) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.EvaluateOnce(ctx, time.Now())
		}
	}
}
