package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KovalDenys1/boardly/internal/database"
	"github.com/KovalDenys1/boardly/internal/models"
)

// memStore is an in-memory alert state store.
type memStore struct {
	mu     sync.Mutex
	states map[string]models.AlertState
	fail   bool
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]models.AlertState)}
}

func (m *memStore) GetAlertState(ctx context.Context, alertKey string) (*models.AlertState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("db down")
	}
	s, ok := m.states[alertKey]
	if !ok {
		return nil, database.ErrNotFound
	}
	copy := s
	return &copy, nil
}

func (m *memStore) UpsertAlertState(ctx context.Context, a *models.AlertState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("db down")
	}
	m.states[a.AlertKey] = *a
	return nil
}

// memNotifier records transitions.
type memNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *memNotifier) Notify(ctx context.Context, rule Rule, state *models.AlertState, status string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, rule.Key+":"+status)
}

func (n *memNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

func testRule() Rule {
	return Rule{
		Key: "move_apply_timeout", Sample: "move_apply_timeout",
		Aggregate: AggCount, Threshold: 3,
		Window: 5 * time.Minute, RepeatEvery: time.Hour,
	}
}

func TestTriggerAndResolve(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	notifier := &memNotifier{}
	e := NewEvaluator([]Rule{testRule()}, store, notifier, nil)

	now := time.Now()
	for i := 0; i < 4; i++ {
		e.Record("move_apply_timeout", 1)
	}
	e.EvaluateOnce(ctx, now)

	state, ok := e.State("move_apply_timeout")
	require.True(t, ok)
	assert.True(t, state.IsOpen)
	assert.Equal(t, 4.0, state.LastValue)
	assert.Equal(t, []string{"move_apply_timeout:triggered"}, notifier.all())
	assert.True(t, store.states["move_apply_timeout"].IsOpen, "state is persisted")

	// Invariant: open implies triggered-at >= resolved-at.
	assert.False(t, state.LastTriggeredAt.Before(state.LastResolvedAt))

	// The window drains: evaluating past it resolves the alert once.
	later := now.Add(10 * time.Minute)
	e.EvaluateOnce(ctx, later)
	e.EvaluateOnce(ctx, later.Add(time.Minute))

	state, _ = e.State("move_apply_timeout")
	assert.False(t, state.IsOpen)
	assert.Equal(t, []string{"move_apply_timeout:triggered", "move_apply_timeout:resolved"}, notifier.all())
}

func TestDebounceSuppressesRenotify(t *testing.T) {
	ctx := context.Background()
	notifier := &memNotifier{}
	e := NewEvaluator([]Rule{testRule()}, newMemStore(), notifier, nil)

	now := time.Now()
	for i := 0; i < 4; i++ {
		e.Record("move_apply_timeout", 1)
	}
	e.EvaluateOnce(ctx, now)
	require.Len(t, notifier.all(), 1)

	// Still breached minutes later: no re-notify inside RepeatEvery.
	for i := 0; i < 4; i++ {
		e.Record("move_apply_timeout", 1)
	}
	e.EvaluateOnce(ctx, now.Add(2*time.Minute))
	assert.Len(t, notifier.all(), 1)

	// Past the repeat budget the alert notifies again, fed by samples that
	// fall inside the shifted window.
	for i := 0; i < 4; i++ {
		e.recordAt("move_apply_timeout", 1, now.Add(2*time.Hour-time.Minute))
	}
	e.EvaluateOnce(ctx, now.Add(2*time.Hour))
	calls := notifier.all()
	assert.Len(t, calls, 2)
	assert.Equal(t, "move_apply_timeout:triggered", calls[1])
}

func TestDegradedModeKeepsEvaluating(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.fail = true
	notifier := &memNotifier{}
	e := NewEvaluator([]Rule{testRule()}, store, notifier, nil)

	for i := 0; i < 4; i++ {
		e.Record("move_apply_timeout", 1)
	}
	e.EvaluateOnce(ctx, time.Now())

	// Persistence is down but evaluation and notification still happen.
	state, ok := e.State("move_apply_timeout")
	require.True(t, ok)
	assert.True(t, state.IsOpen)
	assert.Len(t, notifier.all(), 1)
}

func TestAvgAggregation(t *testing.T) {
	ctx := context.Background()
	rule := Rule{
		Key: "move_apply_latency", Sample: "move_apply_ms",
		Aggregate: AggAvg, Threshold: 500,
		Window: 5 * time.Minute, RepeatEvery: time.Hour,
	}
	notifier := &memNotifier{}
	e := NewEvaluator([]Rule{rule}, nil, notifier, nil)

	e.Record("move_apply_ms", 100)
	e.Record("move_apply_ms", 200)
	e.EvaluateOnce(ctx, time.Now())
	_, ok := e.State(rule.Key)
	require.True(t, ok)
	assert.Empty(t, notifier.all(), "below threshold stays closed")

	e.Record("move_apply_ms", 2000)
	e.Record("move_apply_ms", 2000)
	e.Record("move_apply_ms", 2000)
	e.EvaluateOnce(ctx, time.Now())
	assert.Len(t, notifier.all(), 1)
}

func TestDefaultRulesCoverSpecSamples(t *testing.T) {
	keys := map[string]bool{}
	for _, r := range DefaultRules() {
		keys[r.Key] = true
	}
	assert.True(t, keys["move_apply_timeout"])
	assert.True(t, keys["auth_refresh_failures"])
	assert.True(t, keys["rejoin_timeouts"])
}
