package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rivercweiss/chime/internal/model"
	"github.com/rivercweiss/chime/internal/testutil"
)

// Fixed test instant: 2026-08-28 10:00 UTC.
var testNow = time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

var errBoom = errors.New("boom")

// fakeEventSource serves a fixed window of events.
type fakeEventSource struct {
	events []model.Event
	err    error
}

func (s *fakeEventSource) EventsInWindow(ctx context.Context, now time.Time, horizon time.Duration) ([]model.Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.events, nil
}

func (s *fakeEventSource) CalendarNames(ctx context.Context) (map[string]string, error) {
	return map[string]string{"work": "Work", "personal": "Personal"}, nil
}

// fakeRuleStore serves a fixed rule set.
type fakeRuleStore struct {
	rules []model.Rule
	err   error
}

func (s *fakeRuleStore) EnabledValidRules(ctx context.Context) ([]model.Rule, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rules, nil
}

// fakeAlarmStore is an in-memory AlarmStore with per-op error injection.
type fakeAlarmStore struct {
	mu     sync.Mutex
	rows   map[string]model.Alarm
	failOp string // "insert", "update", "delete", "all", "active", "get"
}

func newFakeAlarmStore() *fakeAlarmStore {
	return &fakeAlarmStore{rows: make(map[string]model.Alarm)}
}

func (s *fakeAlarmStore) fail(op string) error {
	if s.failOp == op {
		return fmt.Errorf("%s: %w", op, errBoom)
	}
	return nil
}

func (s *fakeAlarmStore) Get(ctx context.Context, id string) (model.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("get"); err != nil {
		return model.Alarm{}, err
	}
	a, ok := s.rows[id]
	if !ok {
		return model.Alarm{}, fmt.Errorf("alarm %s not found", id)
	}
	return a, nil
}

func (s *fakeAlarmStore) Insert(ctx context.Context, a model.Alarm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("insert"); err != nil {
		return err
	}
	s.rows[a.ID] = a
	return nil
}

func (s *fakeAlarmStore) Update(ctx context.Context, a model.Alarm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("update"); err != nil {
		return err
	}
	if _, ok := s.rows[a.ID]; !ok {
		return fmt.Errorf("alarm %s not found", a.ID)
	}
	s.rows[a.ID] = a
	return nil
}

func (s *fakeAlarmStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("delete"); err != nil {
		return err
	}
	delete(s.rows, id)
	return nil
}

func (s *fakeAlarmStore) All(ctx context.Context) ([]model.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("all"); err != nil {
		return nil, err
	}
	out := make([]model.Alarm, 0, len(s.rows))
	for _, a := range s.rows {
		out = append(out, a)
	}
	return out, nil
}

func (s *fakeAlarmStore) Active(ctx context.Context, now time.Time) ([]model.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("active"); err != nil {
		return nil, err
	}
	var out []model.Alarm
	for _, a := range s.rows {
		if !a.Dismissed && a.EventStart.After(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeAlarmStore) ByEventID(ctx context.Context, eventID string) ([]model.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Alarm
	for _, a := range s.rows {
		if a.EventID == eventID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeAlarmStore) byPair(eventID, ruleID string) (model.Alarm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.rows {
		if a.EventID == eventID && a.RuleID == ruleID {
			return a, true
		}
	}
	return model.Alarm{}, false
}

func (s *fakeAlarmStore) dismiss(id string) {
	s.mu.Lock()
	a := s.rows[id]
	a.Dismissed = true
	s.rows[id] = a
	s.mu.Unlock()
}

func (s *fakeAlarmStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// fakeHost records registrations and can decline, error, or silently drop
// keys to simulate an unreliable host facility.
type fakeHost struct {
	mu          sync.Mutex
	registered  map[int32]model.Alarm
	decline     bool
	registerErr error
	queryErr    error
	exact       bool
	registers   int
	onRegister  func()
}

func newFakeHost() *fakeHost {
	return &fakeHost{registered: make(map[int32]model.Alarm), exact: true}
}

func (h *fakeHost) Register(ctx context.Context, a model.Alarm) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.registers++
	if h.onRegister != nil {
		h.onRegister()
	}
	if h.registerErr != nil {
		return false, h.registerErr
	}
	if h.decline {
		return false, nil
	}
	h.registered[a.HostKey] = a
	return true, nil
}

func (h *fakeHost) Cancel(ctx context.Context, key int32) error {
	h.mu.Lock()
	delete(h.registered, key)
	h.mu.Unlock()
	return nil
}

func (h *fakeHost) IsRegistered(ctx context.Context, key int32) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.queryErr != nil {
		return false, h.queryErr
	}
	_, ok := h.registered[key]
	return ok, nil
}

func (h *fakeHost) CanScheduleExactly(ctx context.Context) bool { return h.exact }

// drop simulates the host silently losing a registration.
func (h *fakeHost) drop(key int32) {
	h.mu.Lock()
	delete(h.registered, key)
	h.mu.Unlock()
}

func (h *fakeHost) registeredCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.registered)
}

// testEnv bundles an engine with its fakes at the fixed test instant.
type testEnv struct {
	engine *Engine
	clock  *testutil.FakeClock
	events *fakeEventSource
	rules  *fakeRuleStore
	store  *fakeAlarmStore
	host   *fakeHost
}

func newTestEnv(t interface{ Fatal(...any) }, opts ...Option) *testEnv {
	env := &testEnv{
		clock:  testutil.NewFakeClock(testNow),
		events: &fakeEventSource{},
		rules:  &fakeRuleStore{},
		store:  newFakeAlarmStore(),
		host:   newFakeHost(),
	}
	opts = append([]Option{
		WithClock(env.clock),
		// The fake clock never advances on its own, so disable the
		// debounce and cooldown windows unless a test re-enables them.
		WithDebounce(0),
		WithRecoveryTracker(NewRecoveryTracker(3, 60*time.Second, time.Nanosecond, 30*time.Minute)),
	}, opts...)

	eng, err := New(env.store, env.events, env.rules, env.host, opts...)
	if err != nil {
		t.Fatal(err)
	}
	env.engine = eng
	return env
}

func timedEvent(id, title string, start time.Time) model.Event {
	return model.Event{
		ID:           id,
		Title:        title,
		Start:        start,
		End:          start.Add(time.Hour),
		CalendarID:   "work",
		LastModified: 1,
		Timezone:     "UTC",
	}
}

func substringRule(id, pattern string, lead time.Duration) model.Rule {
	return model.Rule{
		ID:       id,
		Name:     id,
		Pattern:  pattern,
		Kind:     model.DetectPatternKind(pattern),
		LeadTime: lead,
		Enabled:  true,
	}
}
