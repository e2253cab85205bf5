// Package host provides scheduler backends for the engine. The memory
// backend holds registrations in process; platform integrations implement
// the same interface against a real wake-alarm facility.
package host

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rivercweiss/chime/internal/model"
)

// MemoryScheduler is an in-process host scheduler. Registrations live in a
// map keyed by host key, with no timers behind them. It backs dry runs
// and the daemon on platforms without a wake-alarm integration, and its
// injection hooks drive recovery in tests.
type MemoryScheduler struct {
	mu      sync.Mutex
	entries map[int32]registration

	exact bool

	// Failure injection. Decline makes Register return ok=false;
	// RegisterErr and QueryErr fail the respective calls outright.
	Decline     bool
	RegisterErr error
	QueryErr    error
}

type registration struct {
	alarmID string
	at      time.Time
}

// NewMemoryScheduler returns an empty scheduler. exact reports whether it
// claims exact-instant capability.
func NewMemoryScheduler(exact bool) *MemoryScheduler {
	return &MemoryScheduler{
		entries: make(map[int32]registration),
		exact:   exact,
	}
}

func (m *MemoryScheduler) Register(ctx context.Context, a model.Alarm) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RegisterErr != nil {
		return false, m.RegisterErr
	}
	if m.Decline {
		return false, nil
	}
	m.entries[a.HostKey] = registration{alarmID: a.ID, at: a.AlarmAt}
	slog.Debug("host registration", "key", a.HostKey, "alarm_id", a.ID, "at", a.AlarmAt)
	return true, nil
}

func (m *MemoryScheduler) Cancel(ctx context.Context, key int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryScheduler) IsRegistered(ctx context.Context, key int32) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.QueryErr != nil {
		return false, m.QueryErr
	}
	_, ok := m.entries[key]
	return ok, nil
}

func (m *MemoryScheduler) CanScheduleExactly(ctx context.Context) bool {
	return m.exact
}

// DropKey removes a registration without going through Cancel, simulating
// host state loss for drift exercises.
func (m *MemoryScheduler) DropKey(key int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Len returns the number of live registrations.
func (m *MemoryScheduler) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
