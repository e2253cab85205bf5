package host

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivercweiss/chime/internal/model"
)

func TestMemoryScheduler_RegisterCancel(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryScheduler(true)

	a := model.Alarm{ID: "a-1", HostKey: 7, AlarmAt: time.Now().Add(time.Hour)}
	ok, err := m.Register(ctx, a)
	require.NoError(t, err)
	require.True(t, ok)

	reg, err := m.IsRegistered(ctx, 7)
	require.NoError(t, err)
	assert.True(t, reg)
	assert.True(t, m.CanScheduleExactly(ctx))

	require.NoError(t, m.Cancel(ctx, 7))
	reg, err = m.IsRegistered(ctx, 7)
	require.NoError(t, err)
	assert.False(t, reg)
}

func TestMemoryScheduler_FailureInjection(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryScheduler(false)

	m.Decline = true
	ok, err := m.Register(ctx, model.Alarm{ID: "a-1", HostKey: 1})
	require.NoError(t, err)
	assert.False(t, ok)

	m.Decline = false
	m.RegisterErr = errors.New("boom")
	_, err = m.Register(ctx, model.Alarm{ID: "a-1", HostKey: 1})
	assert.Error(t, err)

	m.QueryErr = errors.New("boom")
	_, err = m.IsRegistered(ctx, 1)
	assert.Error(t, err)
	assert.False(t, m.CanScheduleExactly(ctx))
}

func TestMemoryScheduler_DropKey(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryScheduler(true)

	_, err := m.Register(ctx, model.Alarm{ID: "a-1", HostKey: 9})
	require.NoError(t, err)
	require.Equal(t, 1, m.Len())

	m.DropKey(9)
	assert.Zero(t, m.Len())
}
