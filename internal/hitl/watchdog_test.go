package hitl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	calls []string
}

func (n *recordingNotifier) NotifyStaleCase(_ context.Context, c Case, _ time.Duration) error {
	n.calls = append(n.calls, c.ID)
	return nil
}

func TestWatchdogAlertsOncePerStaleCase(t *testing.T) {
	store := NewMemoryStore()
	notifier := &recordingNotifier{}
	w := NewWatchdog(store, notifier, 15*time.Minute, nil)
	ctx := context.Background()

	_, _, err := store.Create(ctx, Case{
		ID:        "stale",
		SessionID: "s1",
		Priority:  PriorityHigh,
		CreatedAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
	_, _, err = store.Create(ctx, Case{
		ID:        "fresh",
		SessionID: "s2",
		Priority:  PriorityMedium,
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, w.Sweep(ctx))
	assert.Equal(t, []string{"stale"}, notifier.calls)

	// Second sweep does not re-alert.
	assert.Equal(t, 0, w.Sweep(ctx))
	assert.Equal(t, []string{"stale"}, notifier.calls)
}

func TestWatchdogForgetsResolvedCases(t *testing.T) {
	store := NewMemoryStore()
	notifier := &recordingNotifier{}
	w := NewWatchdog(store, notifier, 15*time.Minute, nil)
	ctx := context.Background()

	_, _, err := store.Create(ctx, Case{
		ID:        "stale",
		SessionID: "s1",
		Priority:  PriorityHigh,
		CreatedAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	require.Equal(t, 1, w.Sweep(ctx))
	_, err = store.Resolve(ctx, "stale", "done")
	require.NoError(t, err)

	assert.Equal(t, 0, w.Sweep(ctx))
	assert.Empty(t, w.notified)
}

func TestWatchdogWithoutNotifier(t *testing.T) {
	store := NewMemoryStore()
	w := NewWatchdog(store, nil, time.Minute, nil)
	ctx := context.Background()

	_, _, err := store.Create(ctx, Case{
		ID:        "stale",
		SessionID: "s1",
		Priority:  PriorityMedium,
		CreatedAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, w.Sweep(ctx))
}
