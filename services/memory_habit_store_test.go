package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitTrackerAPI/internal/types/habit"
)

func TestMemoryHabitStoreSubscribeDeliversCurrentAndChanges(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryHabitStore(nil)
	h, err := store.CreateHabit(ctx, "u1", "Exercise")
	require.NoError(t, err)
	require.NotEmpty(t, h.ID)

	var snaps []habit.Snapshot
	unsub, err := store.SubscribeHabits(ctx, "u1", func(s habit.Snapshot) { snaps = append(snaps, s) })
	require.NoError(t, err)
	defer unsub()

	require.Len(t, snaps, 1)
	assert.Equal(t, "Exercise", snaps[0][0].Name)

	require.NoError(t, store.UpdateCompletion(ctx, "u1", h.ID, habit.Completion{4: true}))
	require.Len(t, snaps, 2)
	assert.Equal(t, habit.Completion{4: true}, snaps[1][0].Completion)
}

func TestMemoryHabitStoreUpdateUnknownHabit(t *testing.T) {
	store := NewMemoryHabitStore(nil)

	err := store.UpdateCompletion(context.Background(), "u1", "missing", habit.Completion{1: true})
	assert.ErrorIs(t, err, ErrHabitNotFound)
}

func TestMemoryHabitStoreKeepsUsersApart(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryHabitStore(nil)
	_, err := store.CreateHabit(ctx, "u1", "Exercise")
	require.NoError(t, err)

	other, err := store.ListHabits(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemoryHabitStoreUnsubscribeOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := NewMemoryHabitStore(nil)

	calls := 0
	_, err := store.SubscribeHabits(ctx, "u1", func(habit.Snapshot) { calls++ })
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	cancel()
	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.feeds["u1"].Len() == 0
	}, time.Second, 10*time.Millisecond)

	_, err = store.CreateHabit(context.Background(), "u1", "Read")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestMemoryHabitStoreDeleteHabit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryHabitStore(nil)
	a, _ := store.CreateHabit(ctx, "u1", "A")
	b, _ := store.CreateHabit(ctx, "u1", "B")

	require.NoError(t, store.DeleteHabit(ctx, "u1", a.ID))
	assert.ErrorIs(t, store.DeleteHabit(ctx, "u1", a.ID), ErrHabitNotFound)

	habits, err := store.ListHabits(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, habits, 1)
	assert.Equal(t, b.ID, habits[0].ID)
}

func TestMemoryHabitStoreFailWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryHabitStore(nil)
	h, _ := store.CreateHabit(ctx, "u1", "A")

	store.FailWrites(assert.AnError)
	assert.ErrorIs(t, store.UpdateCompletion(ctx, "u1", h.ID, habit.Completion{1: true}), assert.AnError)

	store.FailWrites(nil)
	assert.NoError(t, store.UpdateCompletion(ctx, "u1", h.ID, habit.Completion{1: true}))
}
