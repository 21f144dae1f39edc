package services

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitTrackerAPI/internal/types/habit"
)

func TestDecodeHabit(t *testing.T) {
	h, err := decodeHabit("h1", map[string]any{
		"name": "Exercise",
		"completion": map[string]any{
			"3": true,
			"4": false,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, habit.Habit{
		ID:         "h1",
		Name:       "Exercise",
		Completion: habit.Completion{3: true, 4: false},
	}, h)
}

func TestDecodeHabitWithoutCompletion(t *testing.T) {
	h, err := decodeHabit("h2", map[string]any{"name": "Read"})
	require.NoError(t, err)

	assert.Equal(t, "Read", h.Name)
	assert.Empty(t, h.Completion)
	assert.False(t, h.Completion.Done(1))
}

func TestDecodeHabitDropsBadKeys(t *testing.T) {
	h, err := decodeHabit("h3", map[string]any{
		"name":       "Meditate",
		"completion": map[string]any{"5": true, "today": true},
	})
	assert.Error(t, err)
	assert.Equal(t, habit.Completion{5: true}, h.Completion)
}

// setupEmulatorStore connects to the Firestore emulator and skips the test when
// FIRESTORE_EMULATOR_HOST is unset.
func setupEmulatorStore(t *testing.T) (*FirestoreHabitStore, *firestore.Client, string) {
	t.Helper()

	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	ctx := context.Background()
	client, err := firestore.NewClient(ctx, "habit-tracker-test")
	require.NoError(t, err)

	userID := "test_" + uuid.NewString()
	t.Cleanup(func() {
		docs, err := client.Collection(usersCollection).Doc(userID).Collection(habitsCollection).Documents(context.Background()).GetAll()
		if err == nil {
			for _, doc := range docs {
				_, _ = doc.Ref.Delete(context.Background())
			}
		}
		client.Close()
	})

	// nil logger must be usable
	return NewFirestoreHabitStore(client, nil), client, userID
}

func TestFirestoreHabitStoreUpdateCompletion(t *testing.T) {
	store, client, userID := setupEmulatorStore(t)
	ctx := context.Background()

	h, err := store.CreateHabit(ctx, userID, "Exercise")
	require.NoError(t, err)

	require.NoError(t, store.UpdateCompletion(ctx, userID, h.ID, habit.Completion{3: true, 5: false}))

	// stored under users/{uid}/habits with decimal string day keys
	doc, err := client.Doc("users/" + userID + "/habits/" + h.ID).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Exercise", doc.Data()["name"])
	assert.Equal(t, map[string]any{"3": true, "5": false}, doc.Data()["completion"])

	habits, err := store.ListHabits(ctx, userID)
	require.NoError(t, err)
	require.Len(t, habits, 1)
	assert.Equal(t, habit.Completion{3: true, 5: false}, habits[0].Completion)
}

func TestFirestoreHabitStoreUpdateMissingHabit(t *testing.T) {
	store, _, userID := setupEmulatorStore(t)

	err := store.UpdateCompletion(context.Background(), userID, "missing", habit.Completion{1: true})
	assert.ErrorIs(t, err, ErrHabitNotFound)
}

func TestFirestoreHabitStoreSubscribeHabits(t *testing.T) {
	store, _, userID := setupEmulatorStore(t)
	ctx := context.Background()

	h, err := store.CreateHabit(ctx, userID, "Read")
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		last habit.Snapshot
	)
	unsub, err := store.SubscribeHabits(ctx, userID, func(s habit.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		last = s
	})
	require.NoError(t, err)
	defer unsub()

	latest := func() habit.Snapshot {
		mu.Lock()
		defer mu.Unlock()
		return last
	}

	assert.Eventually(t, func() bool {
		s := latest()
		return len(s) == 1 && s[0].ID == h.ID
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, store.UpdateCompletion(ctx, userID, h.ID, habit.Completion{9: true}))

	assert.Eventually(t, func() bool {
		s := latest()
		return len(s) == 1 && s[0].Completion.Done(9)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNewFirestoreHabitStoreNilLogger(t *testing.T) {
	store := NewFirestoreHabitStore(nil, nil)
	require.NotNil(t, store.logger)
	assert.NotPanics(t, func() { store.logger.Error("Habit snapshot listener stopped") })
}
