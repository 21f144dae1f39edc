package services

import (
	"context"
	"errors"

	"habitTrackerAPI/internal/types/habit"
)

var ErrHabitNotFound = errors.New("habit not found")

// Unsubscribe releases a live habit subscription. It is safe to call more than once.
type Unsubscribe func()

// HabitStore is the document store holding each user's habit collection.
type HabitStore interface {
	// SubscribeHabits delivers the full collection for userID now and after every change,
	// until the returned Unsubscribe is called or ctx is done.
	SubscribeHabits(ctx context.Context, userID string, onSnapshot func(habit.Snapshot)) (Unsubscribe, error)
	// UpdateCompletion replaces the completion field of one existing habit.
	UpdateCompletion(ctx context.Context, userID, habitID string, completion habit.Completion) error
	ListHabits(ctx context.Context, userID string) (habit.Snapshot, error)
}

// Pinger is implemented by stores that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}
