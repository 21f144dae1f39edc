package services

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"habitTrackerAPI/internal/logger"
	"habitTrackerAPI/internal/stream"
	"habitTrackerAPI/internal/types/habit"
)

// MemoryHabitStore keeps habit collections in process. Used in development mode and tests.
type MemoryHabitStore struct {
	// pubMu keeps snapshot reads and their publication in order
	pubMu    sync.Mutex
	mu       sync.Mutex
	habits   map[string]habit.Snapshot
	feeds    map[string]*stream.Stream[habit.Snapshot]
	writeErr error
	logger   *zap.Logger
}

func NewMemoryHabitStore(l *zap.Logger) *MemoryHabitStore {
	return &MemoryHabitStore{
		habits: make(map[string]habit.Snapshot),
		feeds:  make(map[string]*stream.Stream[habit.Snapshot]),
		logger: logger.OrNop(l),
	}
}

// CreateHabit appends a new habit to the user's collection.
func (s *MemoryHabitStore) CreateHabit(ctx context.Context, userID, name string) (habit.Habit, error) {
	h := habit.Habit{ID: uuid.NewString(), Name: name, Completion: habit.Completion{}}
	return h, s.PutHabit(ctx, userID, h)
}

// PutHabit inserts h, or replaces the habit with the same id in place.
func (s *MemoryHabitStore) PutHabit(_ context.Context, userID string, h habit.Habit) error {
	if h.ID == "" {
		return fmt.Errorf("habit id is required")
	}

	s.mu.Lock()
	habits := s.habits[userID]
	replaced := false
	for i := range habits {
		if habits[i].ID == h.ID {
			habits[i] = h.Clone()
			replaced = true
			break
		}
	}
	if !replaced {
		habits = append(habits, h.Clone())
	}
	s.habits[userID] = habits
	s.mu.Unlock()

	s.publish(userID)
	return nil
}

func (s *MemoryHabitStore) DeleteHabit(_ context.Context, userID, habitID string) error {
	s.mu.Lock()
	habits := s.habits[userID]
	idx := -1
	for i := range habits {
		if habits[i].ID == habitID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrHabitNotFound
	}
	s.habits[userID] = append(habits[:idx:idx], habits[idx+1:]...)
	s.mu.Unlock()

	s.publish(userID)
	return nil
}

// FailWrites makes every following UpdateCompletion return err. Pass nil to recover.
func (s *MemoryHabitStore) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

func (s *MemoryHabitStore) ListHabits(_ context.Context, userID string) (habit.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.habits[userID].Clone(), nil
}

func (s *MemoryHabitStore) UpdateCompletion(ctx context.Context, userID, habitID string, completion habit.Completion) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.writeErr != nil {
		err := s.writeErr
		s.mu.Unlock()
		return err
	}

	habits := s.habits[userID]
	found := false
	for i := range habits {
		if habits[i].ID == habitID {
			habits[i].Completion = maps.Clone(completion)
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return ErrHabitNotFound
	}

	s.logger.Debug("Habit completion updated",
		zap.String("user_id", userID),
		zap.String("habit_id", habitID),
	)
	s.publish(userID)
	return nil
}

func (s *MemoryHabitStore) SubscribeHabits(ctx context.Context, userID string, onSnapshot func(habit.Snapshot)) (Unsubscribe, error) {
	sub := s.feed(userID).Subscribe(func(snap habit.Snapshot) {
		onSnapshot(snap.Clone())
	})

	stop := context.AfterFunc(ctx, sub.Unsubscribe)
	return func() {
		stop()
		sub.Unsubscribe()
	}, nil
}

func (s *MemoryHabitStore) Ping(context.Context) error {
	return nil
}

// feed returns the user's snapshot stream, creating it with the current contents.
func (s *MemoryHabitStore) feed(userID string) *stream.Stream[habit.Snapshot] {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	feed, ok := s.feeds[userID]
	if !ok {
		feed = stream.New[habit.Snapshot]()
		s.feeds[userID] = feed
	}
	snap := s.habits[userID].Clone()
	s.mu.Unlock()

	if !ok {
		feed.Publish(snap)
	}
	return feed
}

func (s *MemoryHabitStore) publish(userID string) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	feed, ok := s.feeds[userID]
	snap := s.habits[userID].Clone()
	s.mu.Unlock()

	if ok {
		feed.Publish(snap)
	}
}
