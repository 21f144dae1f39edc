package services

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"habitTrackerAPI/internal/logger"
	"habitTrackerAPI/internal/types/habit"
)

const (
	usersCollection  = "users"
	habitsCollection = "habits"
	completionField  = "completion"
)

// FirestoreHabitStore reads and writes habits under users/{uid}/habits.
type FirestoreHabitStore struct {
	client *firestore.Client
	logger *zap.Logger
}

func NewFirestoreHabitStore(client *firestore.Client, l *zap.Logger) *FirestoreHabitStore {
	return &FirestoreHabitStore{client: client, logger: logger.OrNop(l)}
}

func (s *FirestoreHabitStore) habits(userID string) *firestore.CollectionRef {
	return s.client.Collection(usersCollection).Doc(userID).Collection(habitsCollection)
}

func (s *FirestoreHabitStore) ListHabits(ctx context.Context, userID string) (habit.Snapshot, error) {
	docs, err := s.habits(userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	return s.decode(docs), nil
}

func (s *FirestoreHabitStore) SubscribeHabits(ctx context.Context, userID string, onSnapshot func(habit.Snapshot)) (Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)
	it := s.habits(userID).Snapshots(ctx)

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Error("Habit snapshot listener stopped",
						zap.String("user_id", userID),
						zap.Error(err),
					)
				}
				return
			}

			docs, err := snap.Documents.GetAll()
			if err != nil {
				s.logger.Error("Failed to read habit snapshot",
					zap.String("user_id", userID),
					zap.Error(err),
				)
				continue
			}
			onSnapshot(s.decode(docs))
		}
	}()

	return Unsubscribe(cancel), nil
}

func (s *FirestoreHabitStore) UpdateCompletion(ctx context.Context, userID, habitID string, completion habit.Completion) error {
	_, err := s.habits(userID).Doc(habitID).Update(ctx, []firestore.Update{
		{Path: completionField, Value: completion.ToDocument()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrHabitNotFound
		}
		return fmt.Errorf("failed to update habit completion: %w", err)
	}
	return nil
}

// CreateHabit adds a habit document with an empty completion map.
func (s *FirestoreHabitStore) CreateHabit(ctx context.Context, userID, name string) (habit.Habit, error) {
	ref, _, err := s.habits(userID).Add(ctx, map[string]any{
		"name":          name,
		completionField: map[string]bool{},
	})
	if err != nil {
		return habit.Habit{}, fmt.Errorf("failed to create habit: %w", err)
	}
	return habit.Habit{ID: ref.ID, Name: name, Completion: habit.Completion{}}, nil
}

func (s *FirestoreHabitStore) Ping(ctx context.Context) error {
	if _, err := s.client.Collection(usersCollection).Limit(1).Documents(ctx).GetAll(); err != nil {
		return fmt.Errorf("firestore unavailable: %w", err)
	}
	return nil
}

func (s *FirestoreHabitStore) decode(docs []*firestore.DocumentSnapshot) habit.Snapshot {
	snap := make(habit.Snapshot, 0, len(docs))
	for _, doc := range docs {
		h, err := decodeHabit(doc.Ref.ID, doc.Data())
		if err != nil {
			s.logger.Warn("Skipping malformed completion keys",
				zap.String("habit_id", doc.Ref.ID),
				zap.Error(err),
			)
		}
		snap = append(snap, h)
	}
	return snap
}

// decodeHabit builds a Habit from document fields. Completion keys that are not day
// numbers are dropped and reported through the error; the habit is still usable.
func decodeHabit(id string, data map[string]any) (habit.Habit, error) {
	h := habit.Habit{ID: id, Completion: habit.Completion{}}
	h.Name, _ = data["name"].(string)

	raw, _ := data[completionField].(map[string]any)
	var errs []error
	for key, value := range raw {
		c, err := habit.CompletionFromDocument(map[string]any{key: value})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for day, done := range c {
			h.Completion[day] = done
		}
	}
	return h, errors.Join(errs...)
}
