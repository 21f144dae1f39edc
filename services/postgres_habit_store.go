package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"habitTrackerAPI/internal/logger"
	"habitTrackerAPI/internal/stream"
	"habitTrackerAPI/internal/types/habit"
)

// habitsChannel carries the user id whose habits changed.
const habitsChannel = "habits_changed"

const habitsSchema = `
CREATE TABLE IF NOT EXISTS habits (
	id         UUID PRIMARY KEY,
	user_id    TEXT NOT NULL,
	name       TEXT NOT NULL,
	completion JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_habits_user_created ON habits (user_id, created_at);
`

const (
	reloadTimeout      = 5 * time.Second
	listenerMinBackoff = time.Second
	listenerMaxBackoff = 30 * time.Second
)

type userFeed struct {
	snapshots *stream.Stream[habit.Snapshot]
	refs      int
}

// PostgresHabitStore keeps habits in Postgres and pushes snapshots with LISTEN/NOTIFY.
type PostgresHabitStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger

	mu    sync.Mutex
	feeds map[string]*userFeed

	// serializes snapshot reads with their publication so feeds never go backwards
	publishMu sync.Mutex

	listenMu     sync.Mutex
	stopListener context.CancelFunc
	listenerDone chan struct{}
}

func NewPostgresHabitStore(db *pgxpool.Pool, l *zap.Logger) *PostgresHabitStore {
	return &PostgresHabitStore{
		db:     db,
		logger: logger.OrNop(l),
		feeds:  make(map[string]*userFeed),
	}
}

func (s *PostgresHabitStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, habitsSchema); err != nil {
		return fmt.Errorf("failed to create habits schema: %w", err)
	}
	return nil
}

func (s *PostgresHabitStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresHabitStore) ListHabits(ctx context.Context, userID string) (habit.Snapshot, error) {
	query := `
	SELECT id, name, completion
	FROM habits
	WHERE user_id = $1
	ORDER BY created_at, id
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	defer rows.Close()

	snap := habit.Snapshot{}
	for rows.Next() {
		var (
			h   habit.Habit
			doc map[string]any
		)
		if err := rows.Scan(&h.ID, &h.Name, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan habit: %w", err)
		}

		h.Completion, err = habit.CompletionFromDocument(doc)
		if err != nil {
			s.logger.Warn("Ignoring malformed completion", zap.String("habit_id", h.ID), zap.Error(err))
			h.Completion = habit.Completion{}
		}
		snap = append(snap, h)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *PostgresHabitStore) CreateHabit(ctx context.Context, userID, name string) (habit.Habit, error) {
	h := habit.Habit{ID: uuid.NewString(), Name: name, Completion: habit.Completion{}}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return habit.Habit{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO habits (id, user_id, name, completion) VALUES ($1, $2, $3, '{}'::jsonb)`,
		h.ID, userID, name,
	)
	if err != nil {
		return habit.Habit{}, fmt.Errorf("failed to insert habit: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, habitsChannel, userID); err != nil {
		return habit.Habit{}, fmt.Errorf("failed to notify habit change: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return habit.Habit{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return h, nil
}

func (s *PostgresHabitStore) UpdateCompletion(ctx context.Context, userID, habitID string, completion habit.Completion) error {
	habitUUID, err := uuid.Parse(habitID)
	if err != nil {
		return ErrHabitNotFound
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE habits SET completion = $1 WHERE user_id = $2 AND id = $3`,
		completion.ToDocument(), userID, habitUUID,
	)
	if err != nil {
		return fmt.Errorf("failed to update habit completion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrHabitNotFound
	}

	// delivered on commit, so listeners never read the pre-update row
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, habitsChannel, userID); err != nil {
		return fmt.Errorf("failed to notify habit change: %w", err)
	}

	return tx.Commit(ctx)
}

// SubscribeHabits delivers the user's habits now and after every change. All
// subscriptions share one listener connection held outside the pool.
func (s *PostgresHabitStore) SubscribeHabits(ctx context.Context, userID string, onSnapshot func(habit.Snapshot)) (Unsubscribe, error) {
	if err := s.ensureListener(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	feed, ok := s.feeds[userID]
	if !ok {
		feed = &userFeed{snapshots: stream.New[habit.Snapshot]()}
		s.feeds[userID] = feed
	}
	feed.refs++
	s.mu.Unlock()

	var once sync.Once
	var sub *stream.Subscription
	release := func() {
		once.Do(func() {
			sub.Unsubscribe()
			s.mu.Lock()
			defer s.mu.Unlock()
			feed.refs--
			if feed.refs == 0 && s.feeds[userID] == feed {
				delete(s.feeds, userID)
			}
		})
	}

	if _, loaded := feed.snapshots.Current(); !loaded {
		// LISTEN is already active, so a change racing this read is reloaded after it
		s.publishMu.Lock()
		_, loaded = feed.snapshots.Current()
		var err error
		if !loaded {
			listCtx, cancel := context.WithTimeout(ctx, reloadTimeout)
			var snap habit.Snapshot
			if snap, err = s.ListHabits(listCtx, userID); err == nil {
				feed.snapshots.Publish(snap)
			}
			cancel()
		}
		s.publishMu.Unlock()
		if err != nil {
			release()
			return nil, err
		}
	}

	sub = feed.snapshots.Subscribe(func(snap habit.Snapshot) {
		onSnapshot(snap.Clone())
	})

	stop := context.AfterFunc(ctx, release)
	return func() {
		stop()
		release()
	}, nil
}

// Close stops the shared listener. The pool is closed by its owner.
func (s *PostgresHabitStore) Close() {
	s.listenMu.Lock()
	cancel, done := s.stopListener, s.listenerDone
	s.stopListener, s.listenerDone = nil, nil
	s.listenMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// ensureListener opens the listener connection on first use, bounded by ctx.
func (s *PostgresHabitStore) ensureListener(ctx context.Context) error {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	if s.stopListener != nil {
		return nil
	}

	conn, err := s.connectListener(ctx)
	if err != nil {
		return err
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	s.stopListener = cancel
	s.listenerDone = make(chan struct{})
	go s.listen(listenCtx, conn, s.listenerDone)
	return nil
}

func (s *PostgresHabitStore) connectListener(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.ConnectConfig(ctx, s.db.Config().ConnConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open listener connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+habitsChannel); err != nil {
		conn.Close(context.Background())
		return nil, fmt.Errorf("failed to listen for habit changes: %w", err)
	}
	return conn, nil
}

// listen fans notifications out to the subscribed users and reconnects when the
// connection drops.
func (s *PostgresHabitStore) listen(ctx context.Context, conn *pgx.Conn, done chan struct{}) {
	defer close(done)

	backoff := listenerMinBackoff
	for {
		err := s.drain(ctx, conn)
		conn.Close(context.Background())
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("Habit listener disconnected", zap.Error(err))

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}

			conn, err = s.connectListener(ctx)
			if err == nil {
				break
			}
			s.logger.Warn("Habit listener reconnect failed", zap.Duration("backoff", backoff), zap.Error(err))
			backoff = min(backoff*2, listenerMaxBackoff)
		}
		backoff = listenerMinBackoff

		// changes made while disconnected were never announced
		s.reloadAll(ctx)
	}
}

func (s *PostgresHabitStore) drain(ctx context.Context, conn *pgx.Conn) error {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		s.reload(ctx, n.Payload)
	}
}

func (s *PostgresHabitStore) reloadAll(ctx context.Context) {
	s.mu.Lock()
	users := make([]string, 0, len(s.feeds))
	for userID := range s.feeds {
		users = append(users, userID)
	}
	s.mu.Unlock()

	for _, userID := range users {
		s.reload(ctx, userID)
	}
}

// reload publishes a fresh snapshot to the user's feed, if anyone is subscribed.
func (s *PostgresHabitStore) reload(ctx context.Context, userID string) {
	s.mu.Lock()
	feed := s.feeds[userID]
	s.mu.Unlock()
	if feed == nil {
		return
	}

	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	reloadCtx, cancel := context.WithTimeout(ctx, reloadTimeout)
	defer cancel()

	snap, err := s.ListHabits(reloadCtx, userID)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("Failed to reload habits", zap.String("user_id", userID), zap.Error(err))
		}
		return
	}
	feed.snapshots.Publish(snap)
}
