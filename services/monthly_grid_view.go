package services

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"habitTrackerAPI/internal/logger"
	"habitTrackerAPI/internal/session"
	"habitTrackerAPI/internal/stream"
	"habitTrackerAPI/internal/types/grid"
	"habitTrackerAPI/internal/types/habit"
	"habitTrackerAPI/utils"
)

const (
	DefaultLandingPath  = "/landingpage"
	defaultWriteTimeout = 10 * time.Second
)

var errViewInactive = errors.New("view has never been activated")

// Navigator moves the client somewhere else. The view uses it to send anonymous
// visitors to the landing page.
type Navigator interface {
	NavigateTo(path string)
}

type NavigatorFunc func(path string)

func (f NavigatorFunc) NavigateTo(path string) { f(path) }

type ViewOption func(*MonthlyGridView)

func WithClock(now func() time.Time) ViewOption {
	return func(v *MonthlyGridView) { v.now = now }
}

func WithLogger(l *zap.Logger) ViewOption {
	return func(v *MonthlyGridView) { v.logger = logger.OrNop(l) }
}

func WithLandingPath(path string) ViewOption {
	return func(v *MonthlyGridView) { v.landingPath = path }
}

func WithWriteTimeout(d time.Duration) ViewOption {
	return func(v *MonthlyGridView) { v.writeTimeout = d }
}

// WithContext sets the parent context of every habit subscription the view opens.
// Cancelling it bounds a pending subscribe and releases the live one.
func WithContext(ctx context.Context) ViewOption {
	return func(v *MonthlyGridView) { v.ctx = ctx }
}

// WithChangeListener registers fn to receive the grid after every state change.
// Calls are serialized.
func WithChangeListener(fn func(grid.MonthGrid)) ViewOption {
	return func(v *MonthlyGridView) { v.onChange = fn }
}

// MonthlyGridView tracks one user's habits against the days of the current month.
//
// The view listens to a session source. While a user is signed in it holds a live
// subscription to that user's habit collection and replaces its habit list with every
// snapshot the store pushes. Toggling a cell never touches local state: the new
// completion map is written to the store and the change becomes visible only when the
// store pushes the next snapshot. A stale snapshot arriving after a write can therefore
// show the old value until the following snapshot; that race is accepted.
type MonthlyGridView struct {
	ctx          context.Context
	sessions     session.Source
	store        HabitStore
	nav          Navigator
	logger       *zap.Logger
	now          func() time.Time
	landingPath  string
	writeTimeout time.Duration
	onChange     func(grid.MonthGrid)

	notifyMu sync.Mutex

	mu          sync.Mutex
	active      bool
	generation  uint64
	session     session.Session
	habits      habit.Snapshot
	month       time.Time
	days        []int
	sessionSub  *stream.Subscription
	habitsUnsub Unsubscribe

	// closed once the first snapshot for the current session is applied
	loaded     chan struct{}
	loadedDone bool
}

func NewMonthlyGridView(sessions session.Source, store HabitStore, nav Navigator, opts ...ViewOption) *MonthlyGridView {
	v := &MonthlyGridView{
		ctx:          context.Background(),
		sessions:     sessions,
		store:        store,
		nav:          nav,
		logger:       zap.NewNop(),
		now:          time.Now,
		landingPath:  DefaultLandingPath,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Activate computes the day set for the current month and starts following the session.
// Calling it on an active view does nothing.
func (v *MonthlyGridView) Activate() {
	v.mu.Lock()
	if v.active {
		v.mu.Unlock()
		return
	}
	v.active = true
	v.resetLoaded()
	v.month = v.now()
	v.days = utils.MonthDays(v.month)
	v.mu.Unlock()

	activeGridViews.Inc()

	// the source may report the current session synchronously
	sub := v.sessions.Subscribe(v.onSession)

	v.mu.Lock()
	if !v.active {
		v.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	v.sessionSub = sub
	v.mu.Unlock()

	v.notify()
}

// Deactivate releases the session and habit subscriptions. Events delivered afterwards
// are dropped. Safe to call more than once.
func (v *MonthlyGridView) Deactivate() {
	v.mu.Lock()
	if !v.active {
		v.mu.Unlock()
		return
	}
	v.active = false
	v.generation++
	sessionSub, habitsUnsub := v.sessionSub, v.habitsUnsub
	v.sessionSub, v.habitsUnsub = nil, nil
	v.mu.Unlock()

	activeGridViews.Dec()
	sessionSub.Unsubscribe()
	if habitsUnsub != nil {
		habitsUnsub()
	}
}

func (v *MonthlyGridView) onSession(s session.Session) {
	v.mu.Lock()
	if !v.active {
		v.mu.Unlock()
		return
	}
	if s.IsAuthenticated() && s.UserID == v.session.UserID && v.habitsUnsub != nil {
		// same user, e.g. a refreshed token
		v.session = s
		v.mu.Unlock()
		return
	}

	v.generation++
	gen := v.generation
	prev := v.habitsUnsub
	v.habitsUnsub = nil
	v.session = s
	v.habits = nil
	v.resetLoaded()
	v.mu.Unlock()

	if prev != nil {
		prev()
	}

	if !s.IsAuthenticated() {
		v.logger.Info("No session, redirecting to landing page", zap.String("path", v.landingPath))
		v.notify()
		v.nav.NavigateTo(v.landingPath)
		return
	}

	v.logger.Debug("Subscribing to habits", zap.String("user_id", s.UserID))

	// ends with this subscription, whichever of session change or Deactivate comes first
	ctx, cancel := context.WithCancel(v.ctx)
	unsub, err := v.store.SubscribeHabits(ctx, s.UserID, func(snap habit.Snapshot) {
		v.onSnapshot(gen, snap)
	})
	if err != nil {
		cancel()
		v.logger.Error("Failed to subscribe to habits", zap.String("user_id", s.UserID), zap.Error(err))
		v.notify()
		return
	}
	release := func() {
		unsub()
		cancel()
	}

	v.mu.Lock()
	if !v.active || v.generation != gen {
		v.mu.Unlock()
		release()
		return
	}
	v.habitsUnsub = release
	v.mu.Unlock()

	v.notify()
}

func (v *MonthlyGridView) onSnapshot(gen uint64, snap habit.Snapshot) {
	v.mu.Lock()
	if !v.active || v.generation != gen {
		v.mu.Unlock()
		return
	}
	v.habits = snap.Clone()
	if !v.loadedDone {
		v.loadedDone = true
		close(v.loaded)
	}
	v.mu.Unlock()

	habitSnapshots.Inc()
	v.notify()
}

// Toggle flips the completion of one cell and writes the habit's new completion map to
// the store. It returns nil without contacting the store when nobody is signed in, the
// habit is not in the current snapshot or the day is outside the displayed month.
//
// Local state is left alone; the store's next snapshot carries the change. Write
// failures are logged and otherwise ignored.
func (v *MonthlyGridView) Toggle(habitID string, day int) *PendingWrite {
	v.mu.Lock()
	if !v.active || !v.session.IsAuthenticated() {
		v.mu.Unlock()
		completionToggles.WithLabelValues("no_session").Inc()
		return nil
	}
	if day < 1 || day > len(v.days) {
		v.mu.Unlock()
		completionToggles.WithLabelValues("bad_day").Inc()
		return nil
	}
	h, ok := v.habits.Find(habitID)
	if !ok {
		v.mu.Unlock()
		completionToggles.WithLabelValues("unknown_habit").Inc()
		return nil
	}
	userID := v.session.UserID
	next := h.Completion.Toggled(day)
	v.mu.Unlock()

	p := newPendingWrite()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), v.writeTimeout)
		defer cancel()

		err := v.store.UpdateCompletion(ctx, userID, habitID, next)
		if err != nil {
			completionToggles.WithLabelValues("write_failed").Inc()
			completionWriteFailures.Inc()
			v.logger.Error("Error updating habit completion",
				zap.String("user_id", userID),
				zap.String("habit_id", habitID),
				zap.Int("day", day),
				zap.Error(err),
			)
		} else {
			completionToggles.WithLabelValues("written").Inc()
		}
		p.finish(err)
	}()
	return p
}

// WaitForSnapshot blocks until the first snapshot for the current session has been
// applied, or ctx is done.
func (v *MonthlyGridView) WaitForSnapshot(ctx context.Context) error {
	v.mu.Lock()
	loaded := v.loaded
	v.mu.Unlock()
	if loaded == nil {
		return errViewInactive
	}

	select {
	case <-loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resetLoaded must be called with v.mu held.
func (v *MonthlyGridView) resetLoaded() {
	if v.loaded != nil && !v.loadedDone {
		return
	}
	v.loaded = make(chan struct{})
	v.loadedDone = false
}

// Session returns the session the view is currently following.
func (v *MonthlyGridView) Session() session.Session {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.session
}

// Habits returns a copy of the latest snapshot.
func (v *MonthlyGridView) Habits() habit.Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.habits.Clone()
}

func (v *MonthlyGridView) Days() []int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.days)
}

// Grid builds the render model: one row per habit in snapshot order, one cell per day.
func (v *MonthlyGridView) Grid() grid.MonthGrid {
	v.mu.Lock()
	defer v.mu.Unlock()

	g := grid.MonthGrid{
		Title: utils.MonthTitle(v.month),
		Year:  v.month.Year(),
		Month: int(v.month.Month()),
		Days:  slices.Clone(v.days),
		Rows:  make([]*grid.Row, 0, len(v.habits)),
	}
	for _, h := range v.habits {
		row := &grid.Row{
			HabitID: h.ID,
			Name:    h.Name,
			Cells:   make([]*grid.Cell, 0, len(v.days)),
		}
		for _, day := range v.days {
			row.Cells = append(row.Cells, &grid.Cell{Day: day, Complete: h.Completion.Done(day)})
		}
		g.Rows = append(g.Rows, row)
	}
	return g
}

func (v *MonthlyGridView) notify() {
	if v.onChange == nil {
		return
	}
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()

	v.mu.Lock()
	active := v.active
	v.mu.Unlock()
	if !active {
		return
	}
	v.onChange(v.Grid())
}

// PendingWrite reports the outcome of a completion write started by Toggle.
type PendingWrite struct {
	done chan struct{}
	err  error
}

func newPendingWrite() *PendingWrite {
	return &PendingWrite{done: make(chan struct{})}
}

func (p *PendingWrite) finish(err error) {
	p.err = err
	close(p.done)
}

func (p *PendingWrite) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the write finishes or ctx is done.
func (p *PendingWrite) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
