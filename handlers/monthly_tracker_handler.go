package handlers

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"habitTrackerAPI/internal/logger"
	"habitTrackerAPI/internal/session"
	"habitTrackerAPI/internal/types/grid"
	"habitTrackerAPI/middleware"
	"habitTrackerAPI/services"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const (
	TrackerPath       = "/monthly-tracker"
	TogglePath        = "/monthly-tracker/toggle"
	TrackerSocketPath = "/api/v1/monthly-tracker/ws"
	DailyTrackerPath  = "/"

	defaultSnapshotWait = 5 * time.Second
)

type trackerPage struct {
	Grid       grid.MonthGrid
	DailyPath  string
	TogglePath string
	SocketPath string
}

// MonthlyTrackerHandler serves the monthly grid over plain HTTP. Every request runs its
// own short lived view over the caller's session.
type MonthlyTrackerHandler struct {
	store        services.HabitStore
	logger       *zap.Logger
	landingPath  string
	snapshotWait time.Duration
	now          func() time.Time
}

func NewMonthlyTrackerHandler(store services.HabitStore, l *zap.Logger, landingPath string) *MonthlyTrackerHandler {
	if landingPath == "" {
		landingPath = services.DefaultLandingPath
	}
	return &MonthlyTrackerHandler{
		store:        store,
		logger:       logger.OrNop(l),
		landingPath:  landingPath,
		snapshotWait: defaultSnapshotWait,
		now:          time.Now,
	}
}

// redirectNavigator remembers where the view wanted to send the caller.
type redirectNavigator struct {
	mu   sync.Mutex
	path string
}

func (n *redirectNavigator) NavigateTo(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = path
}

func (n *redirectNavigator) Target() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path, n.path != ""
}

// openView activates a view for the request's session. It writes the response itself
// and returns nil when the caller was redirected or the habits could not be loaded.
func (h *MonthlyTrackerHandler) openView(w http.ResponseWriter, r *http.Request, redirect bool) *services.MonthlyGridView {
	s, _ := middleware.GetSession(r.Context())
	nav := &redirectNavigator{}

	// bounds both the subscribe inside Activate and the wait for the first snapshot;
	// the page is rendered from that snapshot, so the subscription may end with it
	ctx, cancel := context.WithTimeout(r.Context(), h.snapshotWait)
	defer cancel()

	view := services.NewMonthlyGridView(session.Static(s), h.store, nav,
		services.WithContext(ctx),
		services.WithClock(h.now),
		services.WithLogger(h.logger),
		services.WithLandingPath(h.landingPath),
	)
	view.Activate()

	if path, ok := nav.Target(); ok {
		view.Deactivate()
		if redirect {
			http.Redirect(w, r, path, http.StatusSeeOther)
		} else {
			respondWithError(w, http.StatusUnauthorized, "Authorization required")
		}
		return nil
	}

	if err := view.WaitForSnapshot(ctx); err != nil {
		view.Deactivate()
		h.logger.Error("Habits did not load", zap.String("user_id", s.UserID), zap.Error(err))
		respondWithError(w, http.StatusServiceUnavailable, "Habits are unavailable, try again later")
		return nil
	}
	return view
}

// ServePage renders the grid as HTML. Anonymous visitors are sent to the landing page.
func (h *MonthlyTrackerHandler) ServePage(w http.ResponseWriter, r *http.Request) {
	view := h.openView(w, r, true)
	if view == nil {
		return
	}
	defer view.Deactivate()

	page := trackerPage{
		Grid:       view.Grid(),
		DailyPath:  DailyTrackerPath,
		TogglePath: TogglePath,
		SocketPath: TrackerSocketPath,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, "monthly_tracker.html", page); err != nil {
		h.logger.Error("Template execution error", zap.Error(err))
	}
}

// ToggleForm handles the cell buttons of the HTML page and redirects back to the grid
// once the write has finished.
func (h *MonthlyTrackerHandler) ToggleForm(w http.ResponseWriter, r *http.Request) {
	habitID, day, ok := parseToggle(w, r.FormValue("habit_id"), r.FormValue("day"))
	if !ok {
		return
	}

	view := h.openView(w, r, true)
	if view == nil {
		return
	}
	defer view.Deactivate()

	if pending := view.Toggle(habitID, day); pending != nil {
		// failures are already logged by the view
		_ = pending.Wait(r.Context())
	}

	http.Redirect(w, r, TrackerPath, http.StatusSeeOther)
}

// GetGrid returns the caller's grid as JSON.
func (h *MonthlyTrackerHandler) GetGrid(w http.ResponseWriter, r *http.Request) {
	view := h.openView(w, r, false)
	if view == nil {
		return
	}
	defer view.Deactivate()

	respondWithJSON(w, http.StatusOK, view.Grid())
}

type toggleRequest struct {
	HabitID string `json:"habit_id"`
	Day     int    `json:"day"`
}

// Toggle queues a completion write. The response does not wait for the store: clients
// see the change in the next grid they fetch or receive over the socket.
func (h *MonthlyTrackerHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.HabitID == "" || req.Day < 1 {
		respondWithError(w, http.StatusBadRequest, "habit_id and day are required")
		return
	}

	view := h.openView(w, r, false)
	if view == nil {
		return
	}
	defer view.Deactivate()

	pending := view.Toggle(req.HabitID, req.Day)
	respondWithJSON(w, http.StatusAccepted, map[string]bool{"queued": pending != nil})
}

func parseToggle(w http.ResponseWriter, habitID, rawDay string) (string, int, bool) {
	if habitID == "" {
		respondWithError(w, http.StatusBadRequest, "habit_id is required")
		return "", 0, false
	}
	day, err := strconv.Atoi(rawDay)
	if err != nil || day < 1 {
		respondWithError(w, http.StatusBadRequest, "day must be a positive integer")
		return "", 0, false
	}
	return habitID, day, true
}
