package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"habitTrackerAPI/internal/logger"
	"habitTrackerAPI/internal/session"
	"habitTrackerAPI/middleware"
	"habitTrackerAPI/services"
)

// TrackerSocketHandler keeps a live monthly grid open over a WebSocket.
type TrackerSocketHandler struct {
	store       services.HabitStore
	verifier    session.Verifier
	logger      *zap.Logger
	landingPath string
	now         func() time.Time

	allowedOrigins map[string]bool
	upgrader       websocket.Upgrader
}

// NewTrackerSocketHandler accepts upgrades from pages served by this host and from
// allowedOrigins (scheme://host[:port]).
func NewTrackerSocketHandler(store services.HabitStore, verifier session.Verifier, l *zap.Logger, landingPath string, allowedOrigins []string) *TrackerSocketHandler {
	if landingPath == "" {
		landingPath = services.DefaultLandingPath
	}
	h := &TrackerSocketHandler{
		store:          store,
		verifier:       verifier,
		logger:         logger.OrNop(l),
		landingPath:    landingPath,
		now:            time.Now,
		allowedOrigins: make(map[string]bool, len(allowedOrigins)),
	}
	for _, origin := range allowedOrigins {
		h.allowedOrigins[strings.ToLower(strings.TrimSuffix(origin, "/"))] = true
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin accepts same-host and allow-listed browser origins. The session cookie
// is sent with cross-site upgrades too.
func (h *TrackerSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// not a browser
		return true
	}

	u, err := url.Parse(origin)
	if err == nil && u.Host != "" && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	if h.allowedOrigins[strings.ToLower(origin)] {
		return true
	}

	h.logger.Warn("Rejected tracker socket from foreign origin",
		zap.String("origin", origin),
		zap.String("host", r.Host),
	)
	return false
}

// Connect upgrades the request and runs one view for the lifetime of the socket. The
// session starts as whatever the request proved and changes with auth/sign_out messages.
func (h *TrackerSocketHandler) Connect(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Could not upgrade connection", zap.Error(err))
		return
	}

	sessions := session.NewHub()
	if s, ok := middleware.GetSession(r.Context()); ok {
		sessions.SignIn(s)
	} else {
		sessions.SignOut()
	}

	client := services.NewTrackerClient(conn, sessions, h.verifier, h.logger)
	view := services.NewMonthlyGridView(sessions, h.store, client,
		services.WithContext(r.Context()),
		services.WithClock(h.now),
		services.WithLogger(h.logger),
		services.WithLandingPath(h.landingPath),
		services.WithChangeListener(client.PushGrid),
	)
	client.Attach(view)

	go client.WritePump()

	view.Activate()
	defer view.Deactivate()

	client.ReadPump()
}
