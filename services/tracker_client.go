package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"habitTrackerAPI/internal/session"
	"habitTrackerAPI/internal/types/grid"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	verifyTimeout = 5 * time.Second
)

const (
	ActionAuth     = "auth"
	ActionSignOut  = "sign_out"
	ActionToggle   = "toggle"
	ActionGrid     = "grid"
	ActionRedirect = "redirect"
)

// TrackerMessage is the envelope exchanged with the browser in both directions.
type TrackerMessage struct {
	Action  string          `json:"action"`
	Token   string          `json:"token,omitempty"`
	HabitID string          `json:"habit_id,omitempty"`
	Day     int             `json:"day,omitempty"`
	Path    string          `json:"path,omitempty"`
	Grid    *grid.MonthGrid `json:"grid,omitempty"`
}

// TrackerClient connects one WebSocket to one MonthlyGridView. Session changes arrive
// as auth/sign_out messages, grids and redirects go back out.
type TrackerClient struct {
	Conn     *websocket.Conn
	Send     chan []byte
	Sessions *session.Hub
	Verifier session.Verifier
	logger   *zap.Logger

	view      *MonthlyGridView
	done      chan struct{}
	closeOnce sync.Once
}

func NewTrackerClient(conn *websocket.Conn, sessions *session.Hub, verifier session.Verifier, logger *zap.Logger) *TrackerClient {
	return &TrackerClient{
		Conn:     conn,
		Send:     make(chan []byte, 16),
		Sessions: sessions,
		Verifier: verifier,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Attach binds the view whose toggles the client drives.
func (c *TrackerClient) Attach(view *MonthlyGridView) {
	c.view = view
}

// PushGrid queues a grid for the browser. Used as the view's change listener.
func (c *TrackerClient) PushGrid(g grid.MonthGrid) {
	c.push(TrackerMessage{Action: ActionGrid, Grid: &g})
}

// NavigateTo tells the browser to leave the page.
func (c *TrackerClient) NavigateTo(path string) {
	c.push(TrackerMessage{Action: ActionRedirect, Path: path})
}

func (c *TrackerClient) push(msg TrackerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Error marshalling tracker message", zap.Error(err))
		return
	}

	select {
	case c.Send <- data:
	case <-c.done:
	default:
		// a client this far behind will get the next full grid anyway
		c.logger.Warn("Tracker client send buffer full, dropping message", zap.String("action", msg.Action))
	}
}

// Close stops the pumps. WritePump sends the close frame and releases the socket.
func (c *TrackerClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Done is closed once either pump has stopped.
func (c *TrackerClient) Done() <-chan struct{} {
	return c.done
}

// ReadPump handles messages coming FROM the browser until the socket closes.
func (c *TrackerClient) ReadPump() {
	defer c.Close()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("Tracker socket closed", zap.Error(err))
			}
			return
		}

		var msg TrackerMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.Debug("Ignoring malformed tracker message", zap.Error(err))
			continue
		}
		c.handle(msg)
	}
}

func (c *TrackerClient) handle(msg TrackerMessage) {
	switch msg.Action {
	case ActionAuth:
		ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
		s, err := c.Verifier.Verify(ctx, msg.Token)
		cancel()
		if err != nil {
			c.logger.Info("Tracker socket token rejected", zap.Error(err))
			c.Sessions.SignOut()
			return
		}
		c.Sessions.SignIn(s)

	case ActionSignOut:
		c.Sessions.SignOut()

	case ActionToggle:
		if c.view != nil {
			c.view.Toggle(msg.HabitID, msg.Day)
		}

	default:
		c.logger.Debug("Unknown tracker action", zap.String("action", msg.Action))
	}
}

// WritePump handles messages going TO the browser.
func (c *TrackerClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		c.Conn.Close()
	}()

	for {
		select {
		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			// Heartbeat: keep connection alive
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
