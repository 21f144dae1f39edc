// Package session models the authentication state a tracker view reacts to and the
// verifiers that turn identity provider tokens into that state.
package session

import (
	"context"
	"errors"

	"habitTrackerAPI/internal/stream"
)

var (
	ErrNoToken      = errors.New("no session token")
	ErrInvalidToken = errors.New("invalid session token")
)

// Session is either anonymous or authenticated as a single user.
type Session struct {
	UserID   string `json:"user_id,omitempty"`
	Provider string `json:"provider,omitempty"`
}

func Anonymous() Session {
	return Session{}
}

func Authenticated(userID, provider string) Session {
	return Session{UserID: userID, Provider: provider}
}

func (s Session) IsAuthenticated() bool {
	return s.UserID != ""
}

// Source notifies subscribers of session changes. Implementations report the current
// session to a new subscriber right away when one is known.
type Source interface {
	Subscribe(fn func(Session)) *stream.Subscription
}

// Verifier checks an identity provider token and returns the session it proves.
type Verifier interface {
	Verify(ctx context.Context, token string) (Session, error)
}

// Hub is a Source driven by explicit sign-in and sign-out calls.
type Hub struct {
	changes *stream.Stream[Session]
}

func NewHub() *Hub {
	return &Hub{changes: stream.New[Session]()}
}

// Static returns a Hub that already holds s.
func Static(s Session) *Hub {
	h := NewHub()
	h.changes.Publish(s)
	return h
}

func (h *Hub) Subscribe(fn func(Session)) *stream.Subscription {
	return h.changes.Subscribe(fn)
}

func (h *Hub) SignIn(s Session) {
	if !s.IsAuthenticated() {
		h.SignOut()
		return
	}
	h.changes.Publish(s)
}

func (h *Hub) SignOut() {
	h.changes.Publish(Anonymous())
}

// Current returns the last session published, anonymous if none.
func (h *Hub) Current() Session {
	s, _ := h.changes.Current()
	return s
}
