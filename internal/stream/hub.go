// Package stream fans board changes out to connected viewer sessions. The
// payload is an invalidation hint; viewers re-fetch the board for truth.
package stream

import (
	"sync"

	"github.com/shiftops/kanban/internal/models"
	"go.uber.org/zap"
)

const (
	ActionCreate           = "create"
	ActionUpdate           = "update"
	ActionDelete           = "delete"
	ActionComment          = "comment"
	ActionAttachment       = "attachment"
	ActionAttachmentDelete = "attachment_delete"
)

// Message is one board_update notification. Card is set for create/update;
// the other actions carry just the affected card id.
type Message struct {
	Action string       `json:"action"`
	Card   *models.Card `json:"card,omitempty"`
	CardID int64        `json:"card_id,omitempty"`
}

// Session is one connected viewer. Messages arrive on C until the session is
// unsubscribed; a session that stops draining loses messages, never blocks
// the publisher.
type Session struct {
	ch chan Message
}

func (s *Session) C() <-chan Message { return s.ch }

// Hub owns the set of live viewer sessions for the process lifetime.
type Hub struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[*Session]struct{})}
}

func (h *Hub) Subscribe() *Session {
	s := &Session{ch: make(chan Message, 16)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(s.ch)
		return s
	}
	h.sessions[s] = struct{}{}
	return s
}

func (h *Hub) Unsubscribe(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; !ok {
		return
	}
	delete(h.sessions, s)
	close(s.ch)
}

// Publish delivers msg to every session, best effort. A full session buffer
// drops the message for that session only.
func (h *Hub) Publish(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		select {
		case s.ch <- msg:
		default:
			zap.L().Debug("dropping board update for slow viewer", zap.String("action", msg.Action))
		}
	}
}

// Close drops all sessions; subsequent subscribes get an already-closed
// channel so stream handlers unwind during shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.sessions {
		delete(h.sessions, s)
		close(s.ch)
	}
}

// Len reports the number of connected sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}
