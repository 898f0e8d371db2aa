package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bjarke-xyz/hire-me-maybe/internal/session"
	"github.com/gorilla/websocket"
)

type ClientID string // UUID

type WsClient struct {
	Conn *websocket.Conn
	ID   ClientID
	// SessionID is the browser session the client follows, empty for visitors.
	SessionID string
	// Messages holds at most one pending message; a newer one replaces it.
	Messages chan []byte
}

// WsEvent is a message for the clients of one browser session.
type WsEvent struct {
	SessionID string
	Msg       []byte
}

// WsBroker fans session changes out to the websockets of the browser
// session they belong to.
type WsBroker struct {
	// Events are pushed to this channel by the session relays
	Notifier chan WsEvent

	// New client connections
	newClients chan *WsClient

	// Closed client connections
	closingClients chan *WsClient

	// Client connections registry, only touched by Listen
	clients map[ClientID]*WsClient

	done <-chan struct{}
}

func newWsBroker(ctx context.Context) *WsBroker {
	return &WsBroker{
		done:           ctx.Done(),
		Notifier:       make(chan WsEvent, 1),
		newClients:     make(chan *WsClient),
		closingClients: make(chan *WsClient),
		clients:        make(map[ClientID]*WsClient),
	}
}

// Listen runs until the context the broker was created with ends.
// register reports false once the broker has stopped.
func (b *WsBroker) register(c *WsClient) bool {
	select {
	case b.newClients <- c:
		return true
	case <-b.done:
		return false
	}
}

func (b *WsBroker) unregister(c *WsClient) {
	select {
	case b.closingClients <- c:
	case <-b.done:
	}
}

func (b *WsBroker) Listen(logger *slog.Logger) {
	for {
		select {
		case <-b.done:
			for _, c := range b.clients {
				close(c.Messages)
			}
			return
		case c := <-b.newClients:
			b.clients[c.ID] = c
			logger.Info("Client added", "clients", len(b.clients))
		case c := <-b.closingClients:
			if _, ok := b.clients[c.ID]; ok {
				delete(b.clients, c.ID)
				close(c.Messages)
			}
			logger.Info("Removed client", "clients", len(b.clients))
		case event := <-b.Notifier:
			for _, c := range b.clients {
				if c.SessionID == event.SessionID {
					offer(c.Messages, event.Msg)
				}
			}
		}
	}
}

// offer queues msg, replacing a message the client has not picked up yet.
// Only the broker goroutine sends on the channel.
func offer(ch chan []byte, msg []byte) {
	select {
	case ch <- msg:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- msg
	}
}

// sessionMessage is what the browser receives on /ws/session.
type sessionMessage struct {
	Loading       bool   `json:"loading"`
	Authenticated bool   `json:"authenticated"`
	UID           string `json:"uid,omitempty"`
	Email         string `json:"email,omitempty"`
	Error         string `json:"error,omitempty"`
}

func newSessionMessage(s session.Session) sessionMessage {
	msg := sessionMessage{
		Loading:       s.Loading,
		Authenticated: s.Authenticated(),
		Error:         string(s.LastError),
	}
	if s.Identity != nil {
		msg.UID = s.Identity.UID
		msg.Email = s.Identity.Email
	}
	return msg
}

// relaySession pushes every change of one browser session to the broker
// until the session is closed.
func (s *server) relaySession(bs *browserSession) {
	for snap := range bs.store.Subscribe(bs.ctx) {
		msgBytes, err := json.Marshal(newSessionMessage(snap))
		if err != nil {
			s.logger.Error("failed to encode session message", "error", err)
			continue
		}
		select {
		case s.broker.Notifier <- WsEvent{SessionID: bs.id, Msg: msgBytes}:
		case <-bs.ctx.Done():
			return
		}
	}
}

const (
	wsIdHeader = "WS-ID"
)

const (
	readBuffSize = 2 << 10
	writeBuffSize
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  readBuffSize,
	WriteBufferSize: writeBuffSize,
	CheckOrigin: func(r *http.Request) bool {
		return r.Header.Get("Origin") == "" || sameOrigin(r)
	},
}
