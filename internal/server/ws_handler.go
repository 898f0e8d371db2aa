package server

import (
	"net/http"
	"net/url"

	"github.com/bjarke-xyz/hire-me-maybe/internal/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// handleWsSession streams the browser session's changes, starting with the
// current session. Visitors without a session get a single anonymous message.
func (s *server) handleWsSession(w http.ResponseWriter, r *http.Request) {
	clientId := uuid.NewString()
	h := http.Header{}
	h.Add(wsIdHeader, clientId)
	conn, err := upgrader.Upgrade(w, r, h)
	if err != nil {
		s.logger.Error("Error while upgrading connection", "error", err)
		return
	}
	defer conn.Close()

	client := &WsClient{
		Conn:     conn,
		ID:       ClientID(clientId),
		Messages: make(chan []byte, 1),
	}
	bs := s.sessions.lookup(r)
	if bs != nil {
		client.SessionID = bs.id
	}
	if !s.broker.register(client) {
		return
	}
	if s.collector != nil {
		s.collector.WsClientConnected()
	}
	// Remove this client from the map of connected clients
	// when this handler exits.
	defer func() {
		s.broker.unregister(client)
		if s.collector != nil {
			s.collector.WsClientDisconnected()
		}
	}()

	// read after registering so no later change is missed
	snap := session.Session{}
	if bs != nil {
		snap = bs.store.Snapshot()
	}
	if err := conn.WriteJSON(newSessionMessage(snap)); err != nil {
		s.logger.Error("failed to write ws msg", "error", err)
		return
	}

	go func() {
		for msgBytes := range client.Messages {
			err := conn.WriteMessage(websocket.TextMessage, msgBytes)
			if err != nil {
				s.logger.Error("failed to write ws msg", "error", err)
				break
			}
		}
	}()

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Error("error reading ws msg", "error", err)
			}
			break
		}
	}
}

func sameOrigin(r *http.Request) bool {
	origin, err := url.Parse(r.Header.Get("Origin"))
	if err != nil {
		return false
	}
	return origin.Host == r.Host
}
