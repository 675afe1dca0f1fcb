package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"scribe/internal/jobs"
	"scribe/internal/logging"
)

const (
	eventWriteWait  = 10 * time.Second
	eventPongWait   = 60 * time.Second
	eventPingPeriod = (eventPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleEvents streams jobs.Event values for one job over a websocket. The
// first message is the current state. The server sends a normal close once
// the job reaches a terminal status or is deleted.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	events, unsubscribe, err := s.manager.Store().Subscribe(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		s.logger.Debug("websocket upgrade failed", logging.String(logging.FieldJobID, id), logging.Error(err))
		return
	}
	defer conn.Close()

	logger := logging.WithContext(r.Context(), s.logger).With(logging.String(logging.FieldJobID, id))
	logger.Debug("event stream opened")

	// The reader only services control frames and notices client closes.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(eventPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(eventPingPeriod)
	defer ticker.Stop()

	var last jobs.Event
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				s.closeStream(conn, last)
				logger.Debug("event stream finished", logging.String("status", string(last.Status)))
				return
			}
			last = evt
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteJSON(evt); err != nil {
				logger.Debug("event stream write failed", logging.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteWait)); err != nil {
				return
			}
		case <-closed:
			logger.Debug("event stream closed by client")
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) closeStream(conn *websocket.Conn, last jobs.Event) {
	reason := "job finished"
	if !last.Status.Terminal() {
		reason = "job removed"
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(eventWriteWait))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.logger.Debug("websocket close failed", logging.Error(err))
	}
}
