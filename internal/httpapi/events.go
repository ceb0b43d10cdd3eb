package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 25 * time.Second
)

// handleEventsWS streams committed manager events as JSON text frames until
// the client disconnects. Client frames are read only to observe closes.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, unsubscribe := s.manager.Subscribe()
	defer unsubscribe()

	if s.metrics != nil {
		s.metrics.Subscribers.Inc()
		defer s.metrics.Subscribers.Dec()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer cancel()
		conn.SetReadLimit(4096)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		})
		for {
			msgType, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.countWS("inbound", msgType)
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

writeLoop:
	for {
		select {
		case <-ctx.Done():
			break writeLoop
		case evt, ok := <-events:
			if !ok {
				break writeLoop
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				break writeLoop
			}
			if s.metrics != nil {
				s.metrics.WSMessages.WithLabelValues("outbound", string(evt.Type)).Inc()
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				break writeLoop
			}
		}
	}

	cancel()
	_ = conn.Close()
	<-readerDone
}

func (s *Server) countWS(direction string, msgType int) {
	if s.metrics == nil {
		return
	}
	label := "binary"
	if msgType == websocket.TextMessage {
		label = "text"
	}
	s.metrics.WSMessages.WithLabelValues(direction, label).Inc()
}
