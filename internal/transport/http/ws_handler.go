package http

import (
	"log"
	"net/http"
	"time"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// handleLive upgrades an authenticated admin to a websocket and streams session events.
// The client sends nothing; reads only detect the close.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events, cancel := s.svc.Feed.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(msg any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("ws write error: %v", err)
			return false
		}
		return true
	}

	if !write(outboundMessage[map[string]int]{Type: "ready", Payload: map[string]int{"subscribers": s.svc.Feed.Subscribers()}}) {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !write(ev) {
				return
			}
		case <-ping.C:
			if !write(outboundMessage[any]{Type: "ping"}) {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
