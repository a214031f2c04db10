package http

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"quiz-leaderboard/internal/app"
)

// WSFeed pushes leaderboard snapshots to connected dashboards on a fixed poll
// interval, so a dashboard can watch runs progress without hammering the REST
// endpoint.
type WSFeed struct {
	service  *app.Service
	upgrader websocket.Upgrader
	interval time.Duration
}

func NewWSFeed(service *app.Service, interval time.Duration) *WSFeed {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &WSFeed{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		interval: interval,
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades the connection and streams leaderboard snapshots until the
// client goes away.
func (f *WSFeed) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if !f.push(r, conn) {
		return
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !f.push(r, conn) {
				return
			}
		case <-closed:
			return
		}
	}
}

func (f *WSFeed) push(r *http.Request, conn *websocket.Conn) bool {
	rows, err := f.service.Leaderboard(r.Context())
	if err != nil {
		log.Printf("ws snapshot failed: %v", err)
		return true
	}
	msg := outboundMessage[leaderboardResponse]{
		Type: "leaderboard",
		Payload: leaderboardResponse{
			Submissions:    rows,
			TotalQuestions: f.service.TotalQuestions(),
		},
	}
	if err := conn.WriteJSON(msg); err != nil {
		return false
	}
	return true
}
