package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"taskhub/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is token-authenticated; origin checking is the proxy's job.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsEvent struct {
	Table        string      `json:"table"`
	Op           string      `json:"op"`
	Message      interface{} `json:"message,omitempty"`
	Notification interface{} `json:"notification,omitempty"`
}

// StreamFeed bridges one realtime subscription onto a WebSocket. The
// subscription handle is closed when the socket goes away, so a dead tab
// never keeps a feed channel alive.
func (h *Handler) StreamFeed(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	table := realtime.Table(r.URL.Query().Get("table"))
	switch table {
	case realtime.TableMessages, realtime.TableNotifications:
	default:
		http.Error(w, "table must be messages or notifications", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := h.svc.Feed().Subscribe(table, userID)
	defer sub.Close()

	// Reader goroutine only detects the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			out := wsEvent{Table: string(ev.Table), Op: string(ev.Op)}
			if ev.Message != nil {
				out.Message = ev.Message
			}
			if ev.Notification != nil {
				out.Notification = ev.Notification
			}
			if err := conn.WriteJSON(out); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
