package http

import (
	"net/http"
	"time"

	"github.com/atinyakov/SiteKeeper/internal/models"
	"github.com/atinyakov/SiteKeeper/internal/realtime"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingPeriod = 30 * time.Second
	pongWait   = 60 * time.Second
	writeWait  = 10 * time.Second
)

// Subscriber is the part of the realtime hub used by the RealtimeHandler.
type Subscriber interface {
	Subscribe(table models.Table, filter models.Filter) *realtime.Subscription
	Unsubscribe(sub *realtime.Subscription)
}

// RealtimeHandler upgrades GET /realtime/v1 to a websocket that streams
// models.Change values for one table and filter.
type RealtimeHandler struct {
	Hub Subscriber
	Log *zap.Logger

	upgrader websocket.Upgrader
}

// NewRealtimeHandler constructs a RealtimeHandler. Origins are not checked
// because every connection is already bearer-authenticated.
func NewRealtimeHandler(hub Subscriber, log *zap.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		Hub: hub,
		Log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Watch handles GET /realtime/v1?table=t&col=eq.v.
func (h *RealtimeHandler) Watch(w http.ResponseWriter, r *http.Request) {
	t := models.Table(r.URL.Query().Get("table"))
	schema, err := models.SchemaOf(t)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	filter, err := models.ParseFilter(r.URL.Query(), "table", "access_token")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := schema.ValidateFilter(filter); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := h.Hub.Subscribe(t, filter)
	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, sub, done)
	h.Hub.Unsubscribe(sub)
}

// readPump discards client frames and closes done when the peer goes away.
func (h *RealtimeHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.Log.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *RealtimeHandler) writePump(conn *websocket.Conn, sub *realtime.Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case change, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber too slow"))
				return
			}
			if err := conn.WriteJSON(change); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
