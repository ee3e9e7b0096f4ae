// Package dashboard streams the audit history to connected dashboard clients
// over WebSocket.
package dashboard

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"kvconsole/internal/audit"
	"kvconsole/internal/constants"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  constants.DashboardWSReadBuffer,
	WriteBufferSize: constants.DashboardWSWriteBuffer,
}

// Message is one frame sent to a dashboard client.
type Message struct {
	Type string      `json:"type"`
	Data audit.Entry `json:"data"`
}

const (
	TypeReplay = "replay"
	TypeEntry  = "entry"
)

type Dashboard struct {
	history *audit.Log
	log     zerolog.Logger
	clients int64
}

func New(history *audit.Log, log zerolog.Logger) *Dashboard {
	return &Dashboard{
		history: history,
		log:     log.With().Str("component", "dashboard").Logger(),
	}
}

// Clients returns the number of connected stream clients.
func (d *Dashboard) Clients() int {
	return int(atomic.LoadInt64(&d.clients))
}

// ServeHTTP replays the retained history oldest first, then streams new
// entries. The connection_id query parameter narrows both to one session.
func (d *Dashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("connection_id")

	// Subscribe before the replay so nothing recorded in between is lost.
	entries, cancel := d.history.Subscribe(constants.AuditSubscriberBuffer)
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	atomic.AddInt64(&d.clients, 1)
	defer atomic.AddInt64(&d.clients, -1)

	replay := d.history.Query(sessionID)
	slices.Reverse(replay)
	seen := make(map[string]bool, len(replay))
	for _, e := range replay {
		seen[e.ID] = true
		if err := d.write(conn, Message{Type: TypeReplay, Data: e}); err != nil {
			return
		}
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(constants.DashboardPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			deadline := time.Now().Add(constants.DashboardWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case e, ok := <-entries:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(constants.DashboardWriteTimeout))
				return
			}
			if seen[e.ID] || (sessionID != "" && e.SessionID != sessionID) {
				continue
			}
			if err := d.write(conn, Message{Type: TypeEntry, Data: e}); err != nil {
				return
			}
		}
	}
}

func (d *Dashboard) write(conn *websocket.Conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(constants.DashboardWriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		d.log.Debug().Err(err).Msg("dashboard client write failed")
		return err
	}
	return nil
}
