package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaiso/mlpipe/internal/tracker"
)

const (
	// wsBuffer — буфер событий одного WebSocket клиента.
	wsBuffer = 64

	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// StatusWS отдаёт статус pipeline через WebSocket: сначала текущий снимок,
// затем status_update на каждое изменение и new_log на каждую запись журнала.
// GET /api/v1/status/ws
func (h *Handler) StatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту.
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := h.tracker.Subscribe(wsBuffer)
	defer h.tracker.Unsubscribe(sub)

	logger := h.logger.With("remote_addr", r.RemoteAddr)
	logger.Debug("status subscriber connected")

	closed := make(chan struct{})
	go readPump(conn, closed)

	snapshot := h.tracker.Snapshot()
	if err := writeMessage(conn, StatusMessage{Type: string(tracker.EventStatus), Data: snapshot}); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			logger.Debug("status subscriber disconnected")
			return

		case ev, ok := <-sub.C():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(wsWriteWait))
				return
			}
			if err := writeMessage(conn, eventMessage(ev)); err != nil {
				logger.Debug("status subscriber write failed", "error", err)
				return
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func eventMessage(ev tracker.Event) StatusMessage {
	if ev.Type == tracker.EventLog {
		return StatusMessage{Type: string(ev.Type), Data: ev.Log}
	}
	return StatusMessage{Type: string(ev.Type), Data: ev.Status}
}

func writeMessage(conn *websocket.Conn, msg StatusMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(msg)
}

// readPump читает входящие кадры, чтобы обрабатывались pong и close.
// Сообщения клиента игнорируются.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
