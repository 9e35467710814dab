package api

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"SignalPulse/internal/domain/models"
	"SignalPulse/internal/service/dispatcher"
	xhttp "SignalPulse/pkg/http"
	xlogger "SignalPulse/pkg/logger"
	"SignalPulse/pkg/util"
)

// Stream upgrades to a websocket and forwards dispatcher events as JSON
// frames until either side goes away. Without an instruments parameter an
// owner receives the instruments of its enabled alert subscriptions.
func (h *Handler) Stream(c echo.Context) error {
	req := &models.StreamRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	filter := dispatcher.Filter{Owner: req.Owner, Instruments: util.SplitCSV(req.Instruments)}
	if len(filter.Instruments) == 0 && req.Owner != "" {
		// owner's enabled alert subscriptions at connect time; none means all
		filter.Instruments = h.alerts.WatchedInstruments(req.Owner)
	}
	for _, k := range util.SplitCSV(req.Kinds) {
		filter.Kinds = append(filter.Kinds, models.EventKind(k))
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		h.log.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	sub := h.hub.Subscribe(filter)
	log := h.log.With(xlogger.String("subscriber", sub.ID()), xlogger.String("owner", req.Owner))
	log.Info("subscriber connected", xlogger.Strings("instruments", filter.Instruments))

	defer func() {
		h.hub.Unsubscribe(sub)
		_ = conn.Close()
		log.Info("subscriber disconnected", xlogger.Int64("dropped", sub.Dropped()))
	}()

	gone := make(chan struct{})
	go h.readPump(conn, gone)

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(h.writeWait))
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug("subscriber write failed", xlogger.Error(err))
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeWait)); err != nil {
				return nil
			}
		}
	}
}

// readPump discards client frames and keeps the read deadline fresh on pong.
func (h *Handler) readPump(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
	wait := 2 * h.pingInterval
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wait))
	}
}
