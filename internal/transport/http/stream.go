package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	maxInbound = 512
)

func (a *api) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     a.originAllowed,
	}
}

// originAllowed applies the CORS origin list to websocket upgrades. Requests
// without an Origin header come from non-browser clients.
func (a *api) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range a.opts.CORSOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Scheme+"://"+u.Host) {
			return true
		}
	}
	return false
}

// stream pushes the caller's events over a websocket until either side
// closes. Clients only send pongs and close frames.
func (a *api) stream(w http.ResponseWriter, r *http.Request) {
	bus := a.svc.Bus()
	if bus == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	user := caller(r)

	ctx := r.Context()
	// Subscribe first so nothing published during the handshake is lost.
	sub, err := bus.Subscribe(ctx, user)
	if err != nil {
		writeError(w, r, "subscribe events", err)
		return
	}
	defer sub.Close()

	up := a.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", logAttrs(r, "error", err)...)
		return
	}
	defer conn.Close()
	slog.Info("event stream opened", logAttrs(r)...)

	pongWait := a.opts.PingInterval * 2
	conn.SetReadLimit(maxInbound)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(a.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			slog.Info("event stream closed by client", logAttrs(r)...)
			return
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				slog.Warn("event write failed", logAttrs(r, "error", err)...)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
