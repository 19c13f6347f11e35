package api

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/estoca-ai/estoca-worker/internal/clients"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/worker"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10 // must be < wsPongWait
	wsMaxMsgSize = 32 * 1024
)

var pageUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Browsers always send Origin on upgrade; tooling may omit it.
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// pageConn serializes writes from the registry and the ping loop.
type pageConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *pageConn) WriteJSON(v any) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return p.conn.WriteJSON(v)
}

func (p *pageConn) ping() error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return p.conn.WriteMessage(websocket.PingMessage, nil)
}

func (p *pageConn) Close() error {
	return p.conn.Close()
}

// handleWebSocket is a page's message channel. Connected pages count as
// clients of the worker: they are claimed on activation, receive navigation
// requests and may post control messages, whose replies come back on the
// same channel.
func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := pageUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("failed to upgrade page channel", logger.Error(err))
		return err
	}
	conn.SetReadLimit(wsMaxMsgSize)

	pc := &pageConn{conn: conn}
	id := s.cfg.Clients.Register(pc)
	log := s.log.With(logger.String("client_id", id))
	log.Debug("page connected", logger.String("remote", c.RealIP()))

	done := make(chan struct{})
	defer func() {
		close(done)
		s.cfg.Clients.Unregister(id)
		_ = pc.Close()

		// The request context ends with the connection.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), shutdownDeadline)
		defer cancel()
		if err := s.cfg.Registration.ClientsChanged(ctx); err != nil {
			log.Warn("activation after disconnect failed", logger.Error(err))
		}
		log.Debug("page disconnected")
	}()

	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := pc.ping(); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		var msg worker.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("page channel closed", logger.Error(err))
			}
			// The response was hijacked; nothing left for echo to write.
			return nil
		}
		s.answer(c.Request().Context(), id, msg)
	}
}

func (s *Server) answer(ctx context.Context, id string, msg worker.Message) {
	if msg.Type == "" {
		return
	}
	res, err := s.cfg.Registration.Message(ctx, msg)
	if err != nil {
		_ = s.cfg.Clients.PostMessage(id, clients.Message{Type: msg.Type, Data: errorBody(err.Error())})
		return
	}
	if res == nil || res.Reply == nil {
		return
	}
	if err := s.cfg.Clients.PostMessage(id, clients.Message{Type: msg.Type, Data: res.Reply}); err != nil {
		s.log.Debug("failed to reply to page", logger.String("client_id", id), logger.Error(err))
	}
}
