package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/estoca-ai/estoca-worker/internal/logger"
)

const (
	heartbeatInterval        = 30 * time.Second
	maxSSEConnectionDuration = 30 * time.Minute
)

func setSSEHeaders(c echo.Context) {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
}

// sendSSEMessage writes one event and flushes it.
func sendSSEMessage(c echo.Context, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}

// handleNotificationStream streams notification shown and closed events.
func (s *Server) handleNotificationStream(c echo.Context) error {
	if s.cfg.Notifications == nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody("notification service not available"))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), maxSSEConnectionDuration)
	defer cancel()

	events, unsubscribe := s.cfg.Notifications.Subscribe()
	defer unsubscribe()

	clientID := uuid.NewString()
	log := s.log.With(logger.String("client_id", clientID))

	setSSEHeaders(c)
	if err := sendSSEMessage(c, "connected", map[string]string{
		"clientId": clientID,
		"message":  "Connected to notification stream",
	}); err != nil {
		return nil
	}
	log.Debug("notification stream connected", logger.String("remote", c.RealIP()))
	defer log.Debug("notification stream closed")

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := sendSSEMessage(c, string(ev.Type), ev.Notification); err != nil {
				log.Debug("notification stream write failed", logger.Error(err))
				return nil
			}
		case <-ticker.C:
			if err := sendSSEMessage(c, "heartbeat", map[string]string{
				"timestamp": time.Now().Format(time.RFC3339),
			}); err != nil {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}
