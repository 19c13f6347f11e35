package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/estoca-ai/estoca-worker/internal/cachestore"
	"github.com/estoca-ai/estoca-worker/internal/clients"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/notification"
	"github.com/estoca-ai/estoca-worker/internal/push"
	"github.com/estoca-ai/estoca-worker/internal/worker"
)

// StatusResponse describes the registration.
type StatusResponse struct {
	Version    string                     `json:"version,omitempty"`
	State      string                     `json:"state"`
	Waiting    string                     `json:"waiting,omitempty"`
	Partitions []cachestore.PartitionInfo `json:"partitions"`
	Clients    []clients.Info             `json:"clients"`
}

// SyncRequest triggers a sync event.
type SyncRequest struct {
	Tag string `json:"tag"`
}

// EnqueueRequest queues a payload for the next sync.
type EnqueueRequest struct {
	Tag     string          `json:"tag"`
	Payload json.RawMessage `json:"payload"`
}

// ClickRequest carries the clicked notification action.
type ClickRequest struct {
	Action string `json:"action"`
}

func (s *Server) handleStatus(c echo.Context) error {
	resp := StatusResponse{
		State:      "none",
		Partitions: []cachestore.PartitionInfo{},
		Clients:    s.cfg.Clients.List(),
	}
	if w := s.cfg.Registration.Waiting(); w != nil {
		resp.Waiting = w.Version()
	}
	active := s.cfg.Registration.Active()
	if active == nil {
		return c.JSON(http.StatusOK, resp)
	}
	resp.Version = active.Version()
	resp.State = active.State()

	parts, err := active.Scope().Store.Keys(c.Request().Context())
	if err != nil {
		s.log.Error("failed to list partitions", logger.Error(err))
		return c.JSON(statusFor(err), errorBody("failed to list partitions"))
	}
	resp.Partitions = parts
	return c.JSON(http.StatusOK, resp)
}

// handleMessage answers a control message posted over HTTP.
func (s *Server) handleMessage(c echo.Context) error {
	var msg worker.Message
	if err := c.Bind(&msg); err != nil || msg.Type == "" {
		return c.JSON(http.StatusBadRequest, errorBody("message type is required"))
	}
	res, err := s.cfg.Registration.Message(c.Request().Context(), msg)
	if err != nil {
		return c.JSON(statusFor(err), errorBody(err.Error()))
	}
	if res == nil || res.Reply == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, res.Reply)
}

// handlePush delivers the raw request body as a push payload.
func (s *Server) handlePush(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodySize))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("failed to read push payload"))
	}
	res, err := s.cfg.Registration.Dispatch(c.Request().Context(), worker.NewPushEvent(payload, push.TransportHTTP))
	if err != nil {
		return c.JSON(statusFor(err), errorBody(err.Error()))
	}
	return c.JSON(http.StatusCreated, res.Notification)
}

func (s *Server) handleListNotifications(c echo.Context) error {
	if s.cfg.Notifications == nil {
		return c.JSON(http.StatusOK, []*notification.Notification{})
	}
	return c.JSON(http.StatusOK, s.cfg.Notifications.List())
}

func (s *Server) handleNotificationClick(c echo.Context) error {
	var req ClickRequest
	// An empty body is the default action.
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorBody("invalid click body"))
		}
	}
	_, err := s.cfg.Registration.Dispatch(c.Request().Context(), worker.NewClickEvent(c.Param("id"), req.Action))
	if err != nil {
		return c.JSON(statusFor(err), errorBody(err.Error()))
	}
	return c.NoContent(http.StatusNoContent)
}

// handleSync fires a sync event and waits for the replay.
func (s *Server) handleSync(c echo.Context) error {
	var req SyncRequest
	if err := c.Bind(&req); err != nil || req.Tag == "" {
		return c.JSON(http.StatusBadRequest, errorBody("sync tag is required"))
	}
	res, err := s.cfg.Registration.Dispatch(c.Request().Context(), worker.NewSyncEvent(req.Tag))
	if err != nil {
		body := map[string]any{"error": err.Error()}
		if res != nil && res.Sync != nil {
			body["result"] = res.Sync
		}
		return c.JSON(statusFor(err), body)
	}
	if res.Sync == nil {
		// Tags the queue does not own are accepted and ignored.
		return c.NoContent(http.StatusAccepted)
	}
	return c.JSON(http.StatusOK, res.Sync)
}

func (s *Server) handleEnqueueSync(c echo.Context) error {
	if s.cfg.Sync == nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody("sync queue is not configured"))
	}
	var req EnqueueRequest
	if err := c.Bind(&req); err != nil || len(req.Payload) == 0 {
		return c.JSON(http.StatusBadRequest, errorBody("payload is required"))
	}
	task, err := s.cfg.Sync.Enqueue(c.Request().Context(), req.Tag, req.Payload)
	if err != nil {
		return c.JSON(statusFor(err), errorBody(err.Error()))
	}
	return c.JSON(http.StatusCreated, task)
}
