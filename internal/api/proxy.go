package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/estoca-ai/estoca-worker/internal/cachestore"
	"github.com/estoca-ai/estoca-worker/internal/errors"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/strategy"
	"github.com/estoca-ai/estoca-worker/internal/worker"
)

// Response headers describing how an intercepted request was served.
const (
	HeaderStrategy = "X-Worker-Strategy"
	HeaderVersion  = "X-Worker-Version"
)

// handleIntercept turns the request into a fetch event on the active worker.
// Until a worker activates, pages are uncontrolled and requests go straight
// to the network.
func (s *Server) handleIntercept(c echo.Context) error {
	r := c.Request()
	if strings.HasPrefix(r.URL.Path, ControlPrefix+"/") {
		return c.JSON(http.StatusNotFound, errorBody("unknown control endpoint"))
	}

	req, err := s.interceptedRequest(r)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	res, err := s.cfg.Registration.Dispatch(r.Context(), worker.NewFetchEvent(req))
	if errors.Is(err, worker.ErrNoActiveWorker) {
		return s.passThrough(c, req)
	}
	if err != nil {
		s.log.Error("fetch event failed",
			logger.String("key", req.Key.String()),
			logger.Error(err))
		return c.JSON(statusFor(err), errorBody("request failed"))
	}
	if res == nil || res.Response == nil {
		return c.JSON(http.StatusBadGateway, errorBody("no response"))
	}

	c.Response().Header().Set(HeaderStrategy, res.Strategy.String())
	if active := s.cfg.Registration.Active(); active != nil {
		c.Response().Header().Set(HeaderVersion, active.Version())
	}
	return res.Response.Write(c.Response())
}

func (s *Server) passThrough(c echo.Context, req *strategy.Request) error {
	resp, err := s.cfg.Fetcher.Fetch(c.Request().Context(), req)
	if err != nil {
		s.log.Warn("uncontrolled fetch failed",
			logger.String("key", req.Key.String()),
			logger.Error(err))
		return c.String(http.StatusBadGateway, "upstream unavailable")
	}
	return resp.Write(c.Response())
}

// interceptedRequest buffers r into a strategy request keyed against the
// configured origin.
func (s *Server) interceptedRequest(r *http.Request) (*strategy.Request, error) {
	key, err := cachestore.KeyFromRequest(r, s.cfg.Base)
	if err != nil {
		return nil, err
	}
	req := &strategy.Request{Key: key, Header: r.Header.Clone()}
	if r.Body != nil && r.Body != http.NoBody {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			return nil, errors.New(err).
				Component("api").
				Category(errors.CategoryValidation).
				Context("operation", "read_body").
				Build()
		}
		req.Body = body
	}
	return req, nil
}
