package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/vibeops/internal/algorithm"
	"github.com/mohammad-safakhou/vibeops/internal/feed"
	"github.com/mohammad-safakhou/vibeops/internal/logger"
	"github.com/mohammad-safakhou/vibeops/internal/payout"
	"github.com/mohammad-safakhou/vibeops/internal/queue/streams"
	"github.com/mohammad-safakhou/vibeops/internal/store"
)

// httpError maps domain sentinels to HTTP errors. Unknown errors become 500s.
func httpError(err error) error {
	if err == nil {
		return nil
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	switch {
	case errors.Is(err, payout.ErrInvalidTransition),
		errors.Is(err, payout.ErrInsufficientBalance),
		errors.Is(err, payout.ErrInvalidAmount),
		errors.Is(err, payout.ErrUnknownStatus),
		errors.Is(err, algorithm.ErrInvalidConfig),
		errors.Is(err, streams.ErrUnknownEvent):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound), errors.Is(err, feed.ErrViewerNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
}

// errorHandler renders every error as {"error": msg} and logs it.
func errorHandler(log *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		he, ok := httpError(err).(*echo.HTTPError)
		if !ok {
			he = echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		msg := fmt.Sprint(he.Message)
		req := c.Request()
		fields := []interface{}{"status", he.Code, "method", req.Method, "path", req.URL.Path, "remote", c.RealIP()}
		if he.Code >= http.StatusInternalServerError {
			// hide internals from clients
			log.Error("request failed", append(fields, "error", err)...)
			msg = http.StatusText(he.Code)
		} else {
			log.Debug("request rejected", append(fields, "error", msg)...)
		}
		if !c.Response().Committed {
			if req.Method == http.MethodHead {
				_ = c.NoContent(he.Code)
				return
			}
			_ = c.JSON(he.Code, HTTPError{Error: msg})
		}
	}
}
