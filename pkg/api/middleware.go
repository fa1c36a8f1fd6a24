package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/harrisonrobin/pomodo/pkg/logger"
	"github.com/harrisonrobin/pomodo/pkg/metrics"
	"github.com/harrisonrobin/pomodo/pkg/model"
	"github.com/harrisonrobin/pomodo/pkg/pomodoro"
	"github.com/harrisonrobin/pomodo/pkg/store"
)

// Observe counts every request by route template and logs it.
func Observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		logger.Debug("http request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", time.Since(start),
		)
	}
}

// statusOf maps engine errors onto HTTP status codes.
func statusOf(err error) int {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, errNoTimer):
		return http.StatusNotFound
	case errors.Is(err, store.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, pomodoro.ErrClosed):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func abort(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "route", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
