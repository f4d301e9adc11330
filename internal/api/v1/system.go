package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var startedAt = time.Now()

func (c *Controller) initSystemRoutes() {
	c.Echo.GET("/health", c.Health)
	if c.metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(c.metrics.Registry(), promhttp.HandlerOpts{})))
	}
	if c.realtime != nil {
		c.Echo.GET("/ws", echo.WrapHandler(c.realtime))
	}
}

// HealthResponse is the body of Health.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// Health reports liveness.
func (c *Controller) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(startedAt).Truncate(time.Second).String(),
	})
}
