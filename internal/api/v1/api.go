// Package api serves the leafwatch HTTP API: alert history, condition
// management, reading ingestion, the realtime websocket and operational
// endpoints.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/leafwatch/leafwatch/internal/alerting"
	"github.com/leafwatch/leafwatch/internal/datastore/repository"
	"github.com/leafwatch/leafwatch/internal/errors"
	"github.com/leafwatch/leafwatch/internal/logger"
	"github.com/leafwatch/leafwatch/internal/telemetry"
)

// ReadingQueue accepts readings for asynchronous evaluation.
type ReadingQueue interface {
	Publish(reading *alerting.Reading) bool
}

// PreferencePusher sends a preference payload to a device topic.
type PreferencePusher interface {
	Publish(ctx context.Context, payload any, topic string) error
}

// Dependencies are the collaborators of the API controller. Readings,
// Preferences, Realtime and Metrics are optional; their endpoints answer
// 503 or are not registered when nil.
type Dependencies struct {
	Devices     repository.DeviceRepository
	Plants      repository.PlantRepository
	Conditions  repository.ConditionRepository
	Alerts      repository.AlertRepository
	Readings    ReadingQueue
	Preferences PreferencePusher
	Realtime    http.Handler
	Metrics     *telemetry.Metrics
	Log         logger.Logger
	// Namespace prefixes device preference topics.
	Namespace string
}

// Controller holds the route handlers.
type Controller struct {
	Echo  *echo.Echo
	Group *echo.Group

	devices     repository.DeviceRepository
	plants      repository.PlantRepository
	conditions  repository.ConditionRepository
	alerts      repository.AlertRepository
	readings    ReadingQueue
	preferences PreferencePusher
	realtime    http.Handler
	metrics     *telemetry.Metrics
	namespace   string
	log         logger.Logger
}

// New creates a controller and registers its routes on e.
func New(e *echo.Echo, deps Dependencies) *Controller {
	log := deps.Log
	if log == nil {
		log = logger.NewNopLogger()
	}
	c := &Controller{
		Echo:        e,
		Group:       e.Group("/api/v1"),
		devices:     deps.Devices,
		plants:      deps.Plants,
		conditions:  deps.Conditions,
		alerts:      deps.Alerts,
		readings:    deps.Readings,
		preferences: deps.Preferences,
		realtime:    deps.Realtime,
		metrics:     deps.Metrics,
		namespace:   deps.Namespace,
		log:         log.Module("api"),
	}
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.initSystemRoutes()
	c.initAlertRoutes()
	c.initConditionRoutes()
	c.initReadingRoutes()
}

// ErrorResponse is the JSON body of failed requests.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HandleError logs err and writes an error response. Validation errors
// are reported as 400 whatever code says.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	if errors.CategoryOf(err) == errors.CategoryValidation {
		code = http.StatusBadRequest
	}
	if code >= http.StatusInternalServerError {
		c.log.Error(message,
			logger.String("path", ctx.Path()),
			logger.Error(err))
	} else {
		c.log.Debug(message,
			logger.String("path", ctx.Path()),
			logger.Error(err))
	}
	return ctx.JSON(code, ErrorResponse{
		Error:   err.Error(),
		Message: message,
		Code:    code,
	})
}

// badRequest writes a 400 with a client-facing message.
func badRequest(ctx echo.Context, message string) error {
	return ctx.JSON(http.StatusBadRequest, map[string]string{"error": message})
}

// parseUintParam parses a uint route parameter.
func parseUintParam(ctx echo.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(ctx.Param(name), 10, 0)
	if err != nil || v == 0 {
		return 0, errors.Newf("invalid %s", name).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return uint(v), nil
}
