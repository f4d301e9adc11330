package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/leafwatch/leafwatch/internal/alerting"
	"github.com/leafwatch/leafwatch/internal/logger"
)

func (c *Controller) initReadingRoutes() {
	c.Group.POST("/readings", c.PostReading)
	c.Group.POST("/devices/:deviceId/preferences", c.PushDevicePreferences)
}

// PostReading queues a device reading for condition evaluation. Evaluation
// is asynchronous; 202 means accepted, not alerted.
func (c *Controller) PostReading(ctx echo.Context) error {
	if c.readings == nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Reading ingestion is disabled"})
	}

	var reading alerting.Reading
	if err := ctx.Bind(&reading); err != nil {
		return badRequest(ctx, "Invalid request body")
	}
	if reading.DeviceID == 0 {
		return badRequest(ctx, "deviceId is required")
	}

	if !c.readings.Publish(&reading) {
		c.log.Warn("reading rejected, queue full",
			logger.Uint64("device_id", uint64(reading.DeviceID)))
		ctx.Response().Header().Set("Retry-After", "1")
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Reading queue is full"})
	}
	return ctx.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}

// PushDevicePreferences forwards a JSON preference document to a device.
// Delivery is one-way.
func (c *Controller) PushDevicePreferences(ctx echo.Context) error {
	if c.preferences == nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Device messaging is disabled"})
	}
	deviceID, err := parseUintParam(ctx, "deviceId")
	if err != nil {
		return badRequest(ctx, "Invalid device ID")
	}

	var payload json.RawMessage
	if err := json.NewDecoder(ctx.Request().Body).Decode(&payload); err != nil {
		return badRequest(ctx, "Invalid JSON")
	}

	topic := c.namespace + "/" + strconv.FormatUint(uint64(deviceID), 10) + "/preferences"
	if err := c.preferences.Publish(ctx.Request().Context(), payload, topic); err != nil {
		return c.HandleError(ctx, err, "Failed to push preferences", http.StatusBadGateway)
	}
	return ctx.JSON(http.StatusAccepted, map[string]string{"status": "sent", "topic": topic})
}
