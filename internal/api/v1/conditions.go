package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/leafwatch/leafwatch/internal/alerting"
	"github.com/leafwatch/leafwatch/internal/datastore/entities"
	"github.com/leafwatch/leafwatch/internal/datastore/repository"
	"github.com/leafwatch/leafwatch/internal/errors"
	"github.com/leafwatch/leafwatch/internal/logger"
)

func (c *Controller) initConditionRoutes() {
	c.Group.GET("/conditions/schema", c.GetConditionSchema)

	devices := c.Group.Group("/devices/:deviceId/conditions")
	devices.GET("", c.ListDeviceConditions)
	devices.POST("", c.CreateDeviceCondition)
	c.Group.DELETE("/device-conditions/:id", c.DeleteDeviceCondition)

	c.Group.POST("/plants/:plantId/conditions", c.CreatePlantCondition)
	c.Group.DELETE("/plant-conditions/:id", c.DeletePlantCondition)
}

// GetConditionSchema lists the sensor types, units and operators accepted
// by device conditions.
func (c *Controller) GetConditionSchema(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, alerting.GetSchema())
}

// DeviceConditionRequest is the body of CreateDeviceCondition.
type DeviceConditionRequest struct {
	SensorType string `json:"sensorType"`
	Condition  string `json:"condition"`
}

// ListDeviceConditions returns the active conditions of a device.
func (c *Controller) ListDeviceConditions(ctx echo.Context) error {
	deviceID, err := parseUintParam(ctx, "deviceId")
	if err != nil {
		return badRequest(ctx, "Invalid device ID")
	}
	conds, err := c.conditions.ListDeviceConditions(ctx.Request().Context(), deviceID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list conditions", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"conditions": conds,
		"count":      len(conds),
	})
}

// CreateDeviceCondition adds a threshold condition to a device. The
// condition is stored in canonical form; an identical active condition
// is rejected with 409.
func (c *Controller) CreateDeviceCondition(ctx echo.Context) error {
	deviceID, err := parseUintParam(ctx, "deviceId")
	if err != nil {
		return badRequest(ctx, "Invalid device ID")
	}

	var req DeviceConditionRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "Invalid request body")
	}
	canonical, err := alerting.ValidateDeviceCondition(req.SensorType, req.Condition)
	if err != nil {
		return badRequest(ctx, err.Error())
	}

	reqCtx := ctx.Request().Context()
	if _, err := c.devices.GetDevice(reqCtx, deviceID); err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Device not found"})
		}
		return c.HandleError(ctx, err, "Failed to get device", http.StatusInternalServerError)
	}

	cond := &entities.UserDeviceCondition{
		UserDeviceID: deviceID,
		SensorType:   req.SensorType,
		Condition:    canonical,
	}
	if err := c.conditions.CreateDeviceCondition(reqCtx, cond); err != nil {
		if errors.Is(err, repository.ErrDuplicateCondition) {
			return ctx.JSON(http.StatusConflict, map[string]string{"error": "An identical condition already exists"})
		}
		return c.HandleError(ctx, err, "Failed to create condition", http.StatusInternalServerError)
	}

	c.log.Info("device condition created",
		logger.Uint64("device_id", uint64(deviceID)),
		logger.Uint64("condition_id", uint64(cond.ID)),
		logger.String("sensor_type", cond.SensorType),
		logger.String("condition", cond.Condition))
	return ctx.JSON(http.StatusCreated, cond)
}

// DeleteDeviceCondition soft-deletes a device condition.
func (c *Controller) DeleteDeviceCondition(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return badRequest(ctx, "Invalid condition ID")
	}
	if err := c.conditions.DeleteDeviceCondition(ctx.Request().Context(), id); err != nil {
		if errors.Is(err, repository.ErrConditionNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Condition not found"})
		}
		return c.HandleError(ctx, err, "Failed to delete condition", http.StatusInternalServerError)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// PlantConditionRequest is the body of CreatePlantCondition.
type PlantConditionRequest struct {
	WaterNotify bool `json:"waterNotify"`
}

// CreatePlantCondition enables watering reminders for a plant. A plant
// has at most one active condition; a second is rejected with 409.
func (c *Controller) CreatePlantCondition(ctx echo.Context) error {
	plantID, err := parseUintParam(ctx, "plantId")
	if err != nil {
		return badRequest(ctx, "Invalid plant ID")
	}

	var req PlantConditionRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "Invalid request body")
	}

	reqCtx := ctx.Request().Context()
	if _, err := c.plants.GetPlant(reqCtx, plantID); err != nil {
		if errors.Is(err, repository.ErrPlantNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Plant not found"})
		}
		return c.HandleError(ctx, err, "Failed to get plant", http.StatusInternalServerError)
	}

	cond := &entities.PlantCondition{PlantID: plantID, WaterNotify: req.WaterNotify}
	if err := c.conditions.CreatePlantCondition(reqCtx, cond); err != nil {
		if errors.Is(err, repository.ErrActiveConditionExists) {
			return ctx.JSON(http.StatusConflict, map[string]string{"error": "Plant already has an active condition"})
		}
		return c.HandleError(ctx, err, "Failed to create plant condition", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusCreated, cond)
}

// DeletePlantCondition soft-deletes a plant condition.
func (c *Controller) DeletePlantCondition(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return badRequest(ctx, "Invalid condition ID")
	}
	if err := c.conditions.DeletePlantCondition(ctx.Request().Context(), id); err != nil {
		if errors.Is(err, repository.ErrConditionNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Condition not found"})
		}
		return c.HandleError(ctx, err, "Failed to delete plant condition", http.StatusInternalServerError)
	}
	return ctx.NoContent(http.StatusNoContent)
}
