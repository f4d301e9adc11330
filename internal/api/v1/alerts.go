package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/leafwatch/leafwatch/internal/alerting"
	"github.com/leafwatch/leafwatch/internal/datastore/repository"
)

const (
	defaultAlertLimit = 100
	maxAlertLimit     = 500
)

func (c *Controller) initAlertRoutes() {
	c.Group.GET("/users/:userId/alerts", c.ListUserAlerts)
}

// AlertListResponse is the body of ListUserAlerts.
type AlertListResponse struct {
	Alerts []alerting.AlertSummary `json:"alerts"`
	Count  int                     `json:"count"`
}

// ListUserAlerts returns a user's alerts newest first. Optional query
// parameters: year (calendar year, UTC) and limit.
func (c *Controller) ListUserAlerts(ctx echo.Context) error {
	userID := ctx.Param("userId")
	if userID == "" {
		return badRequest(ctx, "User ID is required")
	}

	filter := repository.AlertFilter{Limit: defaultAlertLimit}
	if yearParam := ctx.QueryParam("year"); yearParam != "" {
		year, err := strconv.Atoi(yearParam)
		if err != nil || year < 1970 || year > 9999 {
			return badRequest(ctx, "Invalid year")
		}
		filter.Year = &year
	}
	if limitParam := ctx.QueryParam("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit <= 0 {
			return badRequest(ctx, "Invalid limit")
		}
		filter.Limit = min(limit, maxAlertLimit)
	}

	alerts, err := c.alerts.ListForUser(ctx.Request().Context(), userID, filter)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list alerts", http.StatusInternalServerError)
	}

	summaries := alerting.Summarize(alerts)
	return ctx.JSON(http.StatusOK, AlertListResponse{
		Alerts: summaries,
		Count:  len(summaries),
	})
}
