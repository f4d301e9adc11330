package alerting

import (
	"context"
	"time"

	"github.com/leafwatch/leafwatch/internal/datastore/entities"
	"github.com/leafwatch/leafwatch/internal/errors"
	"github.com/leafwatch/leafwatch/internal/logger"
)

// AlertSummary is the client view of a newly created alert.
type AlertSummary struct {
	ID                uint      `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	Time              time.Time `json:"time"`
	PlantConditionID  *uint     `json:"plantConditionId"`
	DeviceConditionID *uint     `json:"deviceConditionId"`
}

// LiveAlertMessage is broadcast to a user's alert topic once per trigger.
type LiveAlertMessage struct {
	EventType string         `json:"eventType"`
	Alerts    []AlertSummary `json:"alerts"`
}

// NewLiveAlertMessage builds the broadcast for a batch of alerts.
func NewLiveAlertMessage(alerts []entities.Alert) LiveAlertMessage {
	return LiveAlertMessage{
		EventType: EventTypeLiveAlert,
		Alerts:    Summarize(alerts),
	}
}

// Summarize converts stored alerts to their client view, keeping order.
func Summarize(alerts []entities.Alert) []AlertSummary {
	out := make([]AlertSummary, 0, len(alerts))
	for i := range alerts {
		a := &alerts[i]
		out = append(out, AlertSummary{
			ID:                a.ID,
			Name:              a.Name,
			Description:       a.Description,
			Time:              a.Time,
			PlantConditionID:  a.PlantConditionID,
			DeviceConditionID: a.DeviceConditionID,
		})
	}
	return out
}

// Broadcaster fans a message out to the subscribers of a topic.
type Broadcaster interface {
	BroadcastToTopic(ctx context.Context, topic string, message any) error
}

// dispatchTimeout bounds delivery of one batch of persisted alerts.
const dispatchTimeout = 10 * time.Second

// AlertDispatcher publishes persisted alerts to their owner's live topic.
type AlertDispatcher struct {
	broadcaster Broadcaster
	log         logger.Logger
}

// NewAlertDispatcher creates a new AlertDispatcher. A nil broadcaster
// disables publishing.
func NewAlertDispatcher(broadcaster Broadcaster, log logger.Logger) *AlertDispatcher {
	return &AlertDispatcher{
		broadcaster: broadcaster,
		log:         log,
	}
}

// Dispatch sends one message carrying all alerts to alerts-{userID}.
// Delivery failures are logged and never returned: the alerts are already
// stored and must not be recreated. Delivery runs under its own
// dispatchTimeout, detached from the caller's cancellation.
func (d *AlertDispatcher) Dispatch(ctx context.Context, userID string, alerts []entities.Alert) {
	if d.broadcaster == nil || len(alerts) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()

	topic := UserAlertTopic(userID)
	if err := d.broadcaster.BroadcastToTopic(ctx, topic, NewLiveAlertMessage(alerts)); err != nil {
		err = errors.New(err).
			Component("alerting").
			Category(errors.CategoryDelivery).
			Context("topic", topic).
			Build()
		d.log.Warn("failed to broadcast alerts",
			logger.String("topic", topic),
			logger.Int("alerts", len(alerts)),
			logger.Error(err))
	}
}
