package mqtt

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/leafwatch/leafwatch/internal/alerting"
	"github.com/leafwatch/leafwatch/internal/errors"
	"github.com/leafwatch/leafwatch/internal/logger"
)

// forwardTimeout bounds delivery of one reading to the live stream.
const forwardTimeout = 5 * time.Second

// ReadingQueue accepts readings for asynchronous evaluation.
type ReadingQueue interface {
	Publish(reading *alerting.Reading) bool
}

// TopicBroadcaster fans a message out to realtime subscribers.
type TopicBroadcaster interface {
	BroadcastToTopic(ctx context.Context, topic string, message any) error
}

// Ingestor turns sensor messages published on <namespace>/<deviceId> into
// live sensor stream broadcasts and queued readings.
type Ingestor struct {
	namespace   string
	readings    ReadingQueue
	broadcaster TopicBroadcaster
	log         logger.Logger

	forwards sync.WaitGroup
}

// NewIngestor creates an ingestor for namespace.
func NewIngestor(namespace string, readings ReadingQueue, broadcaster TopicBroadcaster, log logger.Logger) *Ingestor {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Ingestor{
		namespace:   strings.TrimSuffix(namespace, "/"),
		readings:    readings,
		broadcaster: broadcaster,
		log:         log.Module("mqtt-ingest"),
	}
}

// SubscriptionTopic is the wildcard topic carrying all device readings.
func (i *Ingestor) SubscriptionTopic() string {
	return i.namespace + "/+"
}

// DeviceTopic is the realtime topic streaming readings of deviceID.
func (i *Ingestor) DeviceTopic(deviceID uint) string {
	return i.namespace + "/" + strconv.FormatUint(uint64(deviceID), 10)
}

// Start subscribes the ingestor on client.
func (i *Ingestor) Start(ctx context.Context, client *Client) error {
	return client.Subscribe(ctx, i.SubscriptionTopic(), i.HandleMessage)
}

// HandleMessage decodes one sensor message and queues it for condition
// evaluation. A full queue drops the reading without failing the message.
// The payload is then forwarded unchanged to the device's realtime topic in
// the background, so slow websocket clients never hold up the subscription.
func (i *Ingestor) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	reading, err := i.decode(topic, payload)
	if err != nil {
		return err
	}

	if !i.readings.Publish(reading) {
		i.log.Warn("reading queue full, reading dropped",
			logger.Uint64("device_id", uint64(reading.DeviceID)))
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), forwardTimeout)
	i.forwards.Go(func() {
		defer cancel()
		i.forward(ctx, reading.DeviceID, payload)
	})
	return nil
}

// Wait blocks until in-flight live stream forwards have finished.
func (i *Ingestor) Wait() {
	i.forwards.Wait()
}

func (i *Ingestor) forward(ctx context.Context, deviceID uint, payload []byte) {
	if err := i.broadcaster.BroadcastToTopic(ctx, i.DeviceTopic(deviceID), json.RawMessage(payload)); err != nil {
		i.log.Warn("failed to forward reading to live stream",
			logger.Uint64("device_id", uint64(deviceID)),
			logger.Error(err))
	}
}

// decode parses payload and reconciles its device id with the topic. The
// topic id fills a missing deviceId; a conflicting one is rejected.
func (i *Ingestor) decode(topic string, payload []byte) (*alerting.Reading, error) {
	var reading alerting.Reading
	if err := json.Unmarshal(payload, &reading); err != nil {
		return nil, errors.New(err).
			Component("mqtt").
			Category(errors.CategoryValidation).
			Context("topic", topic).
			Build()
	}

	topicID, ok := i.deviceIDFromTopic(topic)
	switch {
	case reading.DeviceID == 0 && !ok:
		return nil, errors.Newf("reading has no device id").
			Component("mqtt").
			Category(errors.CategoryValidation).
			Context("topic", topic).
			Build()
	case reading.DeviceID == 0:
		reading.DeviceID = topicID
	case ok && reading.DeviceID != topicID:
		return nil, errors.Newf("device id %d does not match topic", reading.DeviceID).
			Component("mqtt").
			Category(errors.CategoryValidation).
			Context("topic", topic).
			Build()
	}
	return &reading, nil
}

func (i *Ingestor) deviceIDFromTopic(topic string) (uint, bool) {
	rest, found := strings.CutPrefix(topic, i.namespace+"/")
	if !found || rest == "" || strings.Contains(rest, "/") {
		return 0, false
	}
	id, err := strconv.ParseUint(rest, 10, 0)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
