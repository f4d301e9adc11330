package mqtt

import (
	"context"
	"encoding/json"

	"github.com/leafwatch/leafwatch/internal/errors"
)

// Publisher sends raw payloads to a broker topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// PreferencePublisher pushes device preference updates. Delivery is
// one-way; devices do not acknowledge.
type PreferencePublisher struct {
	publisher Publisher
}

// NewPreferencePublisher creates a publisher backed by p.
func NewPreferencePublisher(p Publisher) *PreferencePublisher {
	return &PreferencePublisher{publisher: p}
}

// Publish serializes payload as JSON and sends it to topic. []byte and
// json.RawMessage payloads are sent as is.
func (p *PreferencePublisher) Publish(ctx context.Context, payload any, topic string) error {
	if topic == "" {
		return errors.Newf("preference topic is required").
			Component("mqtt").
			Category(errors.CategoryValidation).
			Build()
	}

	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return errors.New(err).
				Component("mqtt").
				Category(errors.CategoryValidation).
				Context("topic", topic).
				Build()
		}
	}
	return p.publisher.Publish(ctx, topic, data)
}
