// Package mqtt connects leafwatch to the sensor broker: it ingests device
// readings and pushes preference updates back to devices.
package mqtt

import (
	"context"
	"maps"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/leafwatch/leafwatch/internal/conf"
	"github.com/leafwatch/leafwatch/internal/errors"
	"github.com/leafwatch/leafwatch/internal/logger"
)

const (
	connectTimeout    = 10 * time.Second
	disconnectQuiesce = 250 // milliseconds
)

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.NewStd("mqtt client not connected")

// MessageHandler processes one message received on a subscribed topic.
type MessageHandler func(ctx context.Context, topic string, payload []byte) error

// Client wraps a paho client with context-aware connect, publish and
// subscribe. Subscriptions are restored after a reconnect.
type Client struct {
	settings conf.MQTTSettings
	client   paho.Client
	log      logger.Logger

	mu   sync.Mutex
	subs map[string]MessageHandler
}

// NewClient creates an unconnected client for settings.
func NewClient(settings *conf.MQTTSettings, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}
	c := &Client{
		settings: *settings,
		log:      log.Module("mqtt"),
		subs:     make(map[string]MessageHandler),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(settings.Broker)
	opts.SetClientID(settings.ClientID)
	if settings.Username != "" {
		opts.SetUsername(settings.Username)
	}
	if settings.Password != "" {
		opts.SetPassword(settings.Password)
	}
	opts.SetConnectTimeout(connectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.log.Warn("mqtt connection lost", logger.Error(err))
	})
	c.client = paho.NewClient(opts)
	return c
}

// Connect dials the broker and waits until connected or ctx is done.
func (c *Client) Connect(ctx context.Context) error {
	if err := waitToken(ctx, c.client.Connect()); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryDelivery).
			Context("broker", c.settings.Broker).
			Build()
	}
	c.log.Info("connected to mqtt broker", logger.String("broker", c.settings.Broker))
	return nil
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Disconnect closes the broker connection.
func (c *Client) Disconnect() {
	c.client.Disconnect(disconnectQuiesce)
}

// Publish sends payload to topic with the configured QoS.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := waitToken(ctx, c.client.Publish(topic, c.settings.QoS, false, payload)); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryDelivery).
			Context("topic", topic).
			Build()
	}
	return nil
}

// Subscribe registers handler for topic, which may contain wildcards.
// Handler errors are logged.
func (c *Client) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()

	if !c.client.IsConnected() {
		// Registered subscriptions are applied on connect.
		return nil
	}
	return c.subscribe(ctx, topic, handler)
}

func (c *Client) subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	token := c.client.Subscribe(topic, c.settings.QoS, func(_ paho.Client, msg paho.Message) {
		hctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		if err := handler(hctx, msg.Topic(), msg.Payload()); err != nil {
			c.log.Warn("failed to handle mqtt message",
				logger.String("topic", msg.Topic()),
				logger.Error(err))
		}
	})
	if err := waitToken(ctx, token); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryDelivery).
			Context("topic", topic).
			Build()
	}
	c.log.Debug("subscribed", logger.String("topic", topic))
	return nil
}

// onConnect restores subscriptions after the initial connect and every
// reconnect.
func (c *Client) onConnect(_ paho.Client) {
	c.mu.Lock()
	subs := maps.Clone(c.subs)
	c.mu.Unlock()

	for topic, handler := range subs {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		err := c.subscribe(ctx, topic, handler)
		cancel()
		if err != nil {
			c.log.Error("failed to restore subscription",
				logger.String("topic", topic),
				logger.Error(err))
		}
	}
}

// waitToken waits for token to complete or ctx to be done.
func waitToken(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
