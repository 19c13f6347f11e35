// Package mqtt connects the worker to an MQTT broker. Subscribed topics
// deliver push payloads and background sync triggers.
package mqtt

import (
	"context"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/estoca-ai/estoca-worker/internal/conf"
	"github.com/estoca-ai/estoca-worker/internal/errors"
	"github.com/estoca-ai/estoca-worker/internal/logger"
)

const (
	connectTimeout    = 10 * time.Second
	operationTimeout  = 5 * time.Second
	reconnectCooldown = 5 * time.Second
	disconnectQuiesce = 250
	subscribeQoS      = 1
)

// Handler receives a message payload from a subscribed topic.
type Handler func(ctx context.Context, payload []byte)

// Client is a paho client that restores its subscriptions on reconnect.
type Client struct {
	settings conf.MQTTSettings
	log      logger.Logger

	mu          sync.Mutex
	client      paho.Client
	handlers    map[string]Handler
	lastConnect time.Time
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewClient validates settings and returns an unconnected client.
func NewClient(settings conf.MQTTSettings, log logger.Logger) (*Client, error) {
	u, err := url.Parse(settings.Broker)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf("invalid MQTT broker URL %q", settings.Broker).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings.ClientID == "" {
		settings.ClientID = "estoca-worker"
	}
	return &Client{
		settings: settings,
		log:      log.Module("mqtt"),
		handlers: make(map[string]Handler),
	}, nil
}

// Subscribe registers h for topic. Registrations made before Connect are
// subscribed on connect; later ones are subscribed immediately.
func (c *Client) Subscribe(topic string, h Handler) error {
	c.mu.Lock()
	c.handlers[topic] = h
	client := c.client
	c.mu.Unlock()

	if client != nil && client.IsConnected() {
		return c.subscribe(client, topic, h)
	}
	return nil
}

func (c *Client) subscribe(client paho.Client, topic string, h Handler) error {
	token := client.Subscribe(topic, subscribeQoS, func(_ paho.Client, msg paho.Message) {
		c.mu.Lock()
		ctx := c.ctx
		c.mu.Unlock()
		if ctx == nil {
			return
		}
		h(ctx, msg.Payload())
	})
	if !token.WaitTimeout(operationTimeout) {
		return errors.Newf("subscribe to %s timed out", topic).
			Component("mqtt").
			Category(errors.CategoryNetwork).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryNetwork).
			Context("topic", topic).
			Build()
	}
	c.log.Info("subscribed", logger.String("topic", topic))
	return nil
}

func (c *Client) onConnect(client paho.Client) {
	c.mu.Lock()
	handlers := make(map[string]Handler, len(c.handlers))
	for t, h := range c.handlers {
		handlers[t] = h
	}
	c.mu.Unlock()

	for topic, h := range handlers {
		if err := c.subscribe(client, topic, h); err != nil {
			c.log.Error("resubscribe failed", logger.String("topic", topic), logger.Error(err))
		}
	}
}

// Connect connects to the broker. Attempts closer together than the
// reconnect cooldown are rejected.
func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if !c.lastConnect.IsZero() && time.Since(c.lastConnect) < reconnectCooldown {
		c.mu.Unlock()
		return errors.Newf("connection attempt too recent, retry in %s", reconnectCooldown).
			Component("mqtt").
			Category(errors.CategoryNetwork).
			Build()
	}
	c.lastConnect = time.Now()

	opts := paho.NewClientOptions()
	opts.AddBroker(c.settings.Broker)
	opts.SetClientID(c.settings.ClientID)
	opts.SetUsername(c.settings.Username)
	opts.SetPassword(c.settings.Password)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.log.Warn("connection lost", logger.Error(err))
	})

	client := paho.NewClient(opts)
	c.client = client
	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.mu.Unlock()

	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(connectTimeout):
		return errors.Newf("connect to %s timed out", c.settings.Broker).
			Component("mqtt").
			Category(errors.CategoryNetwork).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryNetwork).
			Context("broker", c.settings.Broker).
			Build()
	}
	c.log.Info("connected", logger.String("broker", c.settings.Broker))
	return nil
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil && c.client.IsConnected()
}

// Publish sends payload to topic.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return errors.Newf("not connected").
			Component("mqtt").
			Category(errors.CategoryNetwork).
			Build()
	}

	token := client.Publish(topic, subscribeQoS, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect closes the broker connection and stops handler delivery.
func (c *Client) Disconnect() {
	c.mu.Lock()
	client := c.client
	cancel := c.cancel
	c.client = nil
	c.ctx = nil
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if client != nil {
		client.Disconnect(disconnectQuiesce)
		c.log.Info("disconnected")
	}
}
