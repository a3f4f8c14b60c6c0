// client.go: paho-backed implementation of Client.
package mqtt

import (
	"context"
	"maps"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/esafety/roadguard/internal/errors"
	"github.com/esafety/roadguard/internal/logger"
	"github.com/esafety/roadguard/internal/observability/metrics"
	"github.com/esafety/roadguard/internal/privacy"
)

// client implements the Client interface.
type client struct {
	config         Config
	internalClient paho.Client
	mu             sync.Mutex
	subscriptions  map[string]MessageHandler
	metrics        *metrics.MQTTMetrics
	log            logger.Logger
}

// NewClient creates a new MQTT client with the provided configuration. m must not be nil.
func NewClient(config Config, m *metrics.MQTTMetrics, log logger.Logger) (Client, error) {
	if _, err := parseBroker(config.Broker); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo)
	}
	return &client{
		config:        config,
		subscriptions: make(map[string]MessageHandler),
		metrics:       m,
		log:           log.Module("mqtt"),
	}, nil
}

func parseBroker(broker string) (*url.URL, error) {
	u, err := url.Parse(broker)
	if err == nil && u.Host == "" {
		err = errors.NewStd("broker URL has no host")
	}
	if err != nil {
		return nil, errors.New(err).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Context("broker", broker).
			Build()
	}
	return u, nil
}

// Connect attempts to establish a connection to the MQTT broker.
// It first resolves the broker's hostname and then attempts to connect.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	u, err := parseBroker(c.config.Broker)
	if err != nil {
		return err
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			c.metrics.IncrementErrors("connect")
			return errors.New(err).
				Component("mqtt").
				Category(errors.CategoryMQTTConnection).
				NetworkContext(c.config.Broker, c.config.ConnectTimeout).
				Context("operation", "resolve_broker").
				Build()
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.internalClient = paho.NewClient(opts)

	token := c.internalClient.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		c.metrics.IncrementErrors("connect")
		return errors.Newf("connection to %s timed out", c.config.Broker).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			NetworkContext(c.config.Broker, c.config.ConnectTimeout).
			Build()
	}
	if err := token.Error(); err != nil {
		c.metrics.IncrementErrors("connect")
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			NetworkContext(c.config.Broker, c.config.ConnectTimeout).
			Build()
	}
	return nil
}

// Publish sends a message to the specified topic on the MQTT broker.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsConnected() {
		return errors.Newf("not connected to MQTT broker").
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	timer := c.metrics.StartPublishTimer()
	defer timer.ObserveDuration()

	wait := c.config.PublishTimeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
		wait = time.Until(deadline)
	}

	token := c.internalClient.Publish(topic, c.config.QoS, c.config.Retain, payload)
	if !token.WaitTimeout(wait) {
		c.metrics.IncrementErrors("publish")
		return errors.Newf("publish to %s timed out", topic).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Timing("publish", wait).
			Build()
	}
	if err := token.Error(); err != nil {
		c.metrics.IncrementErrors("publish")
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	c.metrics.IncrementMessagesPublished()
	c.log.Debug("published message", logger.String("topic", topic), logger.Int("bytes", len(payload)))
	return nil
}

// Subscribe registers handler for topic and subscribes immediately when connected.
func (c *client) Subscribe(topic string, handler MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.subscriptions[topic] = handler
	if !c.IsConnected() {
		// onConnect subscribes once the connection is up
		return nil
	}
	return c.subscribe(c.internalClient, topic, handler)
}

func (c *client) subscribe(pc paho.Client, topic string, handler MessageHandler) error {
	token := pc.Subscribe(topic, c.config.QoS, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return errors.Newf("subscribe to %s timed out", topic).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Context("topic", topic).
			Build()
	}
	c.log.Info("subscribed", logger.String("topic", topic))
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		c.metrics.UpdateConnectionStatus(false)
		c.log.Info("disconnected from MQTT broker", logger.String("broker", privacy.SanitizeBrokerURL(c.config.Broker)))
	}
}

// onConnect runs on every (re)connect. The session is clean, so every
// registered subscription is renewed.
func (c *client) onConnect(pc paho.Client) {
	c.log.Info("connected to MQTT broker", logger.String("broker", privacy.SanitizeBrokerURL(c.config.Broker)))
	c.metrics.UpdateConnectionStatus(true)

	c.mu.Lock()
	subs := maps.Clone(c.subscriptions)
	c.mu.Unlock()

	// Subscribing waits on the broker, so it runs without holding c.mu
	for topic, handler := range subs {
		if err := c.subscribe(pc, topic, handler); err != nil {
			c.metrics.IncrementErrors("subscribe")
			c.log.Error("failed to renew subscription", logger.String("topic", topic), logger.Error(err))
		}
	}
}

func (c *client) onConnectionLost(_ paho.Client, err error) {
	c.log.Warn("connection to MQTT broker lost", logger.String("broker", privacy.SanitizeBrokerURL(c.config.Broker)), logger.Error(err))
	c.metrics.UpdateConnectionStatus(false)
	c.metrics.IncrementErrors("connection_lost")
}

func (c *client) onReconnecting(_ paho.Client, _ *paho.ClientOptions) {
	c.metrics.IncrementReconnectAttempts()
	c.log.Debug("reconnecting to MQTT broker", logger.String("broker", privacy.SanitizeBrokerURL(c.config.Broker)))
}
