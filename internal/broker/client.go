// Package broker wraps the MQTT connection to the fleet message bus.
// Delivery is at-least-once and unordered across partitions; deduplication
// is the commit processor's job, not the transport's.
package broker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	v1 "github.com/fleet-lab/fleet-reporter/internal/api/v1"
)

const (
	// QoS 1: at-least-once. Redeliveries are expected and handled downstream.
	subscribeQoS = 1
	publishQoS   = 1

	connectTimeout    = 10 * time.Second
	disconnectQuiesce = 250 // milliseconds, per paho convention
)

// Options configures the bus connection.
type Options struct {
	URL      string
	ClientID string
	Username string
	Password string
}

// EnvelopeHandler receives each decoded event envelope from a subscription.
type EnvelopeHandler func(envelope *v1.EventEnvelope)

// Client is a thin wrapper over the paho MQTT client carrying the JSON
// envelope codec used by every topic in the system.
type Client struct {
	client mqtt.Client
}

// Connect dials the broker and blocks until the session is established.
func Connect(opts Options) (*Client, error) {
	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.URL).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetConnectTimeout(connectTimeout)

	clientOpts.OnConnect = func(mqtt.Client) {
		slog.Info("[Broker] Connected", "url", opts.URL, "client_id", opts.ClientID)
	}
	clientOpts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("[Broker] Connection lost, reconnecting", "error", err)
	}

	client := mqtt.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("broker connect: timed out after %s", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("broker connect: %w", err)
	}

	return &Client{client: client}, nil
}

// Subscribe registers a handler for every envelope published on topic.
// Payloads that fail to decode are logged and dropped: one malformed message
// must not stop fleet-wide statistics collection.
func (c *Client) Subscribe(topic string, handler EnvelopeHandler) error {
	token := c.client.Subscribe(topic, subscribeQoS, func(_ mqtt.Client, msg mqtt.Message) {
		var envelope v1.EventEnvelope
		if err := json.Unmarshal(msg.Payload(), &envelope); err != nil {
			slog.Error("[Broker] Dropping undecodable message",
				"topic", msg.Topic(),
				"payload_size", len(msg.Payload()),
				"error", err)
			return
		}
		handler(&envelope)
	})

	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("broker subscribe %q: %w", topic, err)
	}

	slog.Info("[Broker] Subscription established", "topic", topic)
	return nil
}

// Publish sends an envelope to topic and waits for the broker ack.
func (c *Client) Publish(topic string, envelope *v1.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("broker publish %q: encode envelope: %w", topic, err)
	}

	token := c.client.Publish(topic, publishQoS, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("broker publish %q: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker, allowing in-flight work to quiesce.
func (c *Client) Close() {
	c.client.Disconnect(disconnectQuiesce)
}
