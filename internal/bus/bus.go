// Package bus wraps the MQTT broker connection the device-bus and
// operator-bus handlers ingress from and publish responses to. Handlers
// depend only on the Publisher interface so their dispatch logic is
// testable without a broker.
package bus

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"smartfarm/shared"
)

// Publisher is the outbound capability every bus handler depends on
// instead of a concrete MQTT client.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) bool
}

// Subscriber is the inbound capability main.go wires handlers against.
type Subscriber interface {
	Subscribe(topic string, handler func(topic string, payload []byte)) error
}

// Client is a paho-backed Publisher/Subscriber. One Client serves every
// map; topics carry the map name as their first segment.
type Client struct {
	mqtt mqtt.Client
}

// NewClient connects to brokerURL with the given client id and returns a
// ready Client. Connection loss triggers paho's own auto-reconnect; a
// Publish call degrades to a logged failure rather than blocking or
// crashing the process, while Subscribe waits for the broker's
// acknowledgement and returns its error to the caller.
func NewClient(brokerURL, clientID string) (*Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(5 * time.Second)

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connecting to broker %s: timed out", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to broker %s: %w", brokerURL, err)
	}
	return &Client{mqtt: c}, nil
}

// Publish sends payload to topic, bounded by shared.PublishTimeout.
// Publish failures (including BrokerUnavailable) are logged and return
// false; callers never crash on a failed publish since the next event
// re-issues naturally.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) bool {
	token := c.mqtt.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(shared.PublishTimeout) {
		shared.DebugError(fmt.Errorf("%w: publish to %s timed out", shared.ErrBrokerUnavailable, topic))
		return false
	}
	if err := token.Error(); err != nil {
		shared.DebugError(fmt.Errorf("%w: publish to %s: %v", shared.ErrBrokerUnavailable, topic, err))
		return false
	}
	return true
}

// Subscribe registers handler for every message matching topic (which may
// carry MQTT wildcards, e.g. "+/+/robot/+").
func (c *Client) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	token := c.mqtt.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	return token.Error()
}

// Close disconnects from the broker, waiting up to 250ms to flush.
func (c *Client) Close() {
	c.mqtt.Disconnect(250)
}

// DeviceTopicPattern is the wildcard subscription for every robot's
// device-bus ingress across every admitted map.
func DeviceTopicPattern() string {
	return "+/+/robot/+"
}

// ServerTopic is the controller-to-device response topic for command on
// robotID's channel within mapName.
func ServerTopic(mapName, robotID, command string) string {
	return fmt.Sprintf("%s/%s/server/%s", mapName, robotID, command)
}

// StateChannel is the robot snapshot change channel robotstate publishes
// on (mirrored here so bus-facing callers don't import robotstate just to
// build the topic string).
func StateChannel(mapName, robotID string) string {
	return fmt.Sprintf("%s/robot/%s/state", mapName, robotID)
}
