// FilePath: internal/transport/transport.go

// Package transport subscribes to the MQTT broker and hands each delivered
// message to the mesh service. Connection management and reconnection are
// the client library's job; the core only consumes what gets delivered.
package transport

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/itsatony/meshwatch/internal/config"
	"github.com/itsatony/meshwatch/internal/meshservice"
	nuts "github.com/vaudience/go-nuts"
)

const connectTimeout = 10 * time.Second

// Consumer bridges the MQTT client to the mesh service.
type Consumer struct {
	cfg     config.MQTTConfig
	service *meshservice.MeshService
	client  mqtt.Client
}

// NewConsumer creates a Consumer for the given broker configuration.
func NewConsumer(cfg config.MQTTConfig, service *meshservice.MeshService) *Consumer {
	c := &Consumer{cfg: cfg, service: service}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			nuts.L.Warnf("[Transport] Connection lost: %v", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c.client = mqtt.NewClient(opts)
	return c
}

// Start connects to the broker. Subscriptions are (re-)established in the
// on-connect handler so they survive reconnects.
func (c *Consumer) Start() error {
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("timeout connecting to broker %s", c.cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("error connecting to broker %s: %w", c.cfg.BrokerURL, err)
	}
	return nil
}

// Stop disconnects from the broker, allowing in-flight work to drain.
func (c *Consumer) Stop() {
	c.client.Disconnect(250)
	nuts.L.Infof("[Transport] Disconnected from %s", c.cfg.BrokerURL)
}

func (c *Consumer) onConnect(client mqtt.Client) {
	nuts.L.Infof("[Transport] Connected to %s", c.cfg.BrokerURL)
	for _, topic := range c.cfg.Topics {
		token := client.Subscribe(topic, byte(c.cfg.QoS), c.handleMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			nuts.L.Errorf("[Transport] Failed to subscribe to %s: %v", topic, err)
			continue
		}
		nuts.L.Infof("[Transport] Subscribed to %s (qos=%d)", topic, c.cfg.QoS)
	}
}

func (c *Consumer) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var raw map[string]interface{}
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		nuts.L.Warnf("[Transport] Undecodable payload on %s: %v", msg.Topic(), err)
		return
	}
	c.service.HandleMessage(msg.Topic(), raw)
}
