package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gofrs/uuid"
	"github.com/hearthlab/heater-control/internal/pkg/config"
)

type fn func(string)

type MqttClient struct {
	client mqtt.Client
}

func NewMQTTClient(addr string, insecureSkipVerify bool, connectHandler func(client mqtt.Client), connectionLostHandler func(client mqtt.Client, err error)) MqttClient {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(addr)
	opts.CleanSession = false
	u, _ := uuid.NewV4()
	opts.SetClientID(u.String())
	opts.TLSConfig = &tls.Config{
		InsecureSkipVerify: insecureSkipVerify,
	}
	opts.OnConnect = connectHandler
	opts.OnConnectionLost = connectionLostHandler
	opts.AutoReconnect = true
	client := mqtt.NewClient(opts)

	return MqttClient{
		client,
	}
}

func (c MqttClient) Connect() error {
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (c MqttClient) Cleanup() {
	c.client.Disconnect(250)
}

func (c MqttClient) Subscribe(topic string, subscribeHandler fn) error {
	if token := c.client.Subscribe(topic, 0, func(client mqtt.Client, msg mqtt.Message) {
		subscribeHandler(string(msg.Payload()))
	}); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (c MqttClient) publish(topic, message string) error {
	token := c.client.Publish(topic, 0, false, message)
	token.Wait()
	return token.Error()
}

// PublishHeaterState mirrors controller state to the Home Assistant topic.
func (c MqttClient) PublishHeaterState(m config.HeaterStateMessage) error {
	j, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshalling heater state: %s", err)
	}
	return c.publish(config.HAHeaterStateTopic, string(j))
}

// PublishAlert fans an alert out to the Home Assistant topic. Implements
// alerting.Publisher.
func (c MqttClient) PublishAlert(m config.AlertMessage) error {
	j, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshalling alert: %s", err)
	}
	return c.publish(config.HAHeaterAlertTopic, string(j))
}

func (c MqttClient) Publish(topic, message string) error {
	return c.publish(topic, message)
}
