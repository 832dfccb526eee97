// Package events publishes transition changes to an MQTT broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rbright/wwld/internal/config"
	"github.com/rbright/wwld/internal/transition"
)

const publishTimeout = 2 * time.Second

// Payload is the JSON document published per transition.
type Payload struct {
	From  string    `json:"from"`
	To    string    `json:"to"`
	Event string    `json:"event"`
	At    time.Time `json:"at"`
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher sends transition payloads to one topic.
type Publisher struct {
	client publisher
	conn   mqtt.Client
	topic  string
	logger *slog.Logger
}

// Connect dials the configured broker. A blank broker returns (nil, nil).
func Connect(cfg config.EventsConfig, logger *slog.Logger) (*Publisher, error) {
	broker := strings.TrimSpace(cfg.MQTTBroker)
	if broker == "" {
		return nil, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", broker, token.Error())
	}

	return &Publisher{client: client, conn: client, topic: cfg.Topic, logger: logger}, nil
}

// Publish sends change without blocking the caller on broker acknowledgement.
func (p *Publisher) Publish(_ context.Context, change transition.Change) {
	if p == nil {
		return
	}
	data, err := json.Marshal(Payload{
		From:  string(change.From),
		To:    string(change.To),
		Event: string(change.Event),
		At:    change.At.UTC(),
	})
	if err != nil {
		p.log("encode transition event failed", err)
		return
	}

	token := p.client.Publish(p.topic, 1, false, data)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			p.log("publish transition event timed out", nil)
			return
		}
		if err := token.Error(); err != nil {
			p.log("publish transition event failed", err)
		}
	}()
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Disconnect(250)
}

func (p *Publisher) log(msg string, err error) {
	if p.logger == nil {
		return
	}
	if err != nil {
		p.logger.Warn(msg, "topic", p.topic, "error", err.Error())
		return
	}
	p.logger.Warn(msg, "topic", p.topic)
}
