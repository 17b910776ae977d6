//go:build !tinygo

package status

import (
	"context"
	"errors"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// PahoSink publishes reports with the Eclipse Paho client, which reconnects
// on its own
type PahoSink struct {
	client mqtt.Client
	topic  string
	qos    byte
}

var ErrPublishTimeout = errors.New("mqtt publish timed out")

// NewPahoSink connects to broker, a URL like tcp://host:1883
func NewPahoSink(broker, clientID, topic string) (*PahoSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	return newPahoSink(mqtt.NewClient(opts), topic)
}

func newPahoSink(client mqtt.Client, topic string) (*PahoSink, error) {
	tok := client.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return nil, err
	}
	return &PahoSink{client: client, topic: topic, qos: 1}, nil
}

func (p *PahoSink) Publish(ctx context.Context, r Report) error {
	tok := p.client.Publish(p.topic, p.qos, true, r.JSON())
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ErrPublishTimeout
	}
}

func (p *PahoSink) Close() error {
	p.client.Disconnect(250)
	return nil
}
