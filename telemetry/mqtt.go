package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"canlab/utils"
)

const (
	DefaultBroker   = "tcp://localhost:1883"
	DefaultClientID = "canlab"
	DefaultTopic    = "canlab/vehicle"
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Interval time.Duration
}

// MQTTPublisher is a Publisher backed by a paho client.
type MQTTPublisher struct {
	client mqtt.Client
	wait   time.Duration
}

// DialMQTT connects to the broker. The client reconnects on its own after
// the first successful connection.
func DialMQTT(cfg MQTTConfig, log *utils.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("connected to MQTT broker %s", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("MQTT connection lost: %v", err)
	})

	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	return &MQTTPublisher{client: c, wait: 2 * time.Second}, nil
}

func (p *MQTTPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(p.wait) {
		return fmt.Errorf("mqtt publish to %s: timed out", topic)
	}
	return token.Error()
}

func (p *MQTTPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

// Feed keeps a Snapshot current from a bus and publishes it on an interval.
type Feed struct {
	snap     *Snapshot
	bus      utils.CANBus
	pub      Publisher
	topic    string
	interval time.Duration
	log      *utils.Logger
	metrics  *Metrics
	now      func() time.Time
}

func NewFeed(snap *Snapshot, bus utils.CANBus, pub Publisher, topic string, interval time.Duration, log *utils.Logger, m *Metrics) (*Feed, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("telemetry: invalid publish interval %v", interval)
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return &Feed{
		snap:     snap,
		bus:      bus,
		pub:      pub,
		topic:    topic,
		interval: interval,
		log:      log.With("publish"),
		metrics:  m,
		now:      time.Now,
	}, nil
}

func (f *Feed) Run(ctx context.Context) error {
	f.log.Info("publishing %s state to %s every %v", f.bus.Name(), f.topic, f.interval)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	poll := f.interval
	if poll > 100*time.Millisecond {
		poll = 100 * time.Millisecond
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.PublishOnce()
		default:
		}

		frame, err := utils.RecvTimeout(ctx, f.bus, poll)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, utils.ErrTimeout) {
				continue
			}
			return fmt.Errorf("publish: receive on %s: %w", f.bus.Name(), err)
		}
		if err := f.snap.Update(frame); err != nil {
			f.metrics.DecodeError("publish")
			f.log.Trace("ignoring frame: %v", err)
		}
	}
}

// PublishOnce sends the current snapshot. Failures are logged only.
func (f *Feed) PublishOnce() {
	data, err := f.snap.JSON(f.now())
	if err != nil {
		f.log.Error("encode snapshot: %v", err)
		return
	}
	if err := f.pub.Publish(f.topic, data); err != nil {
		f.log.Warn("%v", err)
		return
	}
	f.log.Debug("published %d bytes to %s", len(data), f.topic)
}
