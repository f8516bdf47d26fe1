package syncloop

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"github.com/clintpurser/leaphand/hand"
)

// MQTTConfig addresses the broker joint states are published to.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	Retained bool
}

const publishTimeout = time.Second

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes each pose as a JointState message so an external
// visualizer can follow the hand.
type MQTTSink struct {
	client   publisher
	topic    string
	qos      byte
	retained bool
	logger   logging.Logger
	close    func()
}

// NewMQTTSink connects to the broker and returns a sink publishing visual poses.
func NewMQTTSink(cfg MQTTConfig, logger logging.Logger) (*MQTTSink, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker not configured")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(1 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(10 * time.Second).
		SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warnf("MQTT connection lost, reconnecting: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "failed to connect to MQTT broker %s", cfg.Broker)
	}
	logger.Infof("Publishing joint states to %s on %s", cfg.Topic, cfg.Broker)

	s := newMQTTSink(client, cfg, logger)
	s.close = func() { client.Disconnect(250) }
	return s, nil
}

func newMQTTSink(client publisher, cfg MQTTConfig, logger logging.Logger) *MQTTSink {
	return &MQTTSink{
		client:   client,
		topic:    cfg.Topic,
		qos:      cfg.QoS,
		retained: cfg.Retained,
		logger:   logger,
	}
}

// Update publishes p.
func (s *MQTTSink) Update(p hand.Pose) error {
	payload, err := jsoniter.Marshal(NewJointState(p, false))
	if err != nil {
		return err
	}
	token := s.client.Publish(s.topic, s.qos, s.retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		s.logger.Debugf("MQTT publish to %s still pending", s.topic)
		return nil
	}
	return errors.Wrap(token.Error(), "mqtt publish")
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() {
	if s.close != nil {
		s.close()
		s.close = nil
	}
}
