package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"backend-routetrack/internal/observability"
	"backend-routetrack/internal/pipeline"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/sirupsen/logrus"
)

type Subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

func DialMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, connectError(token.Error())
	}
	return client, nil
}

func connectError(err error) error {
	if errors.Is(err, packets.ErrorRefusedNotAuthorised) || errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) {
		return &Error{Kind: PermissionDenied, Err: err}
	}
	return &Error{Kind: PositionUnavailable, Err: err}
}

type wireReading struct {
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Accuracy   *float64  `json:"accuracy_m"`
	Speed      *float64  `json:"speed_mps"`
	Heading    *float64  `json:"heading_deg"`
	CapturedAt time.Time `json:"captured_at"`
}

// MQTTSource receives JSON readings published by a device on one topic.
type MQTTSource struct {
	client Subscriber
	topic  string
	now    func() time.Time
	log    logrus.FieldLogger
}

func NewMQTTSource(client Subscriber, topic string, lg logrus.FieldLogger) *MQTTSource {
	if lg == nil {
		lg = observability.Discard()
	}
	return &MQTTSource{client: client, topic: topic, now: time.Now, log: lg}
}

func (s *MQTTSource) Stream(ctx context.Context, out chan<- pipeline.RawReading) error {
	token := s.client.Subscribe(s.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		r, err := s.decode(msg.Payload())
		if err != nil {
			s.log.WithError(err).WithField("topic", msg.Topic()).Warn("mqtt reading unmarshal error")
			return
		}
		select {
		case out <- r:
		case <-ctx.Done():
		}
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return connectError(err)
	}
	s.log.WithField("topic", s.topic).Info("subscribed to readings")

	<-ctx.Done()
	s.client.Unsubscribe(s.topic).Wait()
	return nil
}

func (s *MQTTSource) decode(payload []byte) (pipeline.RawReading, error) {
	var w wireReading
	if err := json.Unmarshal(payload, &w); err != nil {
		return pipeline.RawReading{}, err
	}
	r := pipeline.RawReading{
		Lat:            w.Lat,
		Lon:            w.Lon,
		AccuracyMeters: -1,
		SpeedMps:       w.Speed,
		HeadingDegrees: w.Heading,
		CapturedAt:     w.CapturedAt,
	}
	if w.Accuracy != nil {
		r.AccuracyMeters = *w.Accuracy
	}
	if r.CapturedAt.IsZero() {
		r.CapturedAt = s.now().UTC()
	}
	return r, nil
}
