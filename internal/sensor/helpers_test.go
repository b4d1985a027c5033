package sensor

import (
	"context"
	"sync"
	"time"

	"backend-routetrack/internal/pipeline"

	nmea "github.com/adrianmo/go-nmea"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

func nmeaDate(valid bool) nmea.Date { return nmea.Date{Valid: valid} }
func nmeaTime(valid bool) nmea.Time { return nmea.Time{Valid: valid} }

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	done := make(chan struct{})
	close(done)
	return &fakeToken{err: err, done: done}
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeSubscriber struct {
	mu           sync.Mutex
	subErr       error
	handler      mqtt.MessageHandler
	subscribed   chan struct{}
	unsubscribed []string
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{subscribed: make(chan struct{})}
}

func (f *fakeSubscriber) Subscribe(_ string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return newFakeToken(f.subErr)
	}
	f.handler = cb
	close(f.subscribed)
	return newFakeToken(nil)
}

func (f *fakeSubscriber) Unsubscribe(topics ...string) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, topics...)
	return newFakeToken(nil)
}

func (f *fakeSubscriber) deliver(topic string, payload string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(nil, fakeMessage{topic: topic, payload: []byte(payload)})
}

// scriptedSource emits its readings and then blocks until ctx is done,
// or returns err straight away when set.
type scriptedSource struct {
	readings []pipeline.RawReading
	err      error
	hold     bool
}

func (s *scriptedSource) Stream(ctx context.Context, out chan<- pipeline.RawReading) error {
	for _, r := range s.readings {
		select {
		case out <- r:
		case <-ctx.Done():
			return nil
		}
	}
	if s.err != nil {
		return s.err
	}
	if s.hold {
		<-ctx.Done()
	}
	return nil
}
