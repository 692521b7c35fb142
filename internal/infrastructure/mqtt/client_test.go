package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-heatpump/internal/infrastructure/config"
)

// fakeToken completes immediately with err.
type fakeToken struct{ err error }

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Error() error                   { return t.err }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type published struct {
	topic    string
	payload  string
	qos      byte
	retained bool
}

// fakePaho records calls made by Client.
type fakePaho struct {
	mu           sync.Mutex
	connected    bool
	published    []published
	subscribed   map[string]pahomqtt.MessageHandler
	subscribeErr error
	publishErr   error
	disconnected bool
}

func newFakePaho() *fakePaho {
	return &fakePaho{connected: true, subscribed: map[string]pahomqtt.MessageHandler{}}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}
func (f *fakePaho) IsConnectionOpen() bool  { return f.IsConnected() }
func (f *fakePaho) Connect() pahomqtt.Token { return fakeToken{} }
func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnected = true
}
func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	var body string
	switch p := payload.(type) {
	case string:
		body = p
	case []byte:
		body = string(p)
	}
	f.published = append(f.published, published{topic, body, qos, retained})
	return fakeToken{err: f.publishErr}
}
func (f *fakePaho) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return fakeToken{err: f.subscribeErr}
	}
	f.subscribed[topic] = cb
	return fakeToken{}
}
func (f *fakePaho) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return fakeToken{}
}
func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range topics {
		delete(f.subscribed, t)
	}
	return fakeToken{}
}
func (f *fakePaho) AddRoute(string, pahomqtt.MessageHandler) {}
func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

func (f *fakePaho) deliver(t *testing.T, topic string, payload []byte) {
	t.Helper()
	f.mu.Lock()
	cb, ok := f.subscribed[topic]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription for %s", topic)
	}
	cb(f, fakeMessage{topic: topic, payload: payload})
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graylogic-heatpump-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectedClient returns a Client that has gone through handleConnect.
func connectedClient(t *testing.T) (*Client, *fakePaho) {
	t.Helper()
	fake := newFakePaho()
	c := newClient(fake, testConfig())
	c.handleConnect()
	return c, fake
}

func TestHandleConnect_PublishesOnlineStatus(t *testing.T) {
	c, fake := connectedClient(t)

	if !c.IsConnected() {
		t.Fatal("IsConnected() = false after handleConnect")
	}
	if len(fake.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(fake.published))
	}
	p := fake.published[0]
	if p.topic != "graylogic/system/graylogic-heatpump-test/status" || !p.retained {
		t.Errorf("status published to %s retained=%v", p.topic, p.retained)
	}
	var doc map[string]string
	if err := json.Unmarshal([]byte(p.payload), &doc); err != nil {
		t.Fatalf("status payload not JSON: %v", err)
	}
	if doc["status"] != StatusOnline || doc["client_id"] != "graylogic-heatpump-test" {
		t.Errorf("status payload = %v", doc)
	}
}

func TestHandleConnect_RestoresSubscriptions(t *testing.T) {
	c, fake := connectedClient(t)
	if err := c.Subscribe("graylogic/command/heatpump/+", 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	c.handleDisconnect(errors.New("broker went away"))
	fake.mu.Lock()
	fake.subscribed = map[string]pahomqtt.MessageHandler{}
	fake.mu.Unlock()
	c.handleConnect()

	if _, ok := fake.subscribed["graylogic/command/heatpump/+"]; !ok {
		t.Error("subscription not restored after reconnect")
	}
}

func TestCallbacks(t *testing.T) {
	fake := newFakePaho()
	c := newClient(fake, testConfig())

	var connects, disconnects int
	var lastErr error
	c.SetOnConnect(func() { connects++ })
	c.SetOnDisconnect(func(err error) {
		disconnects++
		lastErr = err
	})

	c.handleConnect()
	boom := errors.New("eof")
	c.handleDisconnect(boom)

	if connects != 1 || disconnects != 1 {
		t.Errorf("connects=%d disconnects=%d, want 1 and 1", connects, disconnects)
	}
	if !errors.Is(lastErr, boom) {
		t.Errorf("disconnect error = %v", lastErr)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after handleDisconnect")
	}
}

func TestPublish_Validation(t *testing.T) {
	c, _ := connectedClient(t)

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"bad qos", "t", []byte("x"), 3, ErrInvalidQoS},
		{"too large", "t", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublish(t *testing.T) {
	c, fake := connectedClient(t)

	if err := c.PublishRetained("graylogic/state/heatpump/x", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}
	last := fake.published[len(fake.published)-1]
	if last.topic != "graylogic/state/heatpump/x" || last.qos != 1 || !last.retained {
		t.Errorf("published %+v", last)
	}

	fake.publishErr = errors.New("not authorised")
	if err := c.Publish("t", []byte("x"), 0, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublish_Disconnected(t *testing.T) {
	c := newClient(newFakePaho(), testConfig())
	if err := c.Publish("t", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribe_TracksAndUnsubscribes(t *testing.T) {
	c, _ := connectedClient(t)
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(\"\") error = %v", err)
	}
	if err := c.Subscribe("a", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v", err)
	}

	for _, topic := range []string{"a", "b"} {
		if err := c.Subscribe(topic, 1, noop); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if c.SubscriptionCount() != 2 || !c.HasSubscription("a") {
		t.Errorf("SubscriptionCount() = %d", c.SubscriptionCount())
	}

	if err := c.Unsubscribe("a"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if c.HasSubscription("a") || c.SubscriptionCount() != 1 {
		t.Error("subscription still tracked after Unsubscribe")
	}
}

func TestSubscribe_FailureNotTracked(t *testing.T) {
	c, fake := connectedClient(t)
	fake.subscribeErr = errors.New("acl")

	err := c.Subscribe("graylogic/#", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if c.HasSubscription("graylogic/#") {
		t.Error("failed subscription is tracked")
	}
}

func TestHandler_ErrorsAndPanicsAreLogged(t *testing.T) {
	c, fake := connectedClient(t)
	logger := &recordingLogger{}
	c.SetLogger(logger)

	_ = c.Subscribe("err", 1, func(string, []byte) error { return errors.New("bad payload") })
	_ = c.Subscribe("panic", 1, func(string, []byte) error { panic("boom") })

	fake.deliver(t, "err", []byte("x"))
	fake.deliver(t, "panic", []byte("x"))

	if len(logger.warns) != 1 || len(logger.errors) != 1 {
		t.Errorf("warns=%v errors=%v", logger.warns, logger.errors)
	}
}

func TestClose_PublishesGracefulOffline(t *testing.T) {
	c, fake := connectedClient(t)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	last := fake.published[len(fake.published)-1]
	if !strings.Contains(last.payload, `"status":"offline"`) || !strings.Contains(last.payload, "graceful_shutdown") {
		t.Errorf("offline payload = %s", last.payload)
	}
	if !fake.disconnected || c.IsConnected() {
		t.Error("client still connected after Close")
	}

	var nilClient *Client
	if err := nilClient.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	c, fake := connectedClient(t)

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v", err)
	}

	fake.mu.Lock()
	fake.connected = false
	fake.mu.Unlock()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "bridge"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != cfg.Broker.ClientID || opts.Username != "bridge" {
		t.Errorf("ClientID=%q Username=%q", opts.ClientID, opts.Username)
	}
	if opts.Order {
		t.Error("ordered delivery should be disabled")
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig not set")
	}

	configureLWT(opts, cfg.Broker.ClientID)
	if !opts.WillEnabled || opts.WillTopic != StatusTopic(cfg.Broker.ClientID) || !opts.WillRetained {
		t.Errorf("will = %v %q retained=%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
	if !strings.Contains(string(opts.WillPayload), "unexpected_disconnect") {
		t.Errorf("will payload = %s", opts.WillPayload)
	}
}

func TestTopics(t *testing.T) {
	tp := Topics{Protocol: "heatpump"}

	tests := []struct {
		got, want string
	}{
		{tp.State("thermiagenesis_heating"), "graylogic/state/heatpump/thermiagenesis_heating"},
		{tp.Command("x"), "graylogic/command/heatpump/x"},
		{tp.Ack("x"), "graylogic/ack/heatpump/x"},
		{tp.Request("req-1"), "graylogic/request/heatpump/req-1"},
		{tp.Response("req-1"), "graylogic/response/heatpump/req-1"},
		{tp.Health(), "graylogic/health/heatpump"},
		{tp.Discovery(), "graylogic/discovery/heatpump"},
		{tp.Availability(), "graylogic/heatpump/availability"},
		{tp.Set("heating", "temperature"), "graylogic/heatpump/set/heating/temperature"},
		{tp.AllCommands(), "graylogic/command/heatpump/+"},
		{tp.AllRequests(), "graylogic/request/heatpump/+"},
		{tp.AllSets(), "graylogic/heatpump/set/+/+"},
		{StatusTopic("bridge"), "graylogic/system/bridge/status"},
		{DiscoveryConfigTopic("homeassistant", "climate", "thermiagenesis", "heating"),
			"homeassistant/climate/thermiagenesis/heating/config"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
