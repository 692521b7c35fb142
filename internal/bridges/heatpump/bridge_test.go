package heatpump

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-heatpump/internal/coordinator"
	"github.com/nerrad567/gray-logic-heatpump/internal/entity"
	"github.com/nerrad567/gray-logic-heatpump/internal/genesis"
	"github.com/nerrad567/gray-logic-heatpump/internal/history"
	"github.com/nerrad567/gray-logic-heatpump/internal/integration"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []string
	connected     bool
	failPublish   error
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{connected: true}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPublish != nil {
		return m.failPublish
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, _ func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, topic)
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) Disconnect(uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

func (m *MockMQTTClient) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

// nonHealth returns published messages other than health reports, which
// the reporter goroutine may emit at any time.
func (m *MockMQTTClient) nonHealth() []mockPublish {
	var out []mockPublish
	for _, p := range m.GetPublished() {
		if p.Topic != topics.Health() {
			out = append(out, p)
		}
	}
	return out
}

// onTopic returns the messages published to topic, oldest first.
func (m *MockMQTTClient) onTopic(topic string) []mockPublish {
	var out []mockPublish
	for _, p := range m.GetPublished() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// fakeDevice is an in-memory heat pump.
type fakeDevice struct {
	mu     sync.Mutex
	values map[string]any
	err    error
	failOn map[string]error
	writes []string
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		values: map[string]any{
			genesis.Firmware:                       "1.2.3",
			genesis.StatusRegister:                 genesis.StatusHeating,
			"input_outdoor_temperature":            3.5,
			"input_indoor_temperature":             21.0,
			"coil_enable_heat":                     true,
			"coil_enable_tap_water":                true,
			"holding_comfort_wheel_setting":        20.0,
			"holding_start_temperature_tap_water":  45.0,
			"holding_stop_temperature_tap_water":   52.0,
			"input_tap_water_weighted_temperature": 48.0,
		},
		failOn: map[string]error{},
	}
}

func (f *fakeDevice) Fetch(_ context.Context, names []string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]any{}
	for _, n := range names {
		if v, ok := f.values[n]; ok {
			out[n] = v
		}
	}
	return out, nil
}

func (f *fakeDevice) WriteRegister(_ context.Context, name string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[name]; err != nil {
		return err
	}
	f.values[name] = value
	f.writes = append(f.writes, fmt.Sprintf("%s=%v", name, value))
	return nil
}

func (f *fakeDevice) Close() error { return nil }

func (f *fakeDevice) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeDevice) getWrites() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []history.CommandRecord
}

func (r *fakeRecorder) Log(_ context.Context, rec *history.CommandRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *rec)
	return nil
}

func setupEntry(t *testing.T, dev *fakeDevice, mode coordinator.WriteMode) *integration.Entry {
	t.Helper()
	e, err := integration.Setup(context.Background(), integration.Config{
		Device:    genesis.Config{Host: "hp", Kind: genesis.KindInverter},
		Interval:  time.Hour,
		WriteMode: mode,
	}, integration.Options{
		Dialer: func(genesis.Config) (integration.Device, error) { return dev, nil },
	})
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	t.Cleanup(func() { e.Unload() }) //nolint:errcheck
	return e
}

type testBridge struct {
	*Bridge
	mqtt     *MockMQTTClient
	dev      *fakeDevice
	entry    *integration.Entry
	recorder *fakeRecorder
}

func startBridge(t *testing.T, mode coordinator.WriteMode, discovery *HADiscovery) testBridge {
	t.Helper()
	dev := newFakeDevice()
	e := setupEntry(t, dev, mode)
	mqtt := NewMockMQTTClient()
	rec := &fakeRecorder{}

	b, err := NewBridge(BridgeOptions{
		Config:     Config{Version: "test", Address: "hp:502", Discovery: discovery},
		MQTTClient: mqtt,
		Entry:      e,
		Recorder:   rec,
	})
	if err != nil {
		t.Fatalf("NewBridge() error: %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(b.Stop)
	return testBridge{Bridge: b, mqtt: mqtt, dev: dev, entry: e, recorder: rec}
}

func lastAck(t *testing.T, m *MockMQTTClient, entityID string) AckMessage {
	t.Helper()
	acks := m.onTopic(topics.Ack(entityID))
	if len(acks) == 0 {
		t.Fatalf("no ack published for %s", entityID)
	}
	var ack AckMessage
	if err := json.Unmarshal(acks[len(acks)-1].Payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	return ack
}

func sendCommand(b *Bridge, cmd CommandMessage) {
	payload, _ := json.Marshal(cmd) //nolint:errcheck
	b.handleMQTTMessage(topics.Command(cmd.EntityID), payload)
}

func TestNewBridge_Validation(t *testing.T) {
	if _, err := NewBridge(BridgeOptions{Entry: nil, MQTTClient: NewMockMQTTClient()}); err == nil {
		t.Error("expected error without entry")
	}
	e := setupEntry(t, newFakeDevice(), coordinator.WritePoll)
	if _, err := NewBridge(BridgeOptions{Entry: e}); err == nil {
		t.Error("expected error without MQTT client")
	}
	b, err := NewBridge(BridgeOptions{Entry: e, MQTTClient: NewMockMQTTClient()})
	if err != nil {
		t.Fatalf("NewBridge() error: %v", err)
	}
	if b.cfg.BridgeID != Protocol {
		t.Errorf("BridgeID = %q, want %q", b.cfg.BridgeID, Protocol)
	}
}

func TestBridgeStartStop(t *testing.T) {
	tb := startBridge(t, coordinator.WritePoll, nil)

	subs := strings.Join(tb.mqtt.subscriptions, " ")
	for _, want := range []string{
		"graylogic/command/heatpump/+",
		"graylogic/request/heatpump/+",
		"graylogic/heatpump/set/+/+",
	} {
		if !strings.Contains(subs, want) {
			t.Errorf("missing subscription %s in %s", want, subs)
		}
	}

	if len(tb.mqtt.onTopic("graylogic/health/heatpump")) == 0 {
		t.Error("expected health message")
	}
	if len(tb.mqtt.onTopic("graylogic/discovery/heatpump")) != 1 {
		t.Error("expected one discovery message")
	}

	avail := tb.mqtt.onTopic("graylogic/heatpump/availability")
	if len(avail) != 1 || string(avail[0].Payload) != AvailabilityOnline || !avail[0].Retained {
		t.Fatalf("availability = %+v, want one retained online", avail)
	}

	for _, a := range tb.entry.Entities() {
		states := tb.mqtt.onTopic(topics.State(a.UniqueID()))
		if len(states) != 1 {
			t.Errorf("%s: %d state messages, want 1", a.UniqueID(), len(states))
		}
	}

	tb.Stop()
	tb.Stop()

	avail = tb.mqtt.onTopic("graylogic/heatpump/availability")
	if got := string(avail[len(avail)-1].Payload); got != AvailabilityOffline {
		t.Errorf("availability after stop = %q, want offline", got)
	}
}

func TestBridgeStateMessage(t *testing.T) {
	tb := startBridge(t, coordinator.WritePoll, nil)

	states := tb.mqtt.onTopic("graylogic/state/heatpump/thermiagenesis_input_outdoor_temperature")
	if len(states) != 1 {
		t.Fatalf("got %d state messages", len(states))
	}
	var msg StateMessage
	if err := json.Unmarshal(states[0].Payload, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Value != 3.5 || !msg.Known || !msg.Available || msg.Protocol != Protocol {
		t.Errorf("state = %+v", msg)
	}
	if !states[0].Retained || states[0].QoS != 1 {
		t.Error("state must be retained with QoS 1")
	}
}

func TestBridgeStateChangeDetection(t *testing.T) {
	tb := startBridge(t, coordinator.WritePoll, nil)
	tb.mqtt.ClearPublished()

	if err := tb.entry.Coordinator().Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if n := len(tb.mqtt.nonHealth()); n != 0 {
		t.Errorf("unchanged refresh published %d messages", n)
	}

	tb.dev.mu.Lock()
	tb.dev.values["input_outdoor_temperature"] = 4.0
	tb.dev.mu.Unlock()

	if err := tb.entry.Coordinator().Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if n := len(tb.mqtt.onTopic("graylogic/state/heatpump/thermiagenesis_input_outdoor_temperature")); n != 1 {
		t.Errorf("changed sensor published %d times, want 1", n)
	}
	if n := len(tb.mqtt.onTopic("graylogic/state/heatpump/thermiagenesis_coil_enable_heat")); n != 0 {
		t.Errorf("unchanged switch published %d times, want 0", n)
	}
}

func TestBridgeAvailabilityTransitions(t *testing.T) {
	tb := startBridge(t, coordinator.WritePoll, nil)
	tb.mqtt.ClearPublished()

	tb.dev.setErr(fmt.Errorf("%w: timeout", genesis.ErrConnectivity))
	_ = tb.entry.Coordinator().Refresh(context.Background()) //nolint:errcheck
	_ = tb.entry.Coordinator().Refresh(context.Background()) //nolint:errcheck

	avail := tb.mqtt.onTopic(topics.Availability())
	if len(avail) != 1 || string(avail[0].Payload) != AvailabilityOffline {
		t.Fatalf("availability = %+v, want one offline", avail)
	}

	states := tb.mqtt.onTopic(topics.State("thermiagenesis_input_outdoor_temperature"))
	if len(states) != 1 {
		t.Fatalf("got %d state messages after outage", len(states))
	}
	var msg StateMessage
	json.Unmarshal(states[0].Payload, &msg) //nolint:errcheck
	if msg.Available {
		t.Error("state should be unavailable after failed fetch")
	}

	tb.dev.setErr(nil)
	if err := tb.entry.Coordinator().Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	avail = tb.mqtt.onTopic(topics.Availability())
	if got := string(avail[len(avail)-1].Payload); got != AvailabilityOnline {
		t.Errorf("availability = %q, want online", got)
	}
}

func TestBridgeSwitchCommand(t *testing.T) {
	tb := startBridge(t, coordinator.WriteOptimistic, nil)
	tb.mqtt.ClearPublished()

	sendCommand(tb.Bridge, CommandMessage{
		ID:       "cmd-001",
		EntityID: "thermiagenesis_coil_enable_pool",
		Command:  entity.CommandTurnOn,
	})

	if got := tb.dev.getWrites(); len(got) != 1 || got[0] != "coil_enable_pool=true" {
		t.Fatalf("writes = %v", got)
	}
	ack := lastAck(t, tb.mqtt, "thermiagenesis_coil_enable_pool")
	if ack.Status != AckAccepted || ack.CommandID != "cmd-001" || ack.Protocol != Protocol {
		t.Errorf("ack = %+v", ack)
	}

	states := tb.mqtt.onTopic(topics.State("thermiagenesis_coil_enable_pool"))
	if len(states) == 0 {
		t.Fatal("optimistic write should publish state")
	}
	var msg StateMessage
	json.Unmarshal(states[len(states)-1].Payload, &msg) //nolint:errcheck
	if msg.Value != true {
		t.Errorf("state value = %v, want true", msg.Value)
	}

	if len(tb.recorder.records) != 1 || tb.recorder.records[0].Source != history.SourceMQTT {
		t.Errorf("records = %+v", tb.recorder.records)
	}
}

func TestBridgeCommandByTopicKey(t *testing.T) {
	tb := startBridge(t, coordinator.WritePoll, nil)

	tb.handleMQTTMessage("graylogic/command/heatpump/holding_comfort_wheel_setting",
		[]byte(`{"id":"c2","command":"set_value","parameters":{"value":22}}`))

	ack := lastAck(t, tb.mqtt, "thermiagenesis_holding_comfort_wheel_setting")
	if ack.Status != AckAccepted {
		t.Fatalf("ack = %+v", ack)
	}
	if got := tb.dev.getWrites(); len(got) != 1 || got[0] != "holding_comfort_wheel_setting=22" {
		t.Errorf("writes = %v", got)
	}
}

func TestBridgeCommandErrors(t *testing.T) {
	tests := []struct {
		name     string
		cmd      CommandMessage
		ackTopic string
		code     string
	}{
		{
			name:     "unknown entity",
			cmd:      CommandMessage{ID: "1", EntityID: "nope", Command: entity.CommandTurnOn},
			ackTopic: "nope",
			code:     ErrCodeNotConfigured,
		},
		{
			name:     "read-only sensor",
			cmd:      CommandMessage{ID: "2", EntityID: "input_outdoor_temperature", Command: entity.CommandTurnOn},
			ackTopic: "thermiagenesis_input_outdoor_temperature",
			code:     ErrCodeInvalidCommand,
		},
		{
			name:     "unknown command",
			cmd:      CommandMessage{ID: "3", EntityID: "coil_enable_pool", Command: "dim"},
			ackTopic: "thermiagenesis_coil_enable_pool",
			code:     ErrCodeInvalidCommand,
		},
		{
			name: "out of range",
			cmd: CommandMessage{ID: "4", EntityID: "holding_comfort_wheel_setting", Command: entity.CommandSetValue,
				Parameters: map[string]any{"value": 80}},
			ackTopic: "thermiagenesis_holding_comfort_wheel_setting",
			code:     ErrCodeInvalidParameters,
		},
		{
			name:     "missing value",
			cmd:      CommandMessage{ID: "5", EntityID: "holding_comfort_wheel_setting", Command: entity.CommandSetValue},
			ackTopic: "thermiagenesis_holding_comfort_wheel_setting",
			code:     ErrCodeInvalidParameters,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := startBridge(t, coordinator.WritePoll, nil)
			sendCommand(tb.Bridge, tt.cmd)

			ack := lastAck(t, tb.mqtt, tt.ackTopic)
			if ack.Status != AckFailed || ack.Error == nil || ack.Error.Code != tt.code {
				t.Errorf("ack = %+v, want code %s", ack, tt.code)
			}
			if len(tb.dev.getWrites()) != 0 {
				t.Errorf("unexpected writes %v", tb.dev.getWrites())
			}
			if got := tb.GetMetrics().CommandsFailed; got != 1 {
				t.Errorf("CommandsFailed = %d, want 1", got)
			}
		})
	}
}

func TestBridgeDeviceWriteFailure(t *testing.T) {
	tb := startBridge(t, coordinator.WritePoll, nil)
	tb.dev.failOn["coil_enable_pool"] = fmt.Errorf("%w: broken pipe", genesis.ErrConnectivity)

	sendCommand(tb.Bridge, CommandMessage{ID: "x", EntityID: "coil_enable_pool", Command: entity.CommandTurnOn})

	ack := lastAck(t, tb.mqtt, "thermiagenesis_coil_enable_pool")
	if ack.Error == nil || ack.Error.Code != ErrCodeDeviceUnreachable {
		t.Errorf("ack = %+v", ack)
	}
	if len(tb.recorder.records) != 1 || tb.recorder.records[0].Error == "" {
		t.Errorf("failed command should be recorded with its error: %+v", tb.recorder.records)
	}
}

func TestBridgePartialWrite(t *testing.T) {
	tb := startBridge(t, coordinator.WritePoll, nil)
	tb.dev.failOn["holding_stop_temperature_tap_water"] = errors.New("exception 2")

	sendCommand(tb.Bridge, CommandMessage{
		ID:       "p",
		EntityID: "tap_water",
		Command:  entity.CommandSetTemperature,
		Parameters: map[string]any{
			"target_temp_low":  44.0,
			"target_temp_high": 50.0,
		},
	})

	ack := lastAck(t, tb.mqtt, "thermiagenesis_tap_water")
	if ack.Error == nil || ack.Error.Code != ErrCodePartialWrite {
		t.Fatalf("ack = %+v", ack)
	}
	if len(ack.Error.Applied) != 1 || ack.Error.Applied[0] != "holding_start_temperature_tap_water" {
		t.Errorf("applied = %v", ack.Error.Applied)
	}
}

func TestBridgeSetTopics(t *testing.T) {
	tests := []struct {
		topic   string
		payload string
		write   string
	}{
		{"graylogic/heatpump/set/coil_enable_pool/state", "ON", "coil_enable_pool=true"},
		{"graylogic/heatpump/set/coil_enable_heat/state", "off", "coil_enable_heat=false"},
		{"graylogic/heatpump/set/holding_comfort_wheel_setting/value", "21.5", "holding_comfort_wheel_setting=21.5"},
		{"graylogic/heatpump/set/heating/temperature", "23", "holding_comfort_wheel_setting=23"},
		{"graylogic/heatpump/set/heating/mode", "off", "coil_enable_heat=false"},
		{"graylogic/heatpump/set/tap_water/target_temp_low", "42", "holding_start_temperature_tap_water=42"},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			tb := startBridge(t, coordinator.WritePoll, nil)
			tb.handleMQTTMessage(tt.topic, []byte(tt.payload))

			got := tb.dev.getWrites()
			if len(got) != 1 || got[0] != tt.write {
				t.Errorf("writes = %v, want [%s]", got, tt.write)
			}
		})
	}
}

func TestBridgeSetTopicBadPayload(t *testing.T) {
	tb := startBridge(t, coordinator.WritePoll, nil)
	tb.handleMQTTMessage("graylogic/heatpump/set/coil_enable_pool/state", []byte("maybe"))

	ack := lastAck(t, tb.mqtt, "coil_enable_pool")
	if ack.Error == nil || ack.Error.Code != ErrCodeInvalidParameters {
		t.Errorf("ack = %+v", ack)
	}
	if ack.CommandID == "" {
		t.Error("set commands should get a generated id")
	}
}

func TestBridgeInvalidTopics(t *testing.T) {
	tb := startBridge(t, coordinator.WritePoll, nil)
	tb.mqtt.ClearPublished()

	for _, topic := range []string{
		"graylogic/command",
		"other/command/heatpump/x",
		"graylogic/heatpump/set/only",
		"graylogic/unknown/heatpump/x",
	} {
		tb.handleMQTTMessage(topic, []byte(`{}`))
	}
	tb.handleMQTTMessage("graylogic/command/heatpump/x", []byte(`not json`))

	if n := len(tb.mqtt.nonHealth()); n != 0 {
		t.Errorf("invalid messages published %d replies", n)
	}
	if len(tb.dev.getWrites()) != 0 {
		t.Error("invalid messages must not write")
	}
}

func response(t *testing.T, m *MockMQTTClient, requestID string) ResponseMessage {
	t.Helper()
	msgs := m.onTopic(topics.Response(requestID))
	if len(msgs) != 1 {
		t.Fatalf("got %d responses for %s", len(msgs), requestID)
	}
	var resp ResponseMessage
	if err := json.Unmarshal(msgs[0].Payload, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

func TestBridgeReadStateRequest(t *testing.T) {
	tb := startBridge(t, coordinator.WritePoll, nil)

	tb.handleMQTTMessage(topics.Request("r1"),
		[]byte(`{"request_id":"r1","action":"read_state","entity_id":"heating"}`))

	resp := response(t, tb.mqtt, "r1")
	if !resp.Success {
		t.Fatalf("resp = %+v", resp)
	}
	state, _ := resp.Data["state"].(map[string]any)
	attrs, _ := state["attributes"].(map[string]any)
	if state["entity_id"] != "thermiagenesis_heating" || attrs["hvac_action"] != entity.HVACActionHeating {
		t.Errorf("state = %v", state)
	}
}

func TestBridgeReadAllRequest(t *testing.T) {
	tb := startBridge(t, coordinator.WritePoll, nil)

	tb.handleMQTTMessage(topics.Request("r2"), []byte(`{"action":"read_all"}`))

	resp := response(t, tb.mqtt, "r2")
	if !resp.Success {
		t.Fatalf("resp = %+v", resp)
	}
	if got := int(resp.Data["count"].(float64)); got != len(tb.entry.Entities()) {
		t.Errorf("count = %d, want %d", got, len(tb.entry.Entities()))
	}
}

func TestBridgeReadAllDeviceDown(t *testing.T) {
	tb := startBridge(t, coordinator.WritePoll, nil)
	tb.dev.setErr(fmt.Errorf("%w: timeout", genesis.ErrConnectivity))

	tb.handleMQTTMessage(topics.Request("r3"), []byte(`{"request_id":"r3","action":"read_all"}`))

	resp := response(t, tb.mqtt, "r3")
	if resp.Success || resp.Error == nil || resp.Error.Code != ErrCodeDeviceUnreachable {
		t.Errorf("resp = %+v", resp)
	}
}

func TestBridgeRequestErrors(t *testing.T) {
	tb := startBridge(t, coordinator.WritePoll, nil)

	tb.handleMQTTMessage(topics.Request("r4"), []byte(`{"request_id":"r4","action":"read_state","entity_id":"nope"}`))
	tb.handleMQTTMessage(topics.Request("r5"), []byte(`{"request_id":"r5","action":"reboot"}`))

	if resp := response(t, tb.mqtt, "r4"); resp.Error == nil || resp.Error.Code != ErrCodeNotConfigured {
		t.Errorf("r4 = %+v", resp)
	}
	if resp := response(t, tb.mqtt, "r5"); resp.Error == nil || resp.Error.Code != ErrCodeInvalidCommand {
		t.Errorf("r5 = %+v", resp)
	}
}

func TestBridgeDiscoverRequest(t *testing.T) {
	tb := startBridge(t, coordinator.WritePoll, &HADiscovery{Prefix: "homeassistant", StatusTopic: "graylogic/system/hp/status"})
	tb.mqtt.ClearPublished()

	tb.handleMQTTMessage(topics.Request("r6"), []byte(`{"request_id":"r6","action":"discover"}`))

	resp := response(t, tb.mqtt, "r6")
	if !resp.Success || int(resp.Data["entities"].(float64)) != len(tb.entry.Entities()) {
		t.Errorf("resp = %+v", resp)
	}

	configs := 0
	for _, p := range tb.mqtt.GetPublished() {
		if strings.HasPrefix(p.Topic, "homeassistant/") {
			configs++
			if !p.Retained {
				t.Errorf("%s should be retained", p.Topic)
			}
		}
	}
	if configs != len(tb.entry.Entities()) {
		t.Errorf("published %d HA configs, want %d", configs, len(tb.entry.Entities()))
	}

	var disc DiscoveryMessage
	json.Unmarshal(tb.mqtt.onTopic(topics.Discovery())[0].Payload, &disc) //nolint:errcheck
	if disc.Device.SWVersion != "1.2.3" || len(disc.Entities) != len(tb.entry.Entities()) {
		t.Errorf("discovery = %+v", disc)
	}
}

func TestBridgeRepublishIgnoresCache(t *testing.T) {
	tb := startBridge(t, coordinator.WritePoll, nil)
	tb.mqtt.ClearPublished()

	tb.Republish()

	if n := len(tb.mqtt.onTopic(topics.State("thermiagenesis_heatpump"))); n != 1 {
		t.Errorf("republish sent %d summary states, want 1", n)
	}
	if n := len(tb.mqtt.onTopic(topics.Availability())); n != 1 {
		t.Errorf("republish sent %d availability messages, want 1", n)
	}
}

func TestBridgeGetMetrics(t *testing.T) {
	tb := startBridge(t, coordinator.WritePoll, nil)
	sendCommand(tb.Bridge, CommandMessage{ID: "m", EntityID: "coil_enable_pool", Command: entity.CommandTurnOff})

	m := tb.GetMetrics()
	if !m.Connected || !m.DeviceAvailable || m.Status != string(HealthHealthy) {
		t.Errorf("metrics = %+v", m)
	}
	if m.CommandsReceived != 1 || m.CommandsFailed != 0 {
		t.Errorf("command counters = %d/%d", m.CommandsReceived, m.CommandsFailed)
	}
	if m.EntitiesManaged != len(tb.entry.Entities()) {
		t.Errorf("EntitiesManaged = %d", m.EntitiesManaged)
	}
}

func TestParseSetPayload(t *testing.T) {
	tests := []struct {
		attribute string
		raw       string
		command   string
		params    map[string]any
		wantErr   bool
	}{
		{AttrState, "ON", entity.CommandTurnOn, nil, false},
		{AttrState, " true ", entity.CommandTurnOn, nil, false},
		{AttrState, "0", entity.CommandTurnOff, nil, false},
		{AttrState, "toggle", "", nil, true},
		{AttrValue, "7.5", entity.CommandSetValue, map[string]any{"value": "7.5"}, false},
		{AttrMode, "auto", entity.CommandSetHVACMode, map[string]any{"hvac_mode": "auto"}, false},
		{AttrTempHigh, "55", entity.CommandSetTemperature, map[string]any{"target_temp_high": "55"}, false},
		{"brightness", "1", "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.attribute+"="+tt.raw, func(t *testing.T) {
			cmd, params, err := ParseSetPayload(tt.attribute, tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPayload) {
					t.Errorf("err = %v, want ErrInvalidPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cmd != tt.command {
				t.Errorf("command = %q, want %q", cmd, tt.command)
			}
			if fmt.Sprint(params) != fmt.Sprint(tt.params) {
				t.Errorf("params = %v, want %v", params, tt.params)
			}
		})
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&entity.PartialWriteError{Applied: []string{"a"}, Failed: "b", Err: errors.New("x")}, ErrCodePartialWrite},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), ErrCodeTimeout},
		{entity.ErrNotFound, ErrCodeNotConfigured},
		{entity.ErrNotWritable, ErrCodeInvalidCommand},
		{entity.ErrOutOfRange, ErrCodeInvalidParameters},
		{ErrInvalidPayload, ErrCodeInvalidParameters},
		{&coordinator.UpdateFailedError{Op: "write", Err: errors.New("eof")}, ErrCodeDeviceUnreachable},
		{errors.New("other"), ErrCodeBridgeError},
	}
	for _, tt := range tests {
		if got := errorCode(tt.err); got != tt.want {
			t.Errorf("errorCode(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
